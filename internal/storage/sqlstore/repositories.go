package sqlstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vadiminshakov/tally/internal/domain"
)

// AddTransaction inserts tx.
func (s *Store) AddTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	m := toTransactionModel(tx)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return errors.Wrapf(err, "insert transaction %s", tx.ID)
	}
	return nil
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	var models []transactionModel
	if err := s.conn(ctx).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}

	out := make([]domain.Transaction, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// AddEvent inserts the event.
func (s *Store) AddEvent(ctx context.Context, event *domain.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("event id is required")
	}

	m := eventModel{ID: event.ID, UserID: event.UserID, Kind: string(event.Kind), Date: event.Date.UTC()}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return errors.Wrapf(err, "insert event %s", event.ID)
	}
	return nil
}

// FindEvent returns the event by id.
func (s *Store) FindEvent(ctx context.Context, id string) (domain.Event, error) {
	var m eventModel
	if err := s.conn(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return domain.Event{}, notFound(err, "event %s", id)
	}
	return m.toDomain(), nil
}

// FindTypeByCode returns the configured transaction type.
func (s *Store) FindTypeByCode(ctx context.Context, code domain.TypeCode) (*domain.TransactionType, error) {
	var m transactionTypeModel
	if err := s.conn(ctx).Where("code = ?", string(code)).First(&m).Error; err != nil {
		return nil, notFound(err, "transaction type %s", code)
	}
	return &domain.TransactionType{ID: m.ID, Code: domain.TypeCode(m.Code), Title: m.Title}, nil
}

// SeedTypes inserts every known transaction type that is not configured yet.
func (s *Store) SeedTypes(ctx context.Context) error {
	return s.Transactional(ctx, func(ctx context.Context) error {
		for _, code := range domain.TypeCodes() {
			var m transactionTypeModel
			err := s.conn(ctx).
				Where(transactionTypeModel{Code: string(code)}).
				Attrs(transactionTypeModel{Title: string(code)}).
				FirstOrCreate(&m).Error
			if err != nil {
				return errors.Wrapf(err, "seed transaction type %s", code)
			}
		}
		return nil
	})
}

// SaveExchange inserts or replaces the exchange.
func (s *Store) SaveExchange(ctx context.Context, exchange domain.Exchange) error {
	if exchange.ID == "" {
		return errors.New("exchange id is required")
	}

	m := exchangeModel{ID: exchange.ID, Title: exchange.Title}
	if err := s.conn(ctx).Save(&m).Error; err != nil {
		return errors.Wrapf(err, "save exchange %s", exchange.ID)
	}
	return nil
}

// ExchangesForUser lists the exchanges the user has reports on, ordered by title.
func (s *Store) ExchangesForUser(ctx context.Context, userID string) ([]domain.Exchange, error) {
	var ids []string
	err := s.conn(ctx).Model(&reportModel{}).
		Where("user_id = ?", userID).
		Distinct("exchange_id").
		Pluck("exchange_id", &ids).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list exchanges of user %s", userID)
	}
	if len(ids) == 0 {
		return []domain.Exchange{}, nil
	}

	var models []exchangeModel
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "load exchanges")
	}
	titles := make(map[string]string, len(models))
	for _, m := range models {
		titles[m.ID] = m.Title
	}

	exchanges := make([]domain.Exchange, 0, len(ids))
	for _, id := range ids {
		exchanges = append(exchanges, domain.Exchange{ID: id, Title: titles[id]})
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].Title < exchanges[j].Title })

	return exchanges, nil
}

// SaveReport imports an upstream FIFO snapshot row and sets its ID.
func (s *Store) SaveReport(ctx context.Context, report *domain.Report) error {
	if report == nil || report.UserID == "" || report.ExchangeID == "" {
		return errors.New("report user and exchange are required")
	}

	m := toReportModel(report)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return errors.Wrap(err, "insert report")
	}
	report.ID = m.ID

	return nil
}

// FindByDate returns the latest report of any currency dated at or before date.
func (s *Store) FindByDate(ctx context.Context, userID, exchangeID string, date time.Time) (*domain.Report, error) {
	return s.latestReport(ctx, userID, exchangeID, date, "")
}

// FindLastByCurrency returns the latest report of currency dated at or before date.
func (s *Store) FindLastByCurrency(ctx context.Context, userID, exchangeID string, date time.Time, currency string) (*domain.Report, error) {
	return s.latestReport(ctx, userID, exchangeID, date, currency)
}

// GetEuroStockByDate returns the euro amount held according to the latest EUR
// report at or before date, zero if there is none.
func (s *Store) GetEuroStockByDate(ctx context.Context, userID, exchangeID string, date time.Time) (decimal.Decimal, error) {
	report, err := s.latestReport(ctx, userID, exchangeID, date, domain.CurrencyEUR)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return report.FifoAKCrypto, nil
}

func (s *Store) latestReport(ctx context.Context, userID, exchangeID string, date time.Time, currency string) (*domain.Report, error) {
	q := s.conn(ctx).
		Where("user_id = ? AND exchange_id = ? AND date <= ?", userID, exchangeID, date.UTC())
	if currency != "" {
		q = q.Where("currency = ?", currency)
	}

	var m reportModel
	if err := q.Order("date DESC, id DESC").First(&m).Error; err != nil {
		return nil, notFound(err, "report of user %s on exchange %s at %s", userID, exchangeID, date.Format(time.RFC3339))
	}

	report := m.toDomain()
	return &report, nil
}

// GetLastByUser returns the row with the highest number for the pair.
func (s *Store) GetLastByUser(ctx context.Context, userID, exchangeID string) (*domain.ReportB, error) {
	var m reportRowModel
	err := s.conn(ctx).
		Where("user_id = ? AND exchange_id = ?", userID, exchangeID).
		Order("number DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "report row of user %s on exchange %s", userID, exchangeID)
	}

	row := m.toDomain()
	return &row, nil
}

// AppendNext numbers row after the pair's last row and inserts it in one
// transaction. A concurrent writer that got the same number fails on the
// unique index instead of duplicating it.
func (s *Store) AppendNext(ctx context.Context, row *domain.ReportB) error {
	if row == nil || row.UserID == "" || row.ExchangeID == "" {
		return errors.New("report row user and exchange are required")
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	return s.Transactional(ctx, func(ctx context.Context) error {
		db := s.conn(ctx)

		var last int64
		err := db.Model(&reportRowModel{}).
			Where("user_id = ? AND exchange_id = ?", row.UserID, row.ExchangeID).
			Select("COALESCE(MAX(number), 0)").
			Scan(&last).Error
		if err != nil {
			return errors.Wrap(err, "read last report number")
		}

		row.Number = last + 1
		m := toReportRowModel(row)
		if err := db.Create(&m).Error; err != nil {
			return errors.Wrapf(err, "insert report row %d", row.Number)
		}
		return nil
	})
}

// Rows returns the pair's rows ordered by number.
func (s *Store) Rows(ctx context.Context, userID, exchangeID string) ([]domain.ReportB, error) {
	var models []reportRowModel
	err := s.conn(ctx).
		Where("user_id = ? AND exchange_id = ?", userID, exchangeID).
		Order("number").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list report rows")
	}

	rows := make([]domain.ReportB, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.toDomain())
	}
	return rows, nil
}

// CountRows returns the number of stored rows of every user.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&reportRowModel{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count report rows")
	}
	return n, nil
}

// TruncateReports deletes the rows matching truncation.
func (s *Store) TruncateReports(ctx context.Context, truncation domain.Truncation) error {
	q := s.conn(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if truncation.UserID != "" {
		q = q.Where("user_id = ?", truncation.UserID)
		if truncation.Cutoff != nil {
			q = q.Where("date_time >= ?", truncation.Cutoff.UTC())
		}
	}

	res := q.Delete(&reportRowModel{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete report rows")
	}

	s.l.Debug("report rows deleted", zap.String("user", truncation.UserID), zap.Int64("rows", res.RowsAffected))

	return nil
}
