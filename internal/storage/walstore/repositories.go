package walstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tally/internal/domain"
)

// AddTransaction stores a copy of tx.
func (s *Store) AddTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	stored := *tx
	return s.stage(ctx, record{key: transactionKeyPrefix + tx.ID, value: &stored})
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions(_ context.Context) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// AddEvent stores the event.
func (s *Store) AddEvent(ctx context.Context, event *domain.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("event id is required")
	}

	stored := *event
	return s.stage(ctx, record{key: eventKeyPrefix + event.ID, value: &stored})
}

// FindEvent returns the event by id.
func (s *Store) FindEvent(_ context.Context, id string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrRecordNotFound, "event %s", id)
	}
	return event, nil
}

// FindTypeByCode returns the configured transaction type.
func (s *Store) FindTypeByCode(_ context.Context, code domain.TypeCode) (*domain.TransactionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tt, ok := s.types[code]
	if !ok {
		return nil, errors.Wrapf(domain.ErrRecordNotFound, "transaction type %s", code)
	}
	return &tt, nil
}

// SeedTypes stores every known transaction type that is not configured yet.
func (s *Store) SeedTypes(ctx context.Context) error {
	return s.Transactional(ctx, func(ctx context.Context) error {
		s.mu.RLock()
		missing := make([]domain.TypeCode, 0)
		for _, code := range domain.TypeCodes() {
			if _, ok := s.types[code]; !ok {
				missing = append(missing, code)
			}
		}
		s.mu.RUnlock()

		for _, code := range missing {
			tt := &domain.TransactionType{Code: code, Title: string(code)}
			err := s.stage(ctx, record{
				key:   typeKeyPrefix + string(code),
				value: tt,
				prepare: func(s *Store, seq *sequences) {
					tt.ID = seq.nextTypeID(s)
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveExchange stores or replaces the exchange.
func (s *Store) SaveExchange(ctx context.Context, exchange domain.Exchange) error {
	if exchange.ID == "" {
		return errors.New("exchange id is required")
	}

	return s.stage(ctx, record{key: exchangeKeyPrefix + exchange.ID, value: &exchange})
}

// ExchangesForUser lists the exchanges the user has reports on, ordered by title.
func (s *Store) ExchangesForUser(_ context.Context, userID string) ([]domain.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	exchanges := make([]domain.Exchange, 0)
	for _, report := range s.reports {
		if report.UserID != userID || seen[report.ExchangeID] {
			continue
		}
		seen[report.ExchangeID] = true

		exchange, ok := s.exchanges[report.ExchangeID]
		if !ok {
			exchange = domain.Exchange{ID: report.ExchangeID}
		}
		exchanges = append(exchanges, exchange)
	}

	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].Title < exchanges[j].Title })

	return exchanges, nil
}

// SaveReport imports an upstream FIFO snapshot row.
func (s *Store) SaveReport(ctx context.Context, report *domain.Report) error {
	if report == nil || report.UserID == "" || report.ExchangeID == "" {
		return errors.New("report user and exchange are required")
	}

	stored := *report
	key := fmt.Sprintf("%s%s", reportKeyPrefix, uuid.New().String())

	return s.stage(ctx, record{
		key:   key,
		value: &stored,
		prepare: func(s *Store, seq *sequences) {
			stored.ID = seq.nextReportID(s)
			report.ID = stored.ID
		},
	})
}

// FindByDate returns the latest report of any currency dated at or before date.
func (s *Store) FindByDate(_ context.Context, userID, exchangeID string, date time.Time) (*domain.Report, error) {
	return s.latestReport(userID, exchangeID, date, "")
}

// FindLastByCurrency returns the latest report of currency dated at or before date.
func (s *Store) FindLastByCurrency(_ context.Context, userID, exchangeID string, date time.Time, currency string) (*domain.Report, error) {
	return s.latestReport(userID, exchangeID, date, currency)
}

// GetEuroStockByDate returns the euro amount held according to the latest EUR
// report at or before date, zero if there is none.
func (s *Store) GetEuroStockByDate(_ context.Context, userID, exchangeID string, date time.Time) (decimal.Decimal, error) {
	report, err := s.latestReport(userID, exchangeID, date, domain.CurrencyEUR)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return report.FifoAKCrypto, nil
}

func (s *Store) latestReport(userID, exchangeID string, date time.Time, currency string) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Report
	for i := range s.reports {
		report := &s.reports[i]
		if report.UserID != userID || report.ExchangeID != exchangeID || report.Date.After(date) {
			continue
		}
		if currency != "" && report.Currency != currency {
			continue
		}
		// later inserts win ties on date
		if latest == nil || !report.Date.Before(latest.Date) {
			latest = report
		}
	}

	if latest == nil {
		what := "report"
		if currency != "" {
			what = currency + " report"
		}
		return nil, errors.Wrapf(domain.ErrRecordNotFound, "%s of user %s on exchange %s at %s",
			what, userID, exchangeID, date.Format(time.RFC3339))
	}

	found := *latest
	return &found, nil
}

// GetLastByUser returns the row with the highest number for the pair.
func (s *Store) GetLastByUser(_ context.Context, userID, exchangeID string) (*domain.ReportB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.ReportB
	for i := range s.rows {
		row := &s.rows[i]
		if row.UserID == userID && row.ExchangeID == exchangeID && (last == nil || row.Number > last.Number) {
			last = row
		}
	}
	if last == nil {
		return nil, errors.Wrapf(domain.ErrRecordNotFound, "report row of user %s on exchange %s", userID, exchangeID)
	}

	found := *last
	return &found, nil
}

// AppendNext numbers row after the pair's last row at commit time and stores it.
func (s *Store) AppendNext(ctx context.Context, row *domain.ReportB) error {
	if row == nil || row.UserID == "" || row.ExchangeID == "" {
		return errors.New("report row user and exchange are required")
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	return s.stage(ctx, record{
		key:   rowKeyPrefix + row.ID,
		value: row,
		prepare: func(s *Store, seq *sequences) {
			row.Number = seq.nextNumber(s, row.UserID, row.ExchangeID)
		},
	})
}

// Rows returns the pair's rows ordered by number.
func (s *Store) Rows(_ context.Context, userID, exchangeID string) []domain.ReportB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.ReportB, 0)
	for _, row := range s.rows {
		if row.UserID == userID && row.ExchangeID == exchangeID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Number < rows[j].Number })

	return rows
}

// CountRows returns the number of stored rows of every user.
func (s *Store) CountRows(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rows)
}

// TruncateReports logs a tombstone removing the matching rows.
func (s *Store) TruncateReports(ctx context.Context, truncation domain.Truncation) error {
	key := fmt.Sprintf("%s%s", truncateKeyPrefix, uuid.New().String())
	return s.stage(ctx, record{key: key, value: &truncation})
}
