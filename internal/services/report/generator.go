// Package report builds the sequential holdings report (ReportB) from upstream FIFO snapshots.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

type snapshotRepository interface {
	// FindByDate returns the most recent report of any currency at or before date.
	FindByDate(ctx context.Context, userID, exchangeID string, date time.Time) (*domain.Report, error)
	// FindLastByCurrency returns the most recent report of currency at or before date.
	FindLastByCurrency(ctx context.Context, userID, exchangeID string, date time.Time, currency string) (*domain.Report, error)
	GetEuroStockByDate(ctx context.Context, userID, exchangeID string, date time.Time) (decimal.Decimal, error)
}

type rowRepository interface {
	// AppendNext stores row with Number set to the last number of the
	// (user, exchange) pair plus one, assigned atomically by the store.
	AppendNext(ctx context.Context, row *domain.ReportB) error
	TruncateReports(ctx context.Context, truncation domain.Truncation) error
}

type unitOfWork interface {
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error
}

// Generator appends ReportB rows.
type Generator struct {
	l         *zap.Logger
	uow       unitOfWork
	snapshots snapshotRepository
	rows      rowRepository
}

// NewGenerator returns a report generator.
func NewGenerator(l *zap.Logger, uow unitOfWork, snapshots snapshotRepository, rows rowRepository) (*Generator, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if uow == nil || snapshots == nil || rows == nil {
		return nil, errors.New("unit of work, snapshot and row repositories are required")
	}

	return &Generator{l: l, uow: uow, snapshots: snapshots, rows: rows}, nil
}

// Generate folds the latest snapshots for the user on the exchange into a new row.
func (g *Generator) Generate(ctx context.Context, user domain.User, exchange domain.Exchange, dateTime time.Time) (*domain.ReportB, error) {
	lastReport, err := g.snapshots.FindByDate(ctx, user.ID, exchange.ID, dateTime)
	if err != nil {
		return nil, notFound(err, "last report", user, exchange)
	}

	lastBTCReport, err := g.snapshots.FindLastByCurrency(ctx, user.ID, exchange.ID, dateTime, domain.CurrencyBTC)
	if err != nil {
		return nil, notFound(err, "last BTC report", user, exchange)
	}

	euroStock, err := g.snapshots.GetEuroStockByDate(ctx, user.ID, exchange.ID, dateTime)
	if err != nil {
		return nil, errors.Wrap(err, "get euro stock")
	}

	btcRateUPL := domain.Mul(lastBTCReport.FifoAKCrypto, lastBTCReport.RateReal)
	btcUPL := domain.Sub(btcRateUPL, lastBTCReport.FifoAKEuroSum)

	row := &domain.ReportB{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		ExchangeID: exchange.ID,
		DateTime:   dateTime,
		EuroStock:  euroStock,
		EuroRPL:    lastReport.FifoRPLSum,
		BtcStock:   lastBTCReport.FifoAKCrypto,
		BtcUPL:     btcUPL,
		FifoAkSum:  lastBTCReport.FifoAKEuroSum,
		Rate:       lastBTCReport.RateReal,
	}

	err = g.uow.Transactional(ctx, func(ctx context.Context) error {
		return g.rows.AppendNext(ctx, row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "append report row")
	}

	g.l.Info("report row generated",
		zap.String("user", user.ID),
		zap.String("exchange", exchange.Title),
		zap.Int64("number", row.Number),
		zap.String("euro_stock", row.EuroStock.String()),
		zap.String("btc_stock", row.BtcStock.String()),
		zap.String("btc_upl", row.BtcUPL.String()))

	return row, nil
}

// TruncateReport deletes every row of every user.
func (g *Generator) TruncateReport(ctx context.Context) error {
	if err := g.rows.TruncateReports(ctx, domain.Truncation{}); err != nil {
		return errors.Wrap(err, "truncate report")
	}

	g.l.Warn("report truncated")

	return nil
}

// TruncateReportByUser deletes the user's rows dated at or after cutoff,
// or all of them when cutoff is nil.
func (g *Generator) TruncateReportByUser(ctx context.Context, user domain.User, cutoff *time.Time) error {
	if user.ID == "" {
		return errors.New("user is required")
	}

	if err := g.rows.TruncateReports(ctx, domain.Truncation{UserID: user.ID, Cutoff: cutoff}); err != nil {
		return errors.Wrapf(err, "truncate report of user %s", user.ID)
	}

	fields := []zap.Field{zap.String("user", user.ID)}
	if cutoff != nil {
		fields = append(fields, zap.Time("cutoff", *cutoff))
	}
	g.l.Info("report truncated for user", fields...)

	return nil
}

func notFound(err error, what string, user domain.User, exchange domain.Exchange) error {
	if domain.IsNotFound(err) {
		return &domain.NotFoundError{
			Code: domain.CodeReportNotFound,
			Key:  fmt.Sprintf("%s for user %s on %s", what, user.ID, exchange.Title),
			Err:  err,
		}
	}
	return errors.Wrapf(err, "find %s", what)
}
