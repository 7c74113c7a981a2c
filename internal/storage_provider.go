package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/config"
	"github.com/vadiminshakov/tally/internal/domain"
	"github.com/vadiminshakov/tally/internal/storage/sqlstore"
	"github.com/vadiminshakov/tally/internal/storage/walstore"
)

// ledgerStore is everything the services need from a storage backend.
type ledgerStore interface {
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error

	AddTransaction(ctx context.Context, tx *domain.Transaction) error
	AddEvent(ctx context.Context, event *domain.Event) error
	FindTypeByCode(ctx context.Context, code domain.TypeCode) (*domain.TransactionType, error)
	SeedTypes(ctx context.Context) error

	SaveExchange(ctx context.Context, exchange domain.Exchange) error
	ExchangesForUser(ctx context.Context, userID string) ([]domain.Exchange, error)
	SaveReport(ctx context.Context, report *domain.Report) error
	FindByDate(ctx context.Context, userID, exchangeID string, date time.Time) (*domain.Report, error)
	FindLastByCurrency(ctx context.Context, userID, exchangeID string, date time.Time, currency string) (*domain.Report, error)
	GetEuroStockByDate(ctx context.Context, userID, exchangeID string, date time.Time) (decimal.Decimal, error)

	GetLastByUser(ctx context.Context, userID, exchangeID string) (*domain.ReportB, error)
	AppendNext(ctx context.Context, row *domain.ReportB) error
	TruncateReports(ctx context.Context, truncation domain.Truncation) error

	Close() error
}

var (
	_ ledgerStore = (*walstore.Store)(nil)
	_ ledgerStore = (*sqlstore.Store)(nil)
)

// openStore is the single place that maps the configured storage to a backend.
func openStore(conf config.Config, logger *zap.Logger) (ledgerStore, error) {
	switch conf.Storage {
	case config.StorageWAL:
		return walstore.Open(logger, conf.WALDir)
	case config.StorageSQLite:
		return sqlstore.Open(logger, sqlstore.DriverSQLite, conf.DSN)
	case config.StoragePostgres:
		return sqlstore.Open(logger, sqlstore.DriverPostgres, conf.DSN)
	default:
		return nil, errors.Errorf("unsupported storage: %s", conf.Storage)
	}
}
