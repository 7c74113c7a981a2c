// Package sqlstore keeps ledger and report state in a SQL database through gorm.
package sqlstore

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vadiminshakov/tally/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type txKey struct{}

// Store implements the ledger, event and report ports.
type Store struct {
	l  *zap.Logger
	db *gorm.DB
}

// Open connects to the database and migrates the schema.
func Open(l *zap.Logger, driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", driver)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sqlite handle")
		}
		// sqlite allows one writer; a single connection also keeps :memory: databases shared.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(l, db)
}

// New wraps an open gorm connection and migrates the schema.
func New(l *zap.Logger, db *gorm.DB) (*Store, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if db == nil {
		return nil, errors.New("db is required")
	}

	err := db.AutoMigrate(
		&transactionModel{},
		&eventModel{},
		&transactionTypeModel{},
		&exchangeModel{},
		&reportModel{},
		&reportRowModel{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}

	l.Info("ledger database ready", zap.String("dialect", db.Dialector.Name()))

	return &Store{l: l, db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get db handle")
	}
	return sqlDB.Close()
}

// Transactional runs fn inside a database transaction bound to ctx. Nested
// calls join the outer transaction.
func (s *Store) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or the pool.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(domain.ErrRecordNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
