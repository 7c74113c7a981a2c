// Package walstore keeps ledger and report state in memory, backed by a write-ahead log.
package walstore

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

const (
	DefaultDir = "./wal/tally"

	segmentThreshold = 1000
	maxSegments      = 100000
	dirPermissions   = 0o755

	transactionKeyPrefix = "tx_"
	eventKeyPrefix       = "event_"
	typeKeyPrefix        = "ttype_"
	exchangeKeyPrefix    = "exchange_"
	reportKeyPrefix      = "srcreport_"
	rowKeyPrefix         = "reportb_row_"
	truncateKeyPrefix    = "reportb_trunc_"
)

// Store implements the ledger, event and report ports.
type Store struct {
	mu  sync.RWMutex
	l   *zap.Logger
	wal *gowal.Wal

	transactions []domain.Transaction
	events       map[string]domain.Event
	types        map[domain.TypeCode]domain.TransactionType
	exchanges    map[string]domain.Exchange
	reports      []domain.Report
	rows         []domain.ReportB
}

// Open replays the WAL in dir into memory.
func Open(l *zap.Logger, dir string) (*Store, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init ledger WAL")
	}

	s := &Store{
		l:         l,
		wal:       wal,
		events:    make(map[string]domain.Event),
		types:     make(map[domain.TypeCode]domain.TransactionType),
		exchanges: make(map[string]domain.Exchange),
	}

	replayed := 0
	for msg := range wal.Iterator() {
		if err := s.apply(msg.Key, msg.Value); err != nil {
			l.Error("failed to replay WAL record", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		replayed++
	}

	l.Info("ledger store opened",
		zap.String("dir", dir),
		zap.Int("records", replayed),
		zap.Int("transactions", len(s.transactions)),
		zap.Int("report_rows", len(s.rows)))

	return s, nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// apply updates in-memory state from one record. Callers hold the write lock
// or own the store exclusively.
func (s *Store) apply(key string, payload []byte) error {
	switch {
	case strings.HasPrefix(key, transactionKeyPrefix):
		var tx domain.Transaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return errors.Wrap(err, "decode transaction")
		}
		s.transactions = append(s.transactions, tx)
	case strings.HasPrefix(key, eventKeyPrefix):
		var event domain.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return errors.Wrap(err, "decode event")
		}
		s.events[event.ID] = event
	case strings.HasPrefix(key, typeKeyPrefix):
		var tt domain.TransactionType
		if err := json.Unmarshal(payload, &tt); err != nil {
			return errors.Wrap(err, "decode transaction type")
		}
		s.types[tt.Code] = tt
	case strings.HasPrefix(key, exchangeKeyPrefix):
		var exchange domain.Exchange
		if err := json.Unmarshal(payload, &exchange); err != nil {
			return errors.Wrap(err, "decode exchange")
		}
		s.exchanges[exchange.ID] = exchange
	case strings.HasPrefix(key, reportKeyPrefix):
		var report domain.Report
		if err := json.Unmarshal(payload, &report); err != nil {
			return errors.Wrap(err, "decode report")
		}
		s.reports = append(s.reports, report)
	case strings.HasPrefix(key, rowKeyPrefix):
		var row domain.ReportB
		if err := json.Unmarshal(payload, &row); err != nil {
			return errors.Wrap(err, "decode report row")
		}
		s.rows = append(s.rows, row)
	case strings.HasPrefix(key, truncateKeyPrefix):
		var truncation domain.Truncation
		if err := json.Unmarshal(payload, &truncation); err != nil {
			return errors.Wrap(err, "decode truncation")
		}
		kept := s.rows[:0]
		for _, row := range s.rows {
			if !truncation.Matches(row) {
				kept = append(kept, row)
			}
		}
		s.rows = kept
	default:
		return errors.Errorf("unknown record key %q", key)
	}

	return nil
}
