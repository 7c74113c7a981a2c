package walstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

type batchKey struct{}

// record is a staged write. prepare runs under the write lock right before the
// batch is encoded, so values derived from committed state are assigned there.
type record struct {
	key     string
	value   any
	prepare func(s *Store, seq *sequences)
}

type batch struct {
	records []record
}

type pair struct {
	userID     string
	exchangeID string
}

// sequences hands out ids and row numbers to records of one commit, counting
// the ones earlier records of the same commit already took.
type sequences struct {
	numbers map[pair]int64
	reports int64
	types   int64
}

func (q *sequences) nextNumber(s *Store, userID, exchangeID string) int64 {
	k := pair{userID: userID, exchangeID: exchangeID}
	n, ok := q.numbers[k]
	if !ok {
		n = s.lastNumberLocked(userID, exchangeID)
	}
	n++
	q.numbers[k] = n
	return n
}

func (q *sequences) nextReportID(s *Store) int64 {
	q.reports++
	return int64(len(s.reports)) + q.reports
}

func (q *sequences) nextTypeID(s *Store) int64 {
	q.types++
	return int64(len(s.types)) + q.types
}

// Transactional stages every write made through ctx and commits them together
// once fn returns nil. Nested calls join the outer batch.
func (s *Store) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(batchKey{}).(*batch); ok {
		return fn(ctx)
	}

	b := &batch{}
	if err := fn(context.WithValue(ctx, batchKey{}, b)); err != nil {
		return err
	}

	return s.commit(b)
}

// stage adds the record to the batch bound to ctx, or commits it alone.
func (s *Store) stage(ctx context.Context, rec record) error {
	if b, ok := ctx.Value(batchKey{}).(*batch); ok {
		b.records = append(b.records, rec)
		return nil
	}

	return s.commit(&batch{records: []record{rec}})
}

// commit writes the batch to the WAL in one append and only then applies it
// to memory. Nothing is visible if encoding or the write fails.
func (s *Store) commit(b *batch) error {
	if len(b.records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := &sequences{numbers: make(map[pair]int64)}
	next := s.wal.CurrentIndex() + 1
	walRecords := make([]gowal.Record, 0, len(b.records))
	for i, rec := range b.records {
		if rec.prepare != nil {
			rec.prepare(s, seq)
		}

		payload, err := json.Marshal(rec.value)
		if err != nil {
			return errors.Wrapf(err, "marshal %s", rec.key)
		}
		walRecords = append(walRecords, gowal.Record{Index: next + uint64(i), Key: rec.key, Value: payload})
	}

	walBatch, err := gowal.NewBatch(walRecords...)
	if err != nil {
		return errors.Wrap(err, "build WAL batch")
	}
	if err := s.wal.WriteBatch(walBatch); err != nil {
		return errors.Wrap(err, "write WAL batch")
	}

	for _, r := range walRecords {
		if err := s.apply(r.Key, r.Value); err != nil {
			return errors.Wrapf(err, "apply %s", r.Key)
		}
	}

	return nil
}

// lastNumberLocked returns the highest row number of the pair. Caller holds a lock.
func (s *Store) lastNumberLocked(userID, exchangeID string) int64 {
	var last int64
	for _, row := range s.rows {
		if row.UserID == userID && row.ExchangeID == exchangeID && row.Number > last {
			last = row.Number
		}
	}
	return last
}
