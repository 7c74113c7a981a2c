// Package reportqueue journals events waiting to be folded into the report.
package reportqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

const (
	DefaultDir = "./wal/reportqueue"

	entryKeyPrefix   = "report_queue_entry_"
	segmentThreshold = 1000
	// entries may stay pending for long, so old segments are never rotated away
	maxSegments    = 100000
	dirPermissions = 0o755
)

// Status of a queue entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Entry is a queued event and its processing state.
type Entry struct {
	ID       string       `json:"id"`
	Status   Status       `json:"status"`
	Event    domain.Event `json:"event"`
	Queued   time.Time    `json:"queued"`
	Attempts int          `json:"attempts,omitempty"`
	Error    string       `json:"error,omitempty"`
	// Generated lists the exchanges whose row is already written for this event.
	Generated []string `json:"generated,omitempty"`
}

// Queue is a WAL-backed journal of entries. The latest record per entry wins on replay.
type Queue struct {
	mu      sync.Mutex
	l       *zap.Logger
	wal     *gowal.Wal
	entries []*Entry
	index   map[string]*Entry
	now     func() time.Time
}

// Open replays the journal stored in dir.
func Open(l *zap.Logger, dir string) (*Queue, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure report queue directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "queue_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init report queue WAL")
	}

	q := &Queue{
		l:     l,
		wal:   wal,
		index: make(map[string]*Entry),
		now:   time.Now,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, entryKeyPrefix) {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			l.Error("failed to unmarshal report queue entry", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		q.remember(&entry)
	}

	return q, nil
}

// Add journals the event as pending.
func (q *Queue) Add(_ context.Context, event domain.Event) error {
	if event.ID == "" {
		return errors.New("event id is required")
	}

	entry := &Entry{
		ID:     uuid.New().String(),
		Status: StatusPending,
		Event:  event,
		Queued: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(entry); err != nil {
		return err
	}
	q.remember(entry)

	q.l.Debug("event queued for report", zap.String("entry", entry.ID), zap.String("event", event.ID))

	return nil
}

// Pending returns copies of the pending entries in queue order.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]Entry, 0, len(q.entries))
	for _, entry := range q.entries {
		if entry.Status == StatusPending {
			pending = append(pending, *entry)
		}
	}
	return pending
}

// Get returns a copy of the entry.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.index[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// MarkDone marks the entry processed. Attempts add up over polls.
func (q *Queue) MarkDone(id string, attempts int) error {
	return q.update(id, func(entry *Entry) {
		entry.Status = StatusDone
		entry.Attempts += attempts
		entry.Error = ""
	})
}

// MarkFailed marks the entry failed with the cause.
func (q *Queue) MarkFailed(id string, attempts int, cause error) error {
	return q.update(id, func(entry *Entry) {
		entry.Status = StatusFailed
		entry.Attempts += attempts
		if cause != nil {
			entry.Error = cause.Error()
		} else {
			entry.Error = ""
		}
	})
}

// MarkDeferred keeps the entry pending for the next poll. It records the
// attempts, the cause and the exchanges that are already reported.
func (q *Queue) MarkDeferred(id string, attempts int, generated []string, cause error) error {
	return q.update(id, func(entry *Entry) {
		entry.Status = StatusPending
		entry.Attempts += attempts
		entry.Generated = append([]string(nil), generated...)
		if cause != nil {
			entry.Error = cause.Error()
		}
	})
}

// Close closes the underlying WAL.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.wal.Close()
}

func (q *Queue) update(id string, mutate func(entry *Entry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, ok := q.index[id]
	if !ok {
		return errors.Errorf("report queue entry %s not found", id)
	}

	updated := *current
	mutate(&updated)
	if err := q.persist(&updated); err != nil {
		return err
	}
	*current = updated

	return nil
}

func (q *Queue) remember(entry *Entry) {
	if existing, ok := q.index[entry.ID]; ok {
		*existing = *entry
		return
	}
	q.entries = append(q.entries, entry)
	q.index[entry.ID] = entry
}

func (q *Queue) persist(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report queue entry")
	}
	key := fmt.Sprintf("%s%s", entryKeyPrefix, entry.ID)
	nextIndex := q.wal.CurrentIndex() + 1
	return q.wal.Write(nextIndex, key, data)
}
