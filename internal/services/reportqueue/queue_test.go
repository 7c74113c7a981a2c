package reportqueue

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

func openTestQueue(t *testing.T, dir string) *Queue {
	q, err := Open(zap.NewNop(), dir)
	require.NoError(t, err)
	return q
}

func testEvent(id string) domain.Event {
	return domain.Event{
		ID:     id,
		UserID: "user-1",
		Kind:   domain.EventKindPayIn,
		Date:   time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestQueue_AddAndPending(t *testing.T) {
	q := openTestQueue(t, t.TempDir())
	defer q.Close()

	require.NoError(t, q.Add(context.Background(), testEvent("ev-1")))
	require.NoError(t, q.Add(context.Background(), testEvent("ev-2")))

	pending := q.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, "ev-1", pending[0].Event.ID)
	require.Equal(t, "ev-2", pending[1].Event.ID)
	require.Equal(t, StatusPending, pending[0].Status)

	require.Error(t, q.Add(context.Background(), domain.Event{}), "event without id is rejected")
}

func TestQueue_StatusSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	q := openTestQueue(t, dir)
	require.NoError(t, q.Add(context.Background(), testEvent("ev-1")))
	require.NoError(t, q.Add(context.Background(), testEvent("ev-2")))
	require.NoError(t, q.Add(context.Background(), testEvent("ev-3")))

	pending := q.Pending()
	require.NoError(t, q.MarkDone(pending[0].ID, 1))
	require.NoError(t, q.MarkFailed(pending[1].ID, 3, errors.New("no reports yet")))
	require.NoError(t, q.Close())

	reopened := openTestQueue(t, dir)
	defer reopened.Close()

	left := reopened.Pending()
	require.Len(t, left, 1)
	require.Equal(t, "ev-3", left[0].Event.ID)

	failed, ok := reopened.Get(pending[1].ID)
	require.True(t, ok)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, 3, failed.Attempts)
	require.Equal(t, "no reports yet", failed.Error)

	done, ok := reopened.Get(pending[0].ID)
	require.True(t, ok)
	require.Equal(t, StatusDone, done.Status)
}

func TestQueue_UpdateUnknownEntry(t *testing.T) {
	q := openTestQueue(t, t.TempDir())
	defer q.Close()

	require.Error(t, q.MarkDone("missing", 1))
}

func TestQueue_DeferredEntryStaysPending(t *testing.T) {
	dir := t.TempDir()

	q := openTestQueue(t, dir)
	require.NoError(t, q.Add(context.Background(), testEvent("ev-1")))
	id := q.Pending()[0].ID

	require.NoError(t, q.MarkDeferred(id, 2, []string{"ex-1"}, errors.New("REPORT_NOT_FOUND: EUR")))
	require.NoError(t, q.MarkDeferred(id, 1, []string{"ex-1", "ex-2"}, nil))
	require.NoError(t, q.Close())

	reopened := openTestQueue(t, dir)
	defer reopened.Close()

	pending := reopened.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 3, pending[0].Attempts)
	require.Equal(t, []string{"ex-1", "ex-2"}, pending[0].Generated)
	require.Equal(t, "REPORT_NOT_FOUND: EUR", pending[0].Error)

	require.NoError(t, reopened.MarkDone(id, 1))
	done, _ := reopened.Get(id)
	require.Equal(t, StatusDone, done.Status)
	require.Equal(t, 4, done.Attempts)
	require.Empty(t, done.Error)
}
