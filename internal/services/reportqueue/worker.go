package reportqueue

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
	"github.com/vadiminshakov/tally/pkg/retrier"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultRetryInterval    = time.Second
	defaultMaxRetryInterval = 30 * time.Second
)

type generator interface {
	Generate(ctx context.Context, user domain.User, exchange domain.Exchange, dateTime time.Time) (*domain.ReportB, error)
}

type exchangeResolver interface {
	// ExchangesForUser lists the exchanges the user has upstream reports on.
	ExchangesForUser(ctx context.Context, userID string) ([]domain.Exchange, error)
}

// Worker folds pending events into report rows, one row per exchange of the user.
type Worker struct {
	l            *zap.Logger
	queue        *Queue
	generator    generator
	exchanges    exchangeResolver
	retrier      *retrier.Retrier
	pollInterval time.Duration
}

// WorkerConfig tunes polling and per-entry retries.
type WorkerConfig struct {
	PollInterval     time.Duration
	MaxRetries       int
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// NewWorker returns a worker draining queue.
func NewWorker(l *zap.Logger, queue *Queue, gen generator, exchanges exchangeResolver, cfg WorkerConfig) (*Worker, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if queue == nil || gen == nil || exchanges == nil {
		return nil, errors.New("queue, generator and exchange resolver are required")
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	maxRetryInterval := cfg.MaxRetryInterval
	if maxRetryInterval <= 0 {
		maxRetryInterval = defaultMaxRetryInterval
	}
	if maxRetryInterval < retryInterval {
		maxRetryInterval = retryInterval
	}

	r := retrier.New(
		retrier.WithMaxRetries(cfg.MaxRetries),
		retrier.WithInitialInterval(retryInterval),
		retrier.WithMaxInterval(maxRetryInterval),
		retrier.WithRetryIf(isRetryable),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			l.Warn("report generation failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)

	return &Worker{
		l:            l,
		queue:        queue,
		generator:    gen,
		exchanges:    exchanges,
		retrier:      r,
		pollInterval: pollInterval,
	}, nil
}

// Run drains the queue every poll interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.ProcessPending(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessPending handles every pending entry once. Entry failures are recorded
// in the journal; only journal write errors and cancellation are returned.
func (w *Worker) ProcessPending(ctx context.Context) error {
	pending := w.queue.Pending()
	if len(pending) == 0 {
		return nil
	}

	w.l.Info("processing queued report events", zap.Int("count", len(pending)))

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return nil
		}

		attempts, generated, err := w.process(ctx, entry)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			if isMissingSnapshot(err) {
				// snapshots may still be on their way; the next poll tries again
				w.l.Info("report snapshots not available yet, entry stays pending",
					zap.String("entry", entry.ID),
					zap.String("event", entry.Event.ID),
					zap.Error(err))

				if deferErr := w.queue.MarkDeferred(entry.ID, attempts, generated, err); deferErr != nil {
					return errors.Wrapf(deferErr, "defer entry %s", entry.ID)
				}
				continue
			}

			w.l.Error("failed to process queued event",
				zap.String("entry", entry.ID),
				zap.String("event", entry.Event.ID),
				zap.Error(err))

			if markErr := w.queue.MarkFailed(entry.ID, attempts, err); markErr != nil {
				return errors.Wrapf(markErr, "mark entry %s failed", entry.ID)
			}
			continue
		}

		if err := w.queue.MarkDone(entry.ID, attempts); err != nil {
			return errors.Wrapf(err, "mark entry %s done", entry.ID)
		}
	}

	return nil
}

// process writes the row of every exchange of the user that is not in
// entry.Generated yet. It returns the attempts made and the exchanges reported so far.
func (w *Worker) process(ctx context.Context, entry Entry) (int, []string, error) {
	attempts := 0
	user := domain.User{ID: entry.Event.UserID}

	generated := append([]string(nil), entry.Generated...)
	done := make(map[string]bool, len(generated))
	for _, id := range generated {
		done[id] = true
	}

	err := w.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++

		exchanges, err := w.exchanges.ExchangesForUser(ctx, user.ID)
		if err != nil {
			return errors.Wrapf(err, "list exchanges of user %s", user.ID)
		}
		if len(exchanges) == 0 {
			return &domain.NotFoundError{Code: domain.CodeReportNotFound, Key: "exchanges of user " + user.ID}
		}

		for _, exchange := range exchanges {
			if done[exchange.ID] {
				continue
			}
			if _, err := w.generator.Generate(ctx, user, exchange, entry.Event.Date); err != nil {
				return errors.Wrapf(err, "generate report on %s", exchange.Title)
			}
			done[exchange.ID] = true
			generated = append(generated, exchange.ID)
		}
		return nil
	})

	return attempts, generated, err
}

// isRetryable treats configuration defects and fee mismatches as permanent.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if domain.IsIncorrectFee(err) {
		return false
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) && notFound.Code == domain.CodeTransactionTypeNotFound {
		return false
	}
	return true
}

// isMissingSnapshot reports whether err means the upstream snapshots the row
// is computed from do not exist yet.
func isMissingSnapshot(err error) bool {
	var notFound *domain.NotFoundError
	return errors.As(err, &notFound) && notFound.Code == domain.CodeReportNotFound
}
