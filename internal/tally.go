package internal

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/config"
	"github.com/vadiminshakov/tally/internal/services/event"
	"github.com/vadiminshakov/tally/internal/services/ledger"
	"github.com/vadiminshakov/tally/internal/services/report"
	"github.com/vadiminshakov/tally/internal/services/reportqueue"
	"github.com/vadiminshakov/tally/internal/services/snapshot"
)

// Tally wires the ledger, the report generator and the queue worker over one store.
type Tally struct {
	Ledger    *ledger.Ledger
	Generator *report.Generator
	Queue     *reportqueue.Queue
	Snapshots *snapshot.Importer
	Config    config.Config

	store  ledgerStore
	worker *reportqueue.Worker
	logger *zap.Logger
}

// NewTally opens the configured storage and builds the services on top of it.
func NewTally(ctx context.Context, conf config.Config, logger *zap.Logger) (*Tally, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(conf, logger.Named("store"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open store")
	}

	t, err := newTally(ctx, conf, logger, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return t, nil
}

func newTally(ctx context.Context, conf config.Config, logger *zap.Logger, store ledgerStore) (*Tally, error) {
	if err := store.SeedTypes(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to seed transaction types")
	}

	events, err := event.NewService(logger.Named("event"), store)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create event service")
	}

	queue, err := reportqueue.Open(logger.Named("queue"), conf.QueueDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open report queue")
	}

	ldg, err := ledger.NewLedger(logger.Named("ledger"), store, store, store, events, queue)
	if err != nil {
		_ = queue.Close()
		return nil, errors.Wrap(err, "failed to create ledger")
	}

	gen, err := report.NewGenerator(logger.Named("report"), store, store, store)
	if err != nil {
		_ = queue.Close()
		return nil, errors.Wrap(err, "failed to create report generator")
	}

	worker, err := reportqueue.NewWorker(logger.Named("worker"), queue, gen, store, reportqueue.WorkerConfig{
		PollInterval:     conf.PollInterval,
		MaxRetries:       conf.MaxRetries,
		RetryInterval:    conf.RetryInterval,
		MaxRetryInterval: conf.MaxRetryInterval,
	})
	if err != nil {
		_ = queue.Close()
		return nil, errors.Wrap(err, "failed to create report worker")
	}

	snapshots, err := snapshot.NewImporter(logger.Named("snapshot"), store)
	if err != nil {
		_ = queue.Close()
		return nil, errors.Wrap(err, "failed to create snapshot importer")
	}

	return &Tally{
		Ledger:    ldg,
		Generator: gen,
		Queue:     queue,
		Snapshots: snapshots,
		Config:    conf,
		store:     store,
		worker:    worker,
		logger:    logger,
	}, nil
}

// Run drains the report queue until ctx is done.
func (t *Tally) Run(ctx context.Context) error {
	t.logger.Info("starting report worker",
		zap.String("storage", t.Config.Storage),
		zap.Duration("poll_interval", t.Config.PollInterval))

	return t.worker.Run(ctx)
}

// Import loads the exchanges and report snapshots of a yaml file, then
// reruns the entries that waited for them.
func (t *Tally) Import(ctx context.Context, path string) (snapshot.Result, error) {
	res, err := t.Snapshots.ImportFile(ctx, path)
	if err != nil {
		return snapshot.Result{}, err
	}
	if err := t.worker.ProcessPending(ctx); err != nil {
		return res, errors.Wrap(err, "process queue after import")
	}
	return res, nil
}

// ProcessQueue handles the pending queue entries once.
func (t *Tally) ProcessQueue(ctx context.Context) error {
	return t.worker.ProcessPending(ctx)
}

// Close closes the queue and the store.
func (t *Tally) Close() error {
	return multierr.Combine(t.Queue.Close(), t.store.Close())
}
