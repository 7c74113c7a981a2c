// Command tally runs the transaction ledger and its report queue worker.
// It is configured with a YAML file or command-line flags.
//
// Usage:
//
//	tally --config tally.yaml
//	tally --setup            (interactive wizard, writes tally.gen.yaml)
//	tally --storage sqlite --dsn tally.db
//	tally --config tally.yaml --import snapshots.yaml
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tally/config"
	"github.com/vadiminshakov/tally/internal"
	"github.com/vadiminshakov/tally/internal/setup"
)

func main() {
	conf, err := config.Get(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if conf.Setup {
		path, err := setup.RunTUI(conf.Path)
		if err != nil {
			log.Fatal(err)
		}
		if conf, err = config.FromFile(path); err != nil {
			log.Fatal(err)
		}
	}

	zapConf := zap.NewProductionConfig()
	zapConf.Level = zap.NewAtomicLevelAt(conf.LogLevel)
	logger, err := zapConf.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tl, err := internal.NewTally(ctx, conf, logger)
	if err != nil {
		logger.Fatal("failed to start tally", zap.Error(err))
	}
	defer func() {
		if err := tl.Close(); err != nil {
			logger.Error("failed to close tally", zap.Error(err))
		}
	}()

	if conf.Import != "" {
		res, err := tl.Import(ctx, conf.Import)
		if err != nil {
			_ = tl.Close()
			logger.Fatal("import failed", zap.String("file", conf.Import), zap.Error(err))
		}
		logger.Info("import finished",
			zap.String("file", conf.Import),
			zap.Int("exchanges", res.Exchanges),
			zap.Int("reports", res.Reports))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tl.Run(gctx)
	})

	logger.Info("started", zap.String("storage", conf.Storage), zap.String("config", conf.Path))

	if err := g.Wait(); err != nil {
		logger.Error("report worker stopped", zap.Error(err))
	}

	logger.Info("stopped")
}
