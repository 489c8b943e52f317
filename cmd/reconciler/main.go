// Command reconciler periodically purges photos left unlinked by interrupted
// retouch completions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lensmarket/api/internal/di"
	"github.com/lensmarket/api/internal/platform/observability"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	baseLogger, err := observability.NewLogger("lensmarket-reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("reconciler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, release, err := di.LoadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	defer release()

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	sweeper, err := container.Reconciler()
	if err != nil {
		logger.Fatal("failed to build reconciler", zap.Error(err))
	}

	if *once {
		summary, err := sweeper.RunOnce(ctx)
		if err != nil {
			logger.Fatal("reconcile pass failed", zap.Error(err))
		}
		logger.Info("reconcile pass finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("deleted", summary.Deleted),
			zap.Int("relinked", summary.Relinked),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
		return
	}

	sweeper.Start(ctx)
	logger.Info("reconciler started", zap.Duration("interval", cfg.Reconciler.Interval))
	<-ctx.Done()
	logger.Info("shutdown signal received; stopping reconciler")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sweeper.Stop(stopCtx); err != nil {
		logger.Error("reconciler stop failed", zap.Error(err))
	}
}
