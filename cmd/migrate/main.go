// Command migrate applies the embedded Postgres schema migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lensmarket/api/internal/di"
	"github.com/lensmarket/api/internal/platform/observability"
	ppostgres "github.com/lensmarket/api/internal/platform/postgres"
	postgresRepo "github.com/lensmarket/api/internal/repositories/postgres"
)

func main() {
	baseLogger, err := observability.NewLogger("lensmarket-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, release, err := di.LoadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	defer release()

	pool, err := ppostgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	applied, err := ppostgres.Migrate(ctx, pool, postgresRepo.Migrations())
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err), zap.Strings("applied", applied))
	}
	logger.Info("migrations complete", zap.Strings("applied", applied))
}
