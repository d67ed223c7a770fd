// ahsoka-batch is the bounded catch-up driver: it rebuilds call logs
// from unprocessed CEL rows without the bus, for migrations and for
// recovering from daemon downtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/reconstruct"
	"go.uber.org/zap"
)

const (
	exitOK             = 0
	exitNothingToDo    = 2
	exitRowsOverBudget = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	celCount := flag.Int("cel-count", config.Conf.BatchCelMax, "maximum number of unprocessed CEL rows to consume")
	flag.Parse()

	ctx := context.Background()

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("failed to connect to database", zap.String("error", err.Error()))
		return 1
	}

	advisoryLock := lock.New(lock.ReconstructLockKey)

	err = advisoryLock.Acquire(ctx, dbConn)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyHeld) {
			fmt.Fprintln(os.Stderr, "An other instance of ourself is probably running")
			return 1
		}

		logging.Logger.Error("failed to acquire reconstruct lock", zap.String("error", err.Error()))

		return 1
	}

	defer func() {
		err := advisoryLock.Release(ctx)
		if err != nil {
			logging.Logger.Error("failed to release reconstruct lock", zap.String("error", err.Error()))
		}
	}()

	service := reconstruct.NewService(dbConn)

	unprocessed, err := service.CELRepository.CountUnprocessed(ctx)
	if err != nil {
		logging.Logger.Error("failed to count unprocessed CEL rows", zap.String("error", err.Error()))
		return 1
	}

	if unprocessed == 0 {
		logging.Logger.Info("nothing to do, no unprocessed CEL rows")
		return exitNothingToDo
	}

	result, err := service.GenerateFromCelBatch(ctx, *celCount)
	if err != nil {
		logging.Logger.Error("batch run failed", zap.String("error", err.Error()))
		return 1
	}

	logging.Logger.Info("batch run complete",
		zap.Int("call_logs_created", result.CallLogsCreated),
		zap.Int("cel_rows_consumed", result.RowsConsumed),
		zap.Int("deferred_sets", result.Deferred),
	)

	if unprocessed > int64(*celCount) {
		logging.Logger.Warn("more unprocessed CEL rows remain than the configured maximum",
			zap.Int64("unprocessed", unprocessed),
			zap.Int("cel_count", *celCount),
		)

		return exitRowsOverBudget
	}

	return exitOK
}
