package main

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/ahsoka"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/prometheus"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	// The daemon owns the unprocessed row set for its whole lifetime;
	// batch catch-up runs must fail fast instead of racing it.
	lockConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Fatal("failed to connect for advisory lock", zap.String("error", err.Error()))
	}

	advisoryLock := lock.New(lock.ReconstructLockKey)

	err = advisoryLock.Acquire(context.Background(), lockConn)
	if err != nil {
		logging.Logger.Fatal("failed to acquire reconstruct lock", zap.String("error", err.Error()))
	}

	defer func() {
		err := advisoryLock.Release(context.Background())
		if err != nil {
			logging.Logger.Error("failed to release reconstruct lock", zap.String("error", err.Error()))
		}
	}()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := ahsoka.NewApp(cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create ahsoka app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}
