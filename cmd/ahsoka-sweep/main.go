// ahsoka-sweep reconciles recording rows with the media store: rows
// whose object was deleted from the bucket get their path nulled.
package main

import (
	"context"
	"os"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/media"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	circuitbreak.Init()

	// One-shot run; nobody restarts us, so just log break events.
	go func() {
		for service := range circuitbreak.CircuitBreakChan {
			logging.Logger.Error("circuit breaker opened during sweep", zap.String("service", service))
		}
	}()

	ctx := context.Background()

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("failed to connect to database", zap.String("error", err.Error()))
		return 1
	}

	mediaClient, err := media.NewMediaClient(circuitbreak.MediaService)
	if err != nil {
		logging.Logger.Error("failed to connect to media store", zap.String("error", err.Error()))
		return 1
	}

	housekeeper := media.NewHousekeeper(mediaClient, calllog.NewRepository(dbConn))

	cleared, err := housekeeper.Sweep(ctx)
	if err != nil {
		logging.Logger.Error("sweep failed",
			zap.Int("cleared_before_failure", cleared),
			zap.String("error", err.Error()),
		)

		return 1
	}

	logging.Logger.Info("sweep complete", zap.Int("recordings_cleared", cleared))

	return 0
}
