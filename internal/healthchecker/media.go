package healthchecker

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/media"
	"go.uber.org/zap"
)

var probeObjectKey = "healthcheck/probe"

func CheckMedia() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mediaClient, err := media.NewMediaClient(circuitbreak.MediaService)
	if err != nil {
		logging.Logger.Error("failed to create new media client", zap.String("error", err.Error()))
		return err
	}

	// The probe object does not have to exist; a clean not-found answer
	// proves the store is reachable.
	err = mediaClient.Exists(ctx, probeObjectKey)
	if errors.Is(err, media.ErrObjectNotFound) {
		return nil
	}

	return err
}
