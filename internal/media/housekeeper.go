package media

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"go.uber.org/zap"
)

const sweepPageSize = 500

// Housekeeper reconciles recording rows with the media store: a row
// whose object is gone gets its path nulled so consumers stop offering
// a download that would fail.
type Housekeeper struct {
	Client            *MediaClient
	CallLogRepository *calllog.CallLogRepository
}

func NewHousekeeper(client *MediaClient, callLogRepository *calllog.CallLogRepository) *Housekeeper {
	return &Housekeeper{
		Client:            client,
		CallLogRepository: callLogRepository,
	}
}

// Sweep walks every recording still referencing a media object and
// clears the ones whose object no longer exists. It returns the number
// of cleared rows.
func (housekeeper *Housekeeper) Sweep(ctx context.Context) (int, error) {
	cleared := 0

	var afterID uint

	for {
		recordings, err := housekeeper.CallLogRepository.ListRecordingsWithPath(ctx, afterID, sweepPageSize)
		if err != nil {
			return cleared, err
		}

		if len(recordings) == 0 {
			return cleared, nil
		}

		for _, recording := range recordings {
			afterID = recording.ID

			if recording.Path == nil {
				continue
			}

			err = housekeeper.Client.Exists(ctx, *recording.Path)
			if err == nil {
				continue
			}

			if !errors.Is(err, ErrObjectNotFound) {
				// Store trouble; leave the row alone rather than lying
				// about the media being gone.
				logging.Logger.Warn("skipping recording, media store unavailable",
					zap.String("recording_uuid", recording.UUID),
					zap.String("error", err.Error()),
				)

				continue
			}

			err = housekeeper.CallLogRepository.ClearRecordingPath(ctx, recording.UUID)
			if err != nil {
				return cleared, err
			}

			cleared++

			logging.Logger.Info("cleared path of deleted recording",
				zap.String("recording_uuid", recording.UUID),
				zap.String("path", *recording.Path),
			)
		}
	}
}
