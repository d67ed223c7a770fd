package calllog

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCallLogResult    = errors.New("invalid result type, it should be pointer to CallLog struct")
	ErrInvalidRecordingsResult = errors.New("invalid result type, it should be slice of Recording struct")
)

type CallLogRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *CallLogRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &CallLogRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Create persists the call log with its participants, destination
// details and recordings, and stamps the consumed CEL rows, all in one
// transaction. A rollback leaves every CEL row unprocessed so the next
// tick can retry without producing a duplicate.
func (callLogRepository *CallLogRepository) Create(
	ctx context.Context,
	callLog *CallLog,
	celRowIDs []uint64,
) error {
	_, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		if callLog.UUID == "" {
			callLog.UUID = uuid.New().String()
		}

		for idx := range callLog.Recordings {
			if callLog.Recordings[idx].UUID == "" {
				callLog.Recordings[idx].UUID = uuid.New().String()
			}
		}

		err := callLogRepository.DBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Create(callLog).Error
			if err != nil {
				return err
			}

			return cel.MarkProcessed(tx, celRowIDs, callLog.ID)
		})
		if err != nil {
			logging.Logger.Error("[Create] Failed to persist call log - may cause circuit breaker trip",
				zap.String("conversation_id", callLog.ConversationID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return callLog, nil
	})

	return err
}

// GetByID fetches one call log with its child rows.
func (callLogRepository *CallLogRepository) GetByID(ctx context.Context, id uint) (*CallLog, error) {
	result, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		var callLog CallLog

		err := callLogRepository.DBConn.WithContext(ctx).
			Preload("Participants").
			Preload("Destinations").
			Preload("Recordings").
			Where("id = ?", id).
			First(&callLog).Error
		if err != nil {
			logging.Logger.Error("[GetByID] Failed to fetch call log",
				zap.Uint("call_log_id", id),
				zap.String("error", err.Error()),
				zap.Bool("is_record_not_found", errors.Is(err, gorm.ErrRecordNotFound)),
			)

			return nil, err
		}

		return &callLog, nil
	})
	if err != nil {
		return nil, err
	}

	callLog, ok := result.(*CallLog)
	if !ok {
		return nil, ErrInvalidCallLogResult
	}

	return callLog, nil
}

// AttachRecordings extends an already-persisted call log with segments
// discovered in a later CEL batch, marking those rows in the same
// transaction. The call log itself is never rewritten.
func (callLogRepository *CallLogRepository) AttachRecordings(
	ctx context.Context,
	callLogID uint,
	recordings []Recording,
	celRowIDs []uint64,
) error {
	_, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		err := callLogRepository.DBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for idx := range recordings {
				recordings[idx].CallLogID = callLogID

				if recordings[idx].UUID == "" {
					recordings[idx].UUID = uuid.New().String()
				}
			}

			if len(recordings) > 0 {
				err := tx.Create(&recordings).Error
				if err != nil {
					return err
				}
			}

			return cel.MarkProcessed(tx, celRowIDs, callLogID)
		})
		if err != nil {
			logging.Logger.Error("[AttachRecordings] Failed to extend call log",
				zap.Uint("call_log_id", callLogID),
				zap.Int("recordings", len(recordings)),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

// ListRecordingsWithPath pages through recordings that still reference a
// media object, ordered by id so a sweep can resume after afterID.
func (callLogRepository *CallLogRepository) ListRecordingsWithPath(
	ctx context.Context,
	afterID uint,
	limit int,
) ([]Recording, error) {
	result, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		var recordings []Recording

		err := callLogRepository.DBConn.WithContext(ctx).
			Where("path IS NOT NULL").
			Where("id > ?", afterID).
			Order("id ASC").
			Limit(limit).
			Find(&recordings).Error
		if err != nil {
			logging.Logger.Error("[ListRecordingsWithPath] Failed to fetch recordings",
				zap.Uint("after_id", afterID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return recordings, nil
	})
	if err != nil {
		return nil, err
	}

	recordings, ok := result.([]Recording)
	if !ok {
		return nil, ErrInvalidRecordingsResult
	}

	return recordings, nil
}

// ClearRecordingPath nulls the media path of a recording whose object is
// gone from the store.
func (callLogRepository *CallLogRepository) ClearRecordingPath(ctx context.Context, recordingUUID string) error {
	_, err := callLogRepository.CircuitBreaker.Execute(func() (any, error) {
		err := callLogRepository.DBConn.WithContext(ctx).
			Model(&Recording{}).
			Where("uuid = ?", recordingUUID).
			Update("path", nil).Error
		if err != nil {
			logging.Logger.Error("[ClearRecordingPath] Failed to clear recording path",
				zap.String("recording_uuid", recordingUUID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}
