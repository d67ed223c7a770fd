package cel

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCELSliceResult  = errors.New("invalid result type, it should be slice of CEL")
	ErrInvalidLinkedIDsResult = errors.New("invalid result type, it should be slice of string")
	ErrInvalidRowCountResult  = errors.New("invalid result type, it should be int64")
)

type CELRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *CELRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &CELRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// GetByLinkedID fetches every CEL row of one correlation set, ordered by
// event time with unique id and insertion order as tie breakers. Channel
// ids do not sort chronologically as text, so event time leads.
func (celRepository *CELRepository) GetByLinkedID(ctx context.Context, linkedID string) ([]CEL, error) {
	result, err := celRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []CEL

		err := celRepository.DBConn.WithContext(ctx).
			Where("linkedid = ?", linkedID).
			Order("eventtime ASC, uniqueid ASC, id ASC").
			Find(&rows).Error
		if err != nil {
			logging.Logger.Error("[GetByLinkedID] Failed to fetch CEL rows - may cause circuit breaker trip",
				zap.String("linked_id", linkedID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	rows, ok := result.([]CEL)
	if !ok {
		return nil, ErrInvalidCELSliceResult
	}

	return rows, nil
}

// UnprocessedLinkedIDs returns the correlation keys of the oldest
// unprocessed rows, bounded by maxRows rows scanned, oldest first.
func (celRepository *CELRepository) UnprocessedLinkedIDs(ctx context.Context, maxRows int) ([]string, error) {
	result, err := celRepository.CircuitBreaker.Execute(func() (any, error) {
		var linkedIDs []string

		err := celRepository.DBConn.WithContext(ctx).
			Model(&CEL{}).
			Select("linkedid").
			Where("id IN (?)", celRepository.DBConn.
				Model(&CEL{}).
				Select("id").
				Where("call_log_id IS NULL").
				Order("eventtime ASC, id ASC").
				Limit(maxRows),
			).
			Group("linkedid").
			Order("MIN(eventtime) ASC").
			Pluck("linkedid", &linkedIDs).Error
		if err != nil {
			logging.Logger.Error("[UnprocessedLinkedIDs] Failed to scan unprocessed CEL rows",
				zap.Int("max_rows", maxRows),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return linkedIDs, nil
	})
	if err != nil {
		return nil, err
	}

	linkedIDs, ok := result.([]string)
	if !ok {
		return nil, ErrInvalidLinkedIDsResult
	}

	return linkedIDs, nil
}

// CountUnprocessed counts rows not yet consumed into a call log.
func (celRepository *CELRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	result, err := celRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := celRepository.DBConn.WithContext(ctx).
			Model(&CEL{}).
			Where("call_log_id IS NULL").
			Count(&count).Error
		if err != nil {
			logging.Logger.Error("[CountUnprocessed] Failed to count unprocessed CEL rows",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return count, nil
	})
	if err != nil {
		return 0, err
	}

	count, ok := result.(int64)
	if !ok {
		return 0, ErrInvalidRowCountResult
	}

	return count, nil
}

// MarkProcessed stamps the given rows with the call log that consumed
// them. It runs on the caller's transaction handle so the stamp commits
// or rolls back with the call log itself.
func MarkProcessed(tx *gorm.DB, rowIDs []uint64, callLogID uint) error {
	if len(rowIDs) == 0 {
		return nil
	}

	return tx.Model(&CEL{}).
		Where("id IN ?", rowIDs).
		Update("call_log_id", callLogID).Error
}
