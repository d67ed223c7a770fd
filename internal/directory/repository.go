package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrLineNotFound marks a channel with no directory match. Callers
	// treat it as recoverable: the call log is still built, just without
	// that participant's identity.
	ErrLineNotFound = errors.New("no line matches channel identity")

	ErrTenantNotFound = errors.New("tenant does not exist")

	ErrInvalidResolutionResult = errors.New("invalid result type, it should be pointer to Resolution struct")
)

type DirectoryRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *DirectoryRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	// Lookup misses are routine and must not trip the breaker.
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrLineNotFound) || errors.Is(err, ErrTenantNotFound)
	}

	return &DirectoryRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// ResolveLine maps a "protocol/endpoint" channel identity to its owning
// user as of the given instant. Lines are matched case-insensitively and
// against their validity window, so a call replayed after a line was
// deleted still resolves to the user who held it at call time.
func (directoryRepository *DirectoryRepository) ResolveLine(
	ctx context.Context,
	identity string,
	asOf time.Time,
) (*Resolution, error) {
	result, err := directoryRepository.CircuitBreaker.Execute(func() (any, error) {
		var line Line

		err := directoryRepository.DBConn.WithContext(ctx).
			Where("LOWER(identity) = ?", strings.ToLower(identity)).
			Where("created_at <= ?", asOf).
			Where("deleted_at IS NULL OR deleted_at > ?", asOf).
			First(&line).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLineNotFound
		}

		if err != nil {
			logging.Logger.Error("[ResolveLine] Failed to fetch line - may cause circuit breaker trip",
				zap.String("identity", identity),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		resolution := &Resolution{
			LineID:     line.ID,
			TenantUUID: line.TenantUUID,
			Context:    line.Context,
			Extension:  line.Extension,
		}

		if line.UserUUID == nil {
			return resolution, nil
		}

		var user User

		err = directoryRepository.DBConn.WithContext(ctx).
			Where("uuid = ?", *line.UserUUID).
			First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resolution, nil
		}

		if err != nil {
			return nil, err
		}

		resolution.UserUUID = user.UUID
		resolution.UserName = strings.TrimSpace(user.Firstname + " " + user.Lastname)
		resolution.Tags = user.Tags()

		return resolution, nil
	})
	if err != nil {
		return nil, err
	}

	resolution, ok := result.(*Resolution)
	if !ok {
		return nil, ErrInvalidResolutionResult
	}

	return resolution, nil
}

// TenantExists checks that a tenant uuid is known.
func (directoryRepository *DirectoryRepository) TenantExists(ctx context.Context, tenantUUID string) error {
	_, err := directoryRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := directoryRepository.DBConn.WithContext(ctx).
			Model(&Tenant{}).
			Where("uuid = ?", tenantUUID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}

		if count == 0 {
			return nil, ErrTenantNotFound
		}

		return nil, nil
	})

	return err
}
