package stats

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound marks an agent or queue id with no rows at all in the
	// caller's tenants. An id that exists but has no rows in range is not
	// an error; it aggregates to zeros.
	ErrNotFound = errors.New("no statistics rows for the given identifier")

	ErrInvalidAgentPeriodicResult = errors.New("invalid result type, it should be slice of AgentPeriodic struct")
	ErrInvalidQueuePeriodicResult = errors.New("invalid result type, it should be slice of QueuePeriodic struct")
	ErrInvalidCallOnQueueResult   = errors.New("invalid result type, it should be slice of CallOnQueue struct")
	ErrInvalidTimeResult          = errors.New("invalid result type, it should be time.Time")
)

type StatsRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *StatsRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	// Unknown ids are a caller mistake, not a database failure.
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNotFound)
	}

	return &StatsRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// AgentExists checks the agent id is known within the given tenants.
func (statsRepository *StatsRepository) AgentExists(
	ctx context.Context,
	tenantUUIDs []string,
	agentID uint64,
) error {
	_, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := statsRepository.DBConn.WithContext(ctx).
			Model(&StatAgent{}).
			Where("agent_id = ?", agentID).
			Where("tenant_uuid IN ?", tenantUUIDs).
			Count(&count).Error
		if err != nil {
			return nil, err
		}

		if count == 0 {
			return nil, ErrNotFound
		}

		return nil, nil
	})

	return err
}

// QueueExists checks the queue id is known within the given tenants.
func (statsRepository *StatsRepository) QueueExists(
	ctx context.Context,
	tenantUUIDs []string,
	queueID uint64,
) error {
	_, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := statsRepository.DBConn.WithContext(ctx).
			Model(&StatQueue{}).
			Where("queue_id = ?", queueID).
			Where("tenant_uuid IN ?", tenantUUIDs).
			Count(&count).Error
		if err != nil {
			return nil, err
		}

		if count == 0 {
			return nil, ErrNotFound
		}

		return nil, nil
	})

	return err
}

// GetAgentPeriodic loads the agent periodic rows of [from, until),
// scoped to the tenants and optionally to one agent id.
func (statsRepository *StatsRepository) GetAgentPeriodic(
	ctx context.Context,
	tenantUUIDs []string,
	agentID *uint64,
	from, until time.Time,
) ([]AgentPeriodic, error) {
	result, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []AgentPeriodic

		query := statsRepository.DBConn.WithContext(ctx).
			Joins("JOIN stat_agent ON stat_agent.id = stat_agent_periodic.stat_agent_id").
			Where("stat_agent.tenant_uuid IN ?", tenantUUIDs).
			Where("stat_agent_periodic.time >= ? AND stat_agent_periodic.time < ?", from, until)

		if agentID != nil {
			query = query.Where("stat_agent.agent_id = ?", *agentID)
		}

		err := query.Order("stat_agent_periodic.time ASC").Find(&rows).Error
		if err != nil {
			logging.Logger.Error("[GetAgentPeriodic] Failed to fetch rows - may cause circuit breaker trip",
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

	rows, ok := result.([]AgentPeriodic)
	if !ok {
		return nil, ErrInvalidAgentPeriodicResult
	}

	return rows, nil
}

// GetQueuePeriodic loads the queue periodic rows of [from, until).
func (statsRepository *StatsRepository) GetQueuePeriodic(
	ctx context.Context,
	tenantUUIDs []string,
	queueID *uint64,
	from, until time.Time,
) ([]QueuePeriodic, error) {
	result, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []QueuePeriodic

		query := statsRepository.DBConn.WithContext(ctx).
			Joins("JOIN stat_queue ON stat_queue.id = stat_queue_periodic.stat_queue_id").
			Where("stat_queue.tenant_uuid IN ?", tenantUUIDs).
			Where("stat_queue_periodic.time >= ? AND stat_queue_periodic.time < ?", from, until)

		if queueID != nil {
			query = query.Where("stat_queue.queue_id = ?", *queueID)
		}

		err := query.Order("stat_queue_periodic.time ASC").Find(&rows).Error
		if err != nil {
			logging.Logger.Error("[GetQueuePeriodic] Failed to fetch rows - may cause circuit breaker trip",
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

	rows, ok := result.([]QueuePeriodic)
	if !ok {
		return nil, ErrInvalidQueuePeriodicResult
	}

	return rows, nil
}

// GetCallsOnQueue loads the call-level rows of [from, until).
func (statsRepository *StatsRepository) GetCallsOnQueue(
	ctx context.Context,
	tenantUUIDs []string,
	queueID *uint64,
	from, until time.Time,
) ([]CallOnQueue, error) {
	result, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var rows []CallOnQueue

		query := statsRepository.DBConn.WithContext(ctx).
			Joins("JOIN stat_queue ON stat_queue.id = stat_call_on_queue.stat_queue_id").
			Where("stat_queue.tenant_uuid IN ?", tenantUUIDs).
			Where("stat_call_on_queue.time >= ? AND stat_call_on_queue.time < ?", from, until)

		if queueID != nil {
			query = query.Where("stat_queue.queue_id = ?", *queueID)
		}

		err := query.Order("stat_call_on_queue.time ASC").Find(&rows).Error
		if err != nil {
			logging.Logger.Error("[GetCallsOnQueue] Failed to fetch rows - may cause circuit breaker trip",
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

	rows, ok := result.([]CallOnQueue)
	if !ok {
		return nil, ErrInvalidCallOnQueueResult
	}

	return rows, nil
}

// OldestAgentTime is the time of the oldest agent periodic row visible
// to the tenants, used as the default range start.
func (statsRepository *StatsRepository) OldestAgentTime(
	ctx context.Context,
	tenantUUIDs []string,
) (time.Time, error) {
	return statsRepository.oldestTime(ctx, &AgentPeriodic{},
		"JOIN stat_agent ON stat_agent.id = stat_agent_periodic.stat_agent_id",
		"stat_agent.tenant_uuid IN ?", "stat_agent_periodic.time", tenantUUIDs)
}

// OldestQueueTime is the time of the oldest queue periodic row visible
// to the tenants.
func (statsRepository *StatsRepository) OldestQueueTime(
	ctx context.Context,
	tenantUUIDs []string,
) (time.Time, error) {
	return statsRepository.oldestTime(ctx, &QueuePeriodic{},
		"JOIN stat_queue ON stat_queue.id = stat_queue_periodic.stat_queue_id",
		"stat_queue.tenant_uuid IN ?", "stat_queue_periodic.time", tenantUUIDs)
}

func (statsRepository *StatsRepository) oldestTime(
	ctx context.Context,
	model any,
	join, tenantClause, timeColumn string,
	tenantUUIDs []string,
) (time.Time, error) {
	result, err := statsRepository.CircuitBreaker.Execute(func() (any, error) {
		var oldest *time.Time

		err := statsRepository.DBConn.WithContext(ctx).
			Model(model).
			Select("MIN(" + timeColumn + ")").
			Joins(join).
			Where(tenantClause, tenantUUIDs).
			Scan(&oldest).Error
		if err != nil {
			return nil, err
		}

		if oldest == nil {
			return nil, ErrNotFound
		}

		return *oldest, nil
	})
	if err != nil {
		return time.Time{}, err
	}

	oldest, ok := result.(time.Time)
	if !ok {
		return time.Time{}, ErrInvalidTimeResult
	}

	return oldest, nil
}
