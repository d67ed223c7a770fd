package stats

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/interval"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Request bounds one statistics query. From and Until are optional:
// Until defaults to midnight at the start of tomorrow in the target
// timezone, From to the oldest visible periodic row.
type Request struct {
	TenantUUIDs []string
	From        *time.Time
	Until       *time.Time
	Interval    string
	Timezone    *time.Location
	DayStart    *interval.TimeOfDay
	DayEnd      *interval.TimeOfDay
	WeekDays    []time.Weekday
}

// AgentRequest optionally narrows the query to one agent.
type AgentRequest struct {
	Request
	AgentID *uint64
}

// QueueRequest optionally narrows the query to one queue and selects
// the QoS mode: single threshold, histogram thresholds, or neither.
type QueueRequest struct {
	Request
	QueueID       *uint64
	QoSThreshold  *int64
	QoSThresholds []int64
}

type Service struct {
	Repository *StatsRepository
}

func NewService(dbConn *gorm.DB) *Service {
	return &Service{Repository: NewRepository(dbConn)}
}

// GetAgentInterval aggregates agent activity per bucket. With an agent
// id set, an id unknown in the caller's tenants fails with ErrNotFound;
// a known id with no rows in range still yields zero-valued buckets.
func (service *Service) GetAgentInterval(ctx context.Context, request AgentRequest) ([]AgentStatItem, error) {
	if request.AgentID != nil {
		err := service.Repository.AgentExists(ctx, request.TenantUUIDs, *request.AgentID)
		if err != nil {
			return nil, err
		}
	}

	opts, err := service.resolveRange(ctx, request.Request, service.Repository.OldestAgentTime)
	if err != nil {
		return nil, err
	}

	buckets, err := interval.Generate(opts)
	if err != nil {
		return nil, err
	}

	rows, err := service.Repository.GetAgentPeriodic(ctx, request.TenantUUIDs, request.AgentID, opts.From, opts.Until)
	if err != nil {
		return nil, err
	}

	items := make([]AgentStatItem, len(buckets))
	for idx, bucket := range buckets {
		items[idx] = aggregateAgent(bucket, rows, opts)
	}

	return items, nil
}

// GetQueueInterval aggregates queue counters and call-level metrics per
// bucket. Periodic and call rows are fetched concurrently.
func (service *Service) GetQueueInterval(ctx context.Context, request QueueRequest) ([]QueueStatItem, error) {
	if request.QueueID != nil {
		err := service.Repository.QueueExists(ctx, request.TenantUUIDs, *request.QueueID)
		if err != nil {
			return nil, err
		}
	}

	opts, err := service.resolveRange(ctx, request.Request, service.Repository.OldestQueueTime)
	if err != nil {
		return nil, err
	}

	buckets, err := interval.Generate(opts)
	if err != nil {
		return nil, err
	}

	var (
		periodic []QueuePeriodic
		calls    []CallOnQueue
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		periodic, err = service.Repository.GetQueuePeriodic(
			groupCtx, request.TenantUUIDs, request.QueueID, opts.From, opts.Until)

		return err
	})

	group.Go(func() error {
		var err error
		calls, err = service.Repository.GetCallsOnQueue(
			groupCtx, request.TenantUUIDs, request.QueueID, opts.From, opts.Until)

		return err
	})

	err = group.Wait()
	if err != nil {
		return nil, err
	}

	items := make([]QueueStatItem, len(buckets))
	for idx, bucket := range buckets {
		items[idx] = aggregateQueue(bucket, periodic, calls, opts, request.QoSThreshold, request.QoSThresholds)
	}

	return items, nil
}

type oldestTimeFunc func(ctx context.Context, tenantUUIDs []string) (time.Time, error)

// resolveRange fills the missing range ends and shapes the interval
// options.
func (service *Service) resolveRange(
	ctx context.Context,
	request Request,
	oldest oldestTimeFunc,
) (interval.Options, error) {
	location := request.Timezone
	if location == nil {
		location = time.UTC
	}

	opts := interval.Options{
		Interval: request.Interval,
		Location: location,
		DayStart: request.DayStart,
		DayEnd:   request.DayEnd,
		WeekDays: request.WeekDays,
	}

	if request.Until != nil {
		opts.Until = *request.Until
	} else {
		opts.Until = interval.DefaultUntil(time.Now(), location)
	}

	if request.From != nil {
		opts.From = *request.From
		return opts, nil
	}

	from, err := oldest(ctx, request.TenantUUIDs)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No rows at all; a single empty day keeps the response shape.
			opts.From = opts.Until.In(location).AddDate(0, 0, -1)
			return opts, nil
		}

		return interval.Options{}, err
	}

	opts.From = from

	return opts, nil
}
