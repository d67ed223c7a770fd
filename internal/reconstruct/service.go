package reconstruct

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrIncompleteCorrelationSet marks a set whose LINKEDID_END has not
	// arrived yet. Callers defer the set; it is not a failure.
	ErrIncompleteCorrelationSet = errors.New("correlation set has no terminal marker yet")

	// ErrNothingToProcess marks a correlation key with no unprocessed rows.
	ErrNothingToProcess = errors.New("no unprocessed CEL rows for correlation key")
)

// LineResolver is the directory collaborator: it maps a channel identity
// to the user holding it at call time.
type LineResolver interface {
	ResolveLine(ctx context.Context, identity string, asOf time.Time) (*directory.Resolution, error)
}

type Service struct {
	CELRepository     *cel.CELRepository
	CallLogRepository *calllog.CallLogRepository
	Resolver          LineResolver
}

func NewService(dbConn *gorm.DB) *Service {
	return &Service{
		CELRepository:     cel.NewRepository(dbConn),
		CallLogRepository: calllog.NewRepository(dbConn),
		Resolver:          directory.NewRepository(dbConn),
	}
}

// Generate rebuilds the call behind one correlation key. It returns the
// created call log and the number of CEL rows consumed; the call log is
// nil when the set merely extended an existing one with late recordings.
func (service *Service) Generate(ctx context.Context, linkedID string) (*calllog.CallLog, int, error) {
	return service.generate(ctx, linkedID)
}

func (service *Service) generate(ctx context.Context, linkedID string) (*calllog.CallLog, int, error) {
	rows, err := service.CELRepository.GetByLinkedID(ctx, linkedID)
	if err != nil {
		return nil, 0, err
	}

	pending, existingCallLogID := splitProcessed(rows)
	if len(pending) == 0 {
		return nil, 0, ErrNothingToProcess
	}

	if existingCallLogID != nil {
		// A prior batch already built this call; late rows can only
		// contribute recordings.
		return nil, len(pending), service.extend(ctx, *existingCallLogID, pending)
	}

	t := timeline.Build(pending)
	if !t.HasTerminalMarker() {
		return nil, 0, ErrIncompleteCorrelationSet
	}

	builder := newBuilder(service.Resolver, t)

	callLog, err := builder.build(ctx)
	if err != nil {
		return nil, 0, err
	}

	err = service.CallLogRepository.Create(ctx, callLog, rowIDs(pending))
	if err != nil {
		return nil, 0, err
	}

	logging.Logger.Info("call log created",
		zap.String("linked_id", linkedID),
		zap.String("call_log_uuid", callLog.UUID),
		zap.String("direction", callLog.Direction),
		zap.Int("participants", len(callLog.Participants)),
		zap.Int("recordings", len(callLog.Recordings)),
	)

	return callLog, len(pending), nil
}

// BatchResult summarizes one catch-up run.
type BatchResult struct {
	CallLogsCreated int
	RowsConsumed    int
	Deferred        int
}

// GenerateFromCelBatch processes the oldest unprocessed rows, bounded by
// maxRows. Failures are isolated per correlation key: one broken set
// never blocks the rest of the batch.
func (service *Service) GenerateFromCelBatch(ctx context.Context, maxRows int) (*BatchResult, error) {
	linkedIDs, err := service.CELRepository.UnprocessedLinkedIDs(ctx, maxRows)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}

	for _, linkedID := range linkedIDs {
		callLog, consumed, err := service.generate(ctx, linkedID)

		switch {
		case errors.Is(err, ErrIncompleteCorrelationSet):
			result.Deferred++
		case errors.Is(err, ErrNothingToProcess):
		case err != nil:
			logging.Logger.Error("failed to rebuild call, leaving CEL rows unprocessed",
				zap.String("linked_id", linkedID),
				zap.String("error", err.Error()),
			)
		default:
			result.RowsConsumed += consumed

			if callLog != nil {
				result.CallLogsCreated++
			}
		}
	}

	return result, nil
}

func (service *Service) extend(ctx context.Context, callLogID uint, pending []cel.CEL) error {
	t := timeline.Build(pending)

	recordings := correlateRecordings(t)

	err := service.CallLogRepository.AttachRecordings(ctx, callLogID, recordings, rowIDs(pending))
	if err != nil {
		return err
	}

	logging.Logger.Info("extended existing call log",
		zap.Uint("call_log_id", callLogID),
		zap.Int("recordings", len(recordings)),
		zap.Int("cel_rows", len(pending)),
	)

	return nil
}

// splitProcessed separates unprocessed rows from ones already consumed,
// and surfaces the call log a previous run built, if any.
func splitProcessed(rows []cel.CEL) ([]cel.CEL, *uint) {
	var pending []cel.CEL

	var existing *uint

	for _, row := range rows {
		if row.CallLogID != nil {
			existing = row.CallLogID
			continue
		}

		pending = append(pending, row)
	}

	return pending, existing
}

func rowIDs(rows []cel.CEL) []uint64 {
	ids := make([]uint64, len(rows))
	for idx, row := range rows {
		ids[idx] = row.ID
	}

	return ids
}
