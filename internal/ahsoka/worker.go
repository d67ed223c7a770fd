package ahsoka

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	prometheusAhsoka "git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/reconstruct"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const streamDriver = "stream"

// CelEndedMessage is the end-of-call notification published by the
// switch connector when a correlation set terminates.
type CelEndedMessage struct {
	LinkedID   string `json:"linked_id"`
	TenantUUID string `json:"tenant_uuid"`
	CreatedAt  string `json:"created_at"`
}

// CallLogCreatedMessage is published for every call log this service
// creates; export and webhook consumers feed on it.
type CallLogCreatedMessage struct {
	UUID           string     `json:"uuid"`
	TenantUUID     string     `json:"tenant_uuid"`
	ConversationID string     `json:"conversation_id"`
	Direction      string     `json:"direction"`
	Date           time.Time  `json:"date"`
	DateAnswer     *time.Time `json:"date_answer,omitempty"`
	DateEnd        *time.Time `json:"date_end,omitempty"`
	SourceExten    string     `json:"source_exten"`
	RequestedExten string     `json:"requested_exten"`
	Participants   int        `json:"participants"`
	Recordings     int        `json:"recordings"`
}

// MessageHandler fans end-of-call notifications out to the worker pool;
// ordering only matters within one correlation key and each key arrives
// in exactly one message.
func (app *Ahsoka) MessageHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := app.WorkerPool.Submit(func() {
		app.processCelEnded(ctx, msg)
	})
	if err != nil {
		logging.Logger.Error("failed to submit job to ants pool", zap.String("error", err.Error()))
	}
}

func (app *Ahsoka) processCelEnded(ctx context.Context, msg *sarama.ConsumerMessage) {
	timer := prometheus.NewTimer(
		prometheusAhsoka.ReconstructDuration.WithLabelValues(streamDriver),
	)

	defer func() {
		duration := timer.ObserveDuration()
		logging.Logger.Debug("Reconstruct duration",
			zap.Duration("duration", duration),
		)
	}()

	defer app.handlePanic(msg)

	var notification CelEndedMessage

	err := json.Unmarshal(msg.Value, &notification)
	if err != nil {
		logging.Logger.Error("failed to decode end-of-call notification",
			zap.String("error", err.Error()),
			zap.ByteString("msg_value", msg.Value),
		)

		return
	}

	if notification.LinkedID == "" {
		logging.Logger.Warn("end-of-call notification without linked_id",
			zap.ByteString("msg_value", msg.Value),
		)

		return
	}

	app.recordBusLatency(notification.CreatedAt)

	if notification.TenantUUID != "" {
		err = app.DirectoryRepository.TenantExists(ctx, notification.TenantUUID)
		if errors.Is(err, directory.ErrTenantNotFound) {
			// Bad routing upstream; still rebuild the call, the CEL rows
			// carry their own identities.
			logging.Logger.Warn("notification references unknown tenant",
				zap.String("linked_id", notification.LinkedID),
				zap.String("tenant_uuid", notification.TenantUUID),
			)
		}
	}

	callLog, consumed, err := app.ReconstructService.Generate(ctx, notification.LinkedID)

	switch {
	case errors.Is(err, reconstruct.ErrIncompleteCorrelationSet):
		// The notification outran the last CEL rows; the batch driver
		// picks the set up once its terminal marker lands.
		logging.Logger.Debug("correlation set not terminated yet, deferring",
			zap.String("linked_id", notification.LinkedID),
		)

		return
	case errors.Is(err, reconstruct.ErrNothingToProcess):
		logging.Logger.Debug("correlation set already processed",
			zap.String("linked_id", notification.LinkedID),
		)

		return
	case err != nil:
		logging.Logger.Error("failed to rebuild call, leaving CEL rows unprocessed",
			zap.String("linked_id", notification.LinkedID),
			zap.String("error", err.Error()),
		)

		return
	}

	prometheusAhsoka.CelRowsProcessed.WithLabelValues(streamDriver).Add(float64(consumed))

	if callLog == nil {
		return
	}

	prometheusAhsoka.CallLogsCreated.Inc()

	app.publishCallLog(callLog)
}

func (app *Ahsoka) publishCallLog(callLog *calllog.CallLog) {
	message := CallLogCreatedMessage{
		UUID:           callLog.UUID,
		TenantUUID:     callLog.TenantUUID,
		ConversationID: callLog.ConversationID,
		Direction:      callLog.Direction,
		Date:           callLog.Date,
		DateAnswer:     callLog.DateAnswer,
		DateEnd:        callLog.DateEnd,
		SourceExten:    callLog.SourceExten,
		RequestedExten: callLog.RequestedExten,
		Participants:   len(callLog.Participants),
		Recordings:     len(callLog.Recordings),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		logging.Logger.Error("failed to marshal call log message",
			zap.String("call_log_uuid", callLog.UUID),
			zap.String("error", err.Error()),
		)

		return
	}

	partition, offset, err := app.KafkaProducer.SendMessage(
		config.Conf.KafkaCallLogTopic,
		[]byte(callLog.ConversationID),
		messageBytes,
	)
	if err != nil {
		logging.Logger.Error("failed to publish call log",
			zap.String("call_log_uuid", callLog.UUID),
			zap.String("error", err.Error()),
		)

		return
	}

	logging.Logger.Info("call log published",
		zap.String("call_log_uuid", callLog.UUID),
		zap.String("conversation_id", callLog.ConversationID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
}

func (app *Ahsoka) recordBusLatency(timeStr string) {
	if timeStr == "" {
		return
	}

	startTime, parseErr := time.Parse(time.RFC3339, timeStr)
	if parseErr != nil {
		startTime, parseErr = time.Parse("2006-01-02 15:04:05", timeStr)
	}

	if parseErr == nil {
		latency := time.Since(startTime).Seconds()
		prometheusAhsoka.BusNotificationLatency.Observe(latency)
		logging.Logger.Debug("bus notification latency",
			zap.Float64("latency", latency),
		)
	}
}

func (app *Ahsoka) handlePanic(msg *sarama.ConsumerMessage) {
	if r := recover(); r != nil {
		logging.Logger.Error("panic in message worker",
			zap.ByteString("msg_key", msg.Key),
			zap.Any("recover", r),
		)
	}
}
