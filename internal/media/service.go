package media

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	prometheusAhsoka "git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrObjectNotFound marks a recording whose media object is gone from
// the store. It is an expected state, not a store failure.
var ErrObjectNotFound = errors.New("media object does not exist")

// MediaClient wraps the object store holding recording media.
type MediaClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BucketName     string
}

func NewMediaClient(cbService string) (*MediaClient, error) {
	client, err := minio.New(config.Conf.MinioEndpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Conf.MinioAccessKey, config.Conf.MinioSecretKey, ""),
		Secure: config.Conf.MinioSecure,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize media store client",
			zap.String("endpoint", config.Conf.MinioEndpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to media store",
		zap.String("endpoint", config.Conf.MinioEndpointURL),
		zap.String("bucket", config.Conf.MinioBucketName),
	)

	return &MediaClient{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(cbService),
		BucketName:     config.Conf.MinioBucketName,
	}, nil
}

func newCircuitBreaker(cbService string) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "media",
		Interval: time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.MinioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn(
				"Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(cbService)
			}
		},
		// A missing object is a valid answer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound)
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// Exists checks the recording object is still present in the store,
// returning ErrObjectNotFound when it is gone.
func (m *MediaClient) Exists(ctx context.Context, path string) error {
	_, err := m.CircuitBreaker.Execute(func() (any, error) {
		return nil, m.doStat(ctx, path)
	})

	return err
}

// Remove deletes the recording object from the store.
func (m *MediaClient) Remove(ctx context.Context, path string) error {
	_, err := m.CircuitBreaker.Execute(func() (any, error) {
		return nil, m.doRemove(ctx, path)
	})

	return err
}

func (m *MediaClient) doStat(ctx context.Context, path string) error {
	timer := prometheus.NewTimer(prometheusAhsoka.MediaOperationDuration.WithLabelValues("stat"))
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
	defer cancel()

	return retry.Do(
		func() error {
			_, err := m.Client.StatObject(ctxWithTimeout, m.BucketName, objectKey(path), minio.StatObjectOptions{})
			if err != nil {
				response := minio.ToErrorResponse(err)
				if response.Code == "NoSuchKey" {
					return retry.Unrecoverable(ErrObjectNotFound)
				}

				logging.Logger.Error("Media store stat failed",
					zap.String("path", path),
					zap.String("error", err.Error()),
				)

				return err
			}

			return nil
		},
		retry.Attempts(config.Conf.MinioMaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMinSeconds)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMaxSeconds)*time.Second),
	)
}

func (m *MediaClient) doRemove(ctx context.Context, path string) error {
	timer := prometheus.NewTimer(prometheusAhsoka.MediaOperationDuration.WithLabelValues("remove"))
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
	defer cancel()

	return retry.Do(
		func() error {
			err := m.Client.RemoveObject(ctxWithTimeout, m.BucketName, objectKey(path), minio.RemoveObjectOptions{})
			if err != nil {
				logging.Logger.Error("Media store remove failed",
					zap.String("path", path),
					zap.String("error", err.Error()),
				)

				return err
			}

			return nil
		},
		retry.Attempts(config.Conf.MinioMaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMinSeconds)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMaxSeconds)*time.Second),
	)
}

// objectKey maps the switch-side recording path to the store key; the
// recorder writes absolute filesystem paths, the store keys are
// relative.
func objectKey(path string) string {
	return strings.TrimPrefix(path, "/")
}
