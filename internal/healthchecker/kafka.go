package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var healthcheckerMsg = "healthchecker msg"

func CheckKafkaProducer() error {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new kafka producer client", zap.String("error", err.Error()))
		return err
	}

	defer func() {
		cerr := kafkaProducer.Close()
		if cerr != nil {
			logging.Logger.Error("failed to close healthcheck producer", zap.String("error", cerr.Error()))
		}
	}()

	_, _, err = kafkaProducer.SendMessage(
		config.Conf.KafkaCallLogTopic,
		[]byte(uuid.New().String()),
		[]byte(healthcheckerMsg),
	)

	return err
}
