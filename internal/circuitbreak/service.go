package circuitbreak

import "git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"

var CircuitBreakChan chan string

const (
	DBService            = "database"
	MediaService         = "media"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("ahsoka app is not created")
	}

	CircuitBreakChan <- service
}
