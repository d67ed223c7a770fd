package ahsoka

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/media"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/reconstruct"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ahsoka is the streaming daemon: it consumes end-of-call notifications
// from the bus, rebuilds the call logs behind them and publishes each
// created call log back onto the bus.
type Ahsoka struct {
	DBConn               *gorm.DB
	MediaClient          *media.MediaClient
	KafkaConsumer        *kafka.Consumer
	KafkaProducer        *kafka.Producer
	WorkerPool           *ants.Pool
	ReconstructService   *reconstruct.Service
	DirectoryRepository  *directory.DirectoryRepository
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFun context.CancelFunc) (*Ahsoka, error) {
	logging.Logger.Info("[NewApp] Initializing Ahsoka application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFun)

	logging.Logger.Info("[NewApp] Health checker service created")

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established")

	mediaClient, err := media.NewMediaClient(circuitbreak.MediaService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize media client", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Media client created")

	kafkaConsumer, err := kafka.NewConsumer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka consumer", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Kafka consumer created")

	kafkaProducer, workerPool, err := initializeKafkaProducerAndPool()
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("[NewApp] Creating reconstruct service...")

	reconstructService := reconstruct.NewService(dbConn)

	logging.Logger.Info("[NewApp] Reconstruct service created")

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return &Ahsoka{
		DBConn:               dbConn,
		MediaClient:          mediaClient,
		KafkaConsumer:        kafkaConsumer,
		KafkaProducer:        kafkaProducer,
		WorkerPool:           workerPool,
		ReconstructService:   reconstructService,
		DirectoryRepository:  directory.NewRepository(dbConn),
		HealthCheckerService: healthcheckerService,
	}, nil
}

func initializeKafkaProducerAndPool() (*kafka.Producer, *ants.Pool, error) {
	logging.Logger.Info("[NewApp] Creating Kafka producer...")

	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.Error(err))
		return nil, nil, err
	}

	logging.Logger.Info("[NewApp] Kafka producer created")

	logging.Logger.Info("[NewApp] Creating worker pool",
		zap.Int("pool_size", config.Conf.PoolSize),
	)

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create worker pool", zap.Error(err))
		return nil, nil, err
	}

	logging.Logger.Info("[NewApp] Worker pool created successfully")

	return kafkaProducer, workerPool, nil
}

func (app *Ahsoka) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	logging.Logger.Info("[Run] Starting health checker monitor goroutine")

	go app.HealthCheckerService.Monitor()

	logging.Logger.Info("[Run] Starting Kafka consumer (BLOCKING)",
		zap.String("topic", config.Conf.KafkaCelTopic),
		zap.Int("worker_pool_size", config.Conf.PoolSize),
	)

	err := app.KafkaConsumer.Consume(ctx, config.Conf.KafkaCelTopic, app.MessageHandler)
	if err != nil {
		logging.Logger.Error("[Run] Kafka consumer returned error", zap.Error(err))
		return err
	}

	logging.Logger.Warn("[Run] Kafka consumer returned (context canceled or error), beginning shutdown...")

	app.shutdown()

	return nil
}

func (app *Ahsoka) shutdown() {
	logging.Logger.Info("[Run] Closing Kafka consumer...")

	err := app.KafkaConsumer.Close()
	if err != nil {
		logging.Logger.Error("[Run] Failed to close consumer", zap.String("error", err.Error()))
	} else {
		logging.Logger.Info("[Run] Consumer closed successfully")
	}

	logging.Logger.Info("[Run] Releasing worker pool...",
		zap.Int("running_workers", app.WorkerPool.Running()),
		zap.Int("free_workers", app.WorkerPool.Free()),
	)
	app.WorkerPool.Release()
	logging.Logger.Info("[Run] Worker pool released")

	logging.Logger.Info("[Run] Closing Kafka producer...")

	err = app.KafkaProducer.Close()
	if err != nil {
		logging.Logger.Error("[Run] Failed to close producer", zap.String("error", err.Error()))
	} else {
		logging.Logger.Info("[Run] Kafka producer closed successfully")
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
