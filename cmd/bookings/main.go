package main

import (
	"context"
	bookingshandler "letsplay/internal/bookings/handler"
	bookingsservice "letsplay/internal/bookings/service"
	bookingsvalidator "letsplay/internal/bookings/validator"
	joinshandler "letsplay/internal/joins/handler"
	joinsrepo "letsplay/internal/joins/repository"
	joinsservice "letsplay/internal/joins/service"
	joinsvalidator "letsplay/internal/joins/validator"
	notificationshandler "letsplay/internal/notifications/handler"
	sagahandler "letsplay/internal/saga/handler"
	"letsplay/internal/saga/queue"
	"letsplay/internal/wiring"
	"letsplay/pkg/app"
	"letsplay/pkg/config"
	"letsplay/pkg/contracts"
	"letsplay/pkg/obs"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	if cfg.RedisAddr != "" {
		cfg.SetRedis()
	}

	shutdownTracer, err := obs.InitTracer(context.Background(), cfg.OtelEnabled, ServiceName, cfg.OtelEndpoint, cfg.Environment)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize tracing", "error", err)
	}

	cfg.Log.Info("Starting Bookings service")
	saga := initSaga(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(initHandlers(cfg, saga)...)

	recoveryCtx, stopRecovery := context.WithCancel(context.Background())
	if cfg.SagaQueueBackend == config.QueueBackendLocal {
		go saga.RunRecovery(recoveryCtx, cfg.SagaRecoveryInterval, cfg)
		cfg.Log.Info("Saga recovery sweep running in-process", "interval", cfg.SagaRecoveryInterval)
	}

	serverApp.OnShutdown(func(ctx context.Context) {
		stopRecovery()
		saga.Close()
		if err := shutdownTracer(ctx); err != nil {
			cfg.Log.Error("Tracer shutdown failed", "error", err)
		}
	})
	serverApp.Run()
}

// initSaga builds the orchestrator in front of the configured task queue:
// Kafka hands runs to the saga workers, local runs them in this process.
func initSaga(cfg *config.Config) *wiring.Saga {
	if cfg.SagaQueueBackend == config.QueueBackendLocal {
		return wiring.NewSaga(cfg, queue.NewLocalQueue(cfg.SagaWorkerConcurrency, cfg.Log))
	}

	producer, err := wiring.NewSagaProducer(cfg, nil)
	if err != nil {
		cfg.Log.Fatal("Failed to create saga task producer", "error", err)
	}
	return wiring.NewSaga(cfg, queue.NewKafkaQueue(producer, ServiceName))
}

func initHandlers(cfg *config.Config, saga *wiring.Saga) []contracts.Handler {
	bookingService := bookingsservice.NewBookingService(
		saga.Bookings,
		saga.Orchestrator,
		bookingsvalidator.NewBookingValidator(cfg.Log, cfg.MaxParticipantsLimit),
		cfg,
	)

	joinService := joinsservice.NewJoinService(
		joinsrepo.NewMongoJoinRequestRepository(cfg),
		saga.Bookings,
		saga.Notifications,
		joinsvalidator.NewJoinRequestValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)
	return []contracts.Handler{
		bookingshandler.NewBookingHandler(bookingService, cfg.Log),
		joinshandler.NewJoinRequestHandler(joinService, cfg.Log),
		notificationshandler.NewNotificationHandler(saga.Notifications, cfg.Log),
		sagahandler.NewSagaHandler(saga.Orchestrator, cfg.Log),
	}
}
