// Package wiring assembles the booking saga from configuration. Both the
// API binary and the saga worker build the same orchestrator; only the task
// queue in front of it differs.
package wiring

import (
	"context"
	bookingsrepo "letsplay/internal/bookings/repository"
	notificationsrepo "letsplay/internal/notifications/repository"
	notifications "letsplay/internal/notifications/service"
	"letsplay/internal/saga/activities"
	"letsplay/internal/saga/core"
	"letsplay/internal/saga/orchestrator"
	"letsplay/internal/saga/payment"
	"letsplay/internal/saga/queue"
	sagarepo "letsplay/internal/saga/repository"
	"letsplay/pkg/config"
	"letsplay/pkg/kafka"
	kafka_config "letsplay/pkg/kafka/config"
	kafka_middleware "letsplay/pkg/kafka/middleware"
	"letsplay/pkg/mq"
	"time"
)

type Saga struct {
	Orchestrator  *orchestrator.Orchestrator
	Bookings      bookingsrepo.BookingRepository
	Notifications notifications.NotificationService
	Queue         queue.TaskQueue

	closers []func() error
}

// NewNotifications builds the notification service. The RabbitMQ publisher
// is optional: when the broker is unreachable notifications are only stored.
func NewNotifications(cfg *config.Config) (notifications.NotificationService, func() error) {
	repo := notificationsrepo.NewMongoNotificationRepository(cfg)

	publisher, err := mq.NewPublisher(cfg.RabbitMQURL, cfg.NotificationsExchange)
	if err != nil {
		cfg.Log.Warn("Notification publisher unavailable, notifications will only be stored", "error", err)
		return notifications.NewNotificationService(repo, nil, cfg), func() error { return nil }
	}
	cfg.Log.Info("Notification publisher connected", "exchange", cfg.NotificationsExchange)
	return notifications.NewNotificationService(repo, publisher, cfg), publisher.Close
}

// NewSagaProducer opens the Kafka producer for saga tasks.
func NewSagaProducer(cfg *config.Config, metrics *kafka_middleware.Metrics) (*kafka.Producer, error) {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		return nil, err
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.SagaTaskTopic, cfg.SagaTaskDLQTopic, cfg.Log)
	if err != nil {
		return nil, err
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		if metrics != nil {
			producer.Use(metrics.ProducerMiddleware())
		}
	}
	return producer, nil
}

// NewSaga builds the orchestrator over Mongo repositories, the configured
// lease backend and the simulated payment gateway. When q is a LocalQueue it
// is bound to the new orchestrator.
func NewSaga(cfg *config.Config, q queue.TaskQueue) *Saga {
	bookings := bookingsrepo.NewMongoBookingRepository(cfg)
	reservations := bookingsrepo.NewMongoGroundReservationRepository(cfg)
	gateway := payment.NewSimulatedGateway(cfg.PaymentSettleDelay, cfg.PaymentDeclineAbove)
	acts := activities.New(bookings, reservations, gateway, cfg.Log)

	notificationService, closeNotifications := NewNotifications(cfg)

	orch := orchestrator.New(orchestrator.Dependencies{
		Bookings:   bookings,
		Runs:       sagarepo.NewMongoSagaRunRepository(cfg),
		Locker:     sagarepo.NewRunLocker(cfg),
		Queue:      q,
		Notifier:   notificationService,
		Steps:      acts.Steps(),
		Compensate: acts.MarkBookingFailed,
		Policy: core.RetryPolicy{
			MaxAttempts:    cfg.SagaMaxAttempts,
			StepTimeout:    cfg.SagaStepTimeout,
			InitialBackoff: cfg.SagaInitialBackoff,
			MaxBackoff:     cfg.SagaMaxBackoff,
		},
		LeaseTTL:   cfg.SagaLeaseTTL,
		StaleAfter: cfg.SagaStaleAfter,
		Log:        cfg.Log,
	})

	if local, ok := q.(*queue.LocalQueue); ok {
		local.Bind(orch)
	}

	cfg.Log.Info("Booking saga initialized",
		"lock_backend", cfg.SagaLockBackend,
		"queue_backend", cfg.SagaQueueBackend,
		"max_attempts", cfg.SagaMaxAttempts,
	)

	return &Saga{
		Orchestrator:  orch,
		Bookings:      bookings,
		Notifications: notificationService,
		Queue:         q,
		closers:       []func() error{q.Close, closeNotifications},
	}
}

// RunRecovery sweeps for stale runs and orphaned bookings every interval
// until ctx is cancelled.
func (s *Saga) RunRecovery(ctx context.Context, interval time.Duration, cfg *config.Config) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Orchestrator.Recover(ctx); err != nil && ctx.Err() == nil {
				cfg.Log.Error("Saga recovery sweep failed", "error", err)
			}
		}
	}
}

// Close stops the queue and the notification publisher.
func (s *Saga) Close() {
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
}
