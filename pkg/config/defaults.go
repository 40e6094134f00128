package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "letsplay"
	DefaultMongoConnTimeout  = 10 * time.Second

	// Redis is optional. Without an address rate limiting and idempotency
	// stay in process.
	DefaultRedisAddr        = ""
	DefaultRedisDB          = 0
	DefaultRedisConnTimeout = 2 * time.Second

	DefaultRabbitMQURL           = ""
	DefaultNotificationsExchange = "letsplay.notifications"

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultSagaMaxAttempts       = 3
	DefaultSagaStepTimeout       = 1 * time.Minute
	DefaultSagaInitialBackoff    = 200 * time.Millisecond
	DefaultSagaMaxBackoff        = 5 * time.Second
	DefaultSagaLeaseTTL          = 5 * time.Minute
	DefaultSagaRecoveryInterval  = 30 * time.Second
	DefaultSagaStaleAfter        = 2 * time.Minute
	DefaultSagaWorkerConcurrency = 16
	DefaultSagaLockBackend       = LockBackendMongo
	DefaultSagaQueueBackend      = QueueBackendKafka
	DefaultSagaTaskTopic         = "booking-saga-tasks"
	DefaultSagaTaskDLQTopic      = "booking-saga-tasks-dlq"
	DefaultSagaConsumerGroup     = "booking-saga-workers"

	DefaultPaymentSettleDelay  = 3 * time.Second
	DefaultPaymentDeclineAbove = 0.0

	DefaultMaxParticipantsLimit = 50

	DefaultOtelEnabled  = false
	DefaultOtelEndpoint = "localhost:4317"
	DefaultEnvironment  = "dev"
)

const (
	LockBackendMongo = "mongo"
	LockBackendRedis = "redis"

	QueueBackendKafka = "kafka"
	QueueBackendLocal = "local"
)
