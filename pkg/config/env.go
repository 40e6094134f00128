package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvRabbitMQURL           = "RABBITMQ_URL"
	EnvNotificationsExchange = "NOTIFICATIONS_EXCHANGE"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSagaMaxAttempts       = "SAGA_MAX_ATTEMPTS"
	EnvSagaStepTimeout       = "SAGA_STEP_TIMEOUT"
	EnvSagaInitialBackoff    = "SAGA_INITIAL_BACKOFF"
	EnvSagaMaxBackoff        = "SAGA_MAX_BACKOFF"
	EnvSagaLeaseTTL          = "SAGA_LEASE_TTL"
	EnvSagaRecoveryInterval  = "SAGA_RECOVERY_INTERVAL"
	EnvSagaStaleAfter        = "SAGA_STALE_AFTER"
	EnvSagaWorkerConcurrency = "SAGA_WORKER_CONCURRENCY"
	EnvSagaLockBackend       = "SAGA_LOCK_BACKEND"
	EnvSagaQueueBackend      = "SAGA_QUEUE_BACKEND"
	EnvSagaTaskTopic         = "SAGA_TASK_TOPIC"
	EnvSagaTaskDLQTopic      = "SAGA_TASK_DLQ_TOPIC"
	EnvSagaConsumerGroup     = "SAGA_CONSUMER_GROUP"

	EnvPaymentSettleDelay  = "PAYMENT_SETTLE_DELAY"
	EnvPaymentDeclineAbove = "PAYMENT_DECLINE_ABOVE"

	EnvMaxParticipantsLimit = "MAX_PARTICIPANTS_LIMIT"

	EnvOtelEnabled  = "OTEL_ENABLED"
	EnvOtelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvEnvironment  = "ENV"
)
