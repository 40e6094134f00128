package kafka_config

// EnvPrefix namespaces every transport variable.
const EnvPrefix = "KAFKA_"

const (
	EnvBrokers          = EnvPrefix + "BROKERS"
	EnvEnableMiddleware = EnvPrefix + "ENABLE_MIDDLEWARE"
)

const (
	producer = EnvPrefix + "PRODUCER_"

	EnvProducerMaxAttempts  = producer + "MAX_ATTEMPTS"
	EnvProducerBatchTimeout = producer + "BATCH_TIMEOUT"
	EnvProducerRequireAcks  = producer + "REQUIRE_ACKS"
	EnvProducerCompression  = producer + "COMPRESSION"
	EnvProducerAsync        = producer + "ASYNC"
)

const (
	consumer = EnvPrefix + "CONSUMER_"

	EnvConsumerStartOffset       = consumer + "START_OFFSET"
	EnvConsumerMinBytes          = consumer + "MIN_BYTES"
	EnvConsumerMaxBytes          = consumer + "MAX_BYTES"
	EnvConsumerMaxWait           = consumer + "MAX_WAIT"
	EnvConsumerCommitInterval    = consumer + "COMMIT_INTERVAL"
	EnvConsumerHeartbeatInterval = consumer + "HEARTBEAT_INTERVAL"
	EnvConsumerSessionTimeout    = consumer + "SESSION_TIMEOUT"
	EnvConsumerRebalanceTimeout  = consumer + "REBALANCE_TIMEOUT"
	EnvConsumerMaxRetries        = consumer + "MAX_RETRIES"
	EnvConsumerRetryBackoff      = consumer + "RETRY_BACKOFF"
)
