package kafka_config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"letsplay/pkg/logger"
)

// Config is the broker-level transport configuration shared by the saga task
// producer and the worker consumers. Topic and group names live in the
// service config.
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 all, 0 none, 1 leader
	ProducerCompression  string // none, gzip, snappy, lz4, zstd
	ProducerAsync        bool

	ConsumerStartOffset       int64 // -1 newest, -2 oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerRetryBackoff      time.Duration

	EnableMiddleware bool
}

// Load reads KAFKA_* variables. A value that is set but unparsable is an
// error, not a fallback to the default.
func Load() (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		Brokers: splitBrokers(env.str(EnvBrokers, DefaultKafkaBrokers)),

		ProducerMaxAttempts:  env.int(EnvProducerMaxAttempts, DefaultProducerMaxAttempts),
		ProducerBatchTimeout: env.duration(EnvProducerBatchTimeout, DefaultProducerBatchTimeout),
		ProducerRequireAcks:  env.int(EnvProducerRequireAcks, DefaultProducerRequireAcks),
		ProducerCompression:  strings.ToLower(env.str(EnvProducerCompression, DefaultProducerCompression)),
		ProducerAsync:        env.bool(EnvProducerAsync, DefaultProducerAsync),

		ConsumerStartOffset:       int64(env.int(EnvConsumerStartOffset, DefaultConsumerStartOffset)),
		ConsumerMinBytes:          env.int(EnvConsumerMinBytes, DefaultConsumerMinBytes),
		ConsumerMaxBytes:          env.int(EnvConsumerMaxBytes, DefaultConsumerMaxBytes),
		ConsumerMaxWait:           env.duration(EnvConsumerMaxWait, DefaultConsumerMaxWait),
		ConsumerCommitInterval:    env.duration(EnvConsumerCommitInterval, DefaultConsumerCommitInterval),
		ConsumerHeartbeatInterval: env.duration(EnvConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval),
		ConsumerSessionTimeout:    env.duration(EnvConsumerSessionTimeout, DefaultConsumerSessionTimeout),
		ConsumerRebalanceTimeout:  env.duration(EnvConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout),
		ConsumerMaxRetries:        env.int(EnvConsumerMaxRetries, DefaultConsumerMaxRetries),
		ConsumerRetryBackoff:      env.duration(EnvConsumerRetryBackoff, DefaultConsumerRetryBackoff),

		EnableMiddleware: env.bool(EnvEnableMiddleware, DefaultEnableMiddleware),
	}

	problems := env.problems
	problems = append(problems, cfg.problems()...)
	if len(problems) > 0 {
		return nil, fmt.Errorf("kafka configuration invalid: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	if problems := cfg.problems(); len(problems) > 0 {
		return fmt.Errorf("kafka configuration invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (cfg *Config) problems() []string {
	var problems []string

	if len(cfg.Brokers) == 0 {
		problems = append(problems, "at least one broker is required")
	}

	switch cfg.ProducerCompression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		problems = append(problems, fmt.Sprintf("%s must be one of none, gzip, snappy, lz4, zstd, got %q", EnvProducerCompression, cfg.ProducerCompression))
	}

	switch cfg.ProducerRequireAcks {
	case -1, 0, 1:
	default:
		problems = append(problems, fmt.Sprintf("%s must be -1, 0 or 1, got %d", EnvProducerRequireAcks, cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset < -2 {
		problems = append(problems, fmt.Sprintf("%s must be -1, -2 or an absolute offset, got %d", EnvConsumerStartOffset, cfg.ConsumerStartOffset))
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{EnvProducerMaxAttempts, cfg.ProducerMaxAttempts},
		{EnvConsumerMinBytes, cfg.ConsumerMinBytes},
		{EnvConsumerMaxBytes, cfg.ConsumerMaxBytes},
	}
	for _, c := range positiveInts {
		if c.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", c.name, c.value))
		}
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{EnvProducerBatchTimeout, cfg.ProducerBatchTimeout},
		{EnvConsumerMaxWait, cfg.ConsumerMaxWait},
		{EnvConsumerHeartbeatInterval, cfg.ConsumerHeartbeatInterval},
		{EnvConsumerSessionTimeout, cfg.ConsumerSessionTimeout},
		{EnvConsumerRebalanceTimeout, cfg.ConsumerRebalanceTimeout},
	}
	for _, c := range positiveDurations {
		if c.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %s", c.name, c.value))
		}
	}

	if cfg.ConsumerMaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("%s cannot be negative, got %d", EnvConsumerMaxRetries, cfg.ConsumerMaxRetries))
	}
	if cfg.ConsumerCommitInterval < 0 {
		problems = append(problems, fmt.Sprintf("%s cannot be negative, got %s", EnvConsumerCommitInterval, cfg.ConsumerCommitInterval))
	}
	if cfg.ConsumerRetryBackoff < 0 {
		problems = append(problems, fmt.Sprintf("%s cannot be negative, got %s", EnvConsumerRetryBackoff, cfg.ConsumerRetryBackoff))
	}

	return problems
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded",
		"brokers", cfg.Brokers,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"consumer_retry_backoff", cfg.ConsumerRetryBackoff,
		"enable_middleware", cfg.EnableMiddleware,
	)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// envReader reads typed values and remembers the ones it could not parse.
type envReader struct {
	problems []string
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s is not an integer: %q", key, raw))
		return def
	}
	return v
}

func (e *envReader) bool(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s is not a boolean: %q", key, raw))
		return def
	}
	return v
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s is not a duration: %q", key, raw))
		return def
	}
	return v
}
