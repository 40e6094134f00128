package config

import (
	"errors"
	"fmt"
	"letsplay/pkg/client"
	"letsplay/pkg/logger"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL           string
	NotificationsExchange string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SagaMaxAttempts       int
	SagaStepTimeout       time.Duration
	SagaInitialBackoff    time.Duration
	SagaMaxBackoff        time.Duration
	SagaLeaseTTL          time.Duration
	SagaRecoveryInterval  time.Duration
	SagaStaleAfter        time.Duration
	SagaWorkerConcurrency int
	SagaLockBackend       string
	SagaQueueBackend      string
	SagaTaskTopic         string
	SagaTaskDLQTopic      string
	SagaConsumerGroup     string

	PaymentSettleDelay  time.Duration
	PaymentDeclineAbove float64

	MaxParticipantsLimit int

	OtelEnabled  bool
	OtelEndpoint string
	Environment  string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration from the environment (and a .env file when
// present), validates it and exits the process on invalid values.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: serviceName,

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		RabbitMQURL:           getEnvStr(EnvRabbitMQURL, DefaultRabbitMQURL),
		NotificationsExchange: getEnvStr(EnvNotificationsExchange, DefaultNotificationsExchange),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SagaMaxAttempts:       getEnvNum(EnvSagaMaxAttempts, DefaultSagaMaxAttempts),
		SagaStepTimeout:       getEnvDuration(EnvSagaStepTimeout, DefaultSagaStepTimeout),
		SagaInitialBackoff:    getEnvDuration(EnvSagaInitialBackoff, DefaultSagaInitialBackoff),
		SagaMaxBackoff:        getEnvDuration(EnvSagaMaxBackoff, DefaultSagaMaxBackoff),
		SagaLeaseTTL:          getEnvDuration(EnvSagaLeaseTTL, DefaultSagaLeaseTTL),
		SagaRecoveryInterval:  getEnvDuration(EnvSagaRecoveryInterval, DefaultSagaRecoveryInterval),
		SagaStaleAfter:        getEnvDuration(EnvSagaStaleAfter, DefaultSagaStaleAfter),
		SagaWorkerConcurrency: getEnvNum(EnvSagaWorkerConcurrency, DefaultSagaWorkerConcurrency),
		SagaLockBackend:       strings.ToLower(getEnvStr(EnvSagaLockBackend, DefaultSagaLockBackend)),
		SagaQueueBackend:      strings.ToLower(getEnvStr(EnvSagaQueueBackend, DefaultSagaQueueBackend)),
		SagaTaskTopic:         getEnvStr(EnvSagaTaskTopic, DefaultSagaTaskTopic),
		SagaTaskDLQTopic:      getEnvStr(EnvSagaTaskDLQTopic, DefaultSagaTaskDLQTopic),
		SagaConsumerGroup:     getEnvStr(EnvSagaConsumerGroup, DefaultSagaConsumerGroup),

		PaymentSettleDelay:  getEnvDuration(EnvPaymentSettleDelay, DefaultPaymentSettleDelay),
		PaymentDeclineAbove: getEnvFloat(EnvPaymentDeclineAbove, DefaultPaymentDeclineAbove),

		MaxParticipantsLimit: getEnvNum(EnvMaxParticipantsLimit, DefaultMaxParticipantsLimit),

		OtelEnabled:  getEnvBool(EnvOtelEnabled, DefaultOtelEnabled),
		OtelEndpoint: getEnvStr(EnvOtelEndpoint, DefaultOtelEndpoint),
		Environment:  getEnvStr(EnvEnvironment, DefaultEnvironment),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, DefaultRedisConnTimeout)
}

// problems collects every validation failure so an operator sees them all at
// once.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func positive[T int | time.Duration](p *problems, name string, v T) {
	if v <= 0 {
		p.addf("%s must be positive, got: %v", name, v)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Configuration validation failed:\n")
	for i, msg := range p {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, msg)
	}
	return errors.New(b.String())
}

var mongoScheme = regexp.MustCompile(`^mongodb(\+srv)?://`)

func (cfg *Config) Validate() error {
	var p problems

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		p.addf("Port must be between 1 and 65535, got: %s", cfg.Port)
	}

	switch {
	case cfg.MongoURI == "":
		p.addf("MongoURI cannot be empty")
	case !mongoScheme.MatchString(cfg.MongoURI):
		p.addf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		p.addf("MongoDatabaseName cannot be empty")
	}
	positive(&p, "MongoConnTimeout", cfg.MongoConnTimeout)

	positive(&p, "RateLimitWindow", cfg.RateLimitWindow)
	positive(&p, "RateLimitRequests", cfg.RateLimitRequests)
	positive(&p, "RequestTimeout", cfg.RequestTimeout)
	positive(&p, "IdempotencyTTL", cfg.IdempotencyTTL)
	positive(&p, "MaxRequestSize", cfg.MaxRequestSize)
	positive(&p, "ReadTimeout", cfg.ReadTimeout)
	positive(&p, "WriteTimeout", cfg.WriteTimeout)
	positive(&p, "IdleTimeout", cfg.IdleTimeout)
	positive(&p, "ShutdownTimeout", cfg.ShutdownTimeout)

	cfg.validateSaga(&p)

	if cfg.PaymentSettleDelay < 0 {
		p.addf("PaymentSettleDelay cannot be negative, got: %s", cfg.PaymentSettleDelay)
	}
	if cfg.PaymentSettleDelay >= cfg.SagaStepTimeout {
		p.addf("PaymentSettleDelay (%s) must be shorter than SagaStepTimeout (%s)", cfg.PaymentSettleDelay, cfg.SagaStepTimeout)
	}
	if cfg.PaymentDeclineAbove < 0 {
		p.addf("PaymentDeclineAbove cannot be negative, got: %v", cfg.PaymentDeclineAbove)
	}
	if cfg.MaxParticipantsLimit < 1 {
		p.addf("MaxParticipantsLimit must be at least 1, got: %d", cfg.MaxParticipantsLimit)
	}
	if cfg.OtelEnabled && cfg.OtelEndpoint == "" {
		p.addf("OtelEndpoint cannot be empty when OTEL_ENABLED is true")
	}

	return p.err()
}

func (cfg *Config) validateSaga(p *problems) {
	if cfg.SagaMaxAttempts < 1 {
		p.addf("SagaMaxAttempts must be at least 1, got: %d", cfg.SagaMaxAttempts)
	}
	positive(p, "SagaStepTimeout", cfg.SagaStepTimeout)
	if cfg.SagaInitialBackoff < 0 {
		p.addf("SagaInitialBackoff cannot be negative, got: %s", cfg.SagaInitialBackoff)
	}
	if cfg.SagaMaxBackoff < cfg.SagaInitialBackoff {
		p.addf("SagaMaxBackoff (%s) must be >= SagaInitialBackoff (%s)", cfg.SagaMaxBackoff, cfg.SagaInitialBackoff)
	}
	if cfg.SagaLeaseTTL <= cfg.SagaStepTimeout {
		p.addf("SagaLeaseTTL (%s) must be greater than SagaStepTimeout (%s)", cfg.SagaLeaseTTL, cfg.SagaStepTimeout)
	}
	positive(p, "SagaRecoveryInterval", cfg.SagaRecoveryInterval)
	positive(p, "SagaStaleAfter", cfg.SagaStaleAfter)
	positive(p, "SagaWorkerConcurrency", cfg.SagaWorkerConcurrency)

	switch cfg.SagaLockBackend {
	case LockBackendMongo:
	case LockBackendRedis:
		if cfg.RedisAddr == "" {
			p.addf("RedisAddr cannot be empty when SagaLockBackend is redis")
		}
	default:
		p.addf("SagaLockBackend must be one of [%s %s], got: %s", LockBackendMongo, LockBackendRedis, cfg.SagaLockBackend)
	}

	switch cfg.SagaQueueBackend {
	case QueueBackendLocal:
	case QueueBackendKafka:
		if cfg.SagaTaskTopic == "" {
			p.addf("SagaTaskTopic cannot be empty when SagaQueueBackend is kafka")
		}
		if cfg.SagaConsumerGroup == "" {
			p.addf("SagaConsumerGroup cannot be empty when SagaQueueBackend is kafka")
		}
	default:
		p.addf("SagaQueueBackend must be one of [%s %s], got: %s", QueueBackendKafka, QueueBackendLocal, cfg.SagaQueueBackend)
	}
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"rabbitmq_url", redactAMQPURL(cfg.RabbitMQURL),
		"notifications_exchange", cfg.NotificationsExchange,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"saga_max_attempts", cfg.SagaMaxAttempts,
		"saga_step_timeout", cfg.SagaStepTimeout,
		"saga_initial_backoff", cfg.SagaInitialBackoff,
		"saga_max_backoff", cfg.SagaMaxBackoff,
		"saga_lease_ttl", cfg.SagaLeaseTTL,
		"saga_recovery_interval", cfg.SagaRecoveryInterval,
		"saga_stale_after", cfg.SagaStaleAfter,
		"saga_worker_concurrency", cfg.SagaWorkerConcurrency,
		"saga_lock_backend", cfg.SagaLockBackend,
		"saga_queue_backend", cfg.SagaQueueBackend,
		"saga_task_topic", cfg.SagaTaskTopic,
		"saga_consumer_group", cfg.SagaConsumerGroup,
		"payment_settle_delay", cfg.PaymentSettleDelay,
		"payment_decline_above", cfg.PaymentDeclineAbove,
		"max_participants_limit", cfg.MaxParticipantsLimit,
		"otel_enabled", cfg.OtelEnabled,
		"otel_endpoint", cfg.OtelEndpoint,
		"environment", cfg.Environment,
	)
}

var (
	mongoCredentials = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	amqpCredentials  = regexp.MustCompile(`(amqps?://)[^:]+:[^@]+@`)
)

func redactMongoURI(uri string) string {
	return mongoCredentials.ReplaceAllString(uri, "${1}***:***@")
}

func redactAMQPURL(uri string) string {
	return amqpCredentials.ReplaceAllString(uri, "${1}***:***@")
}

// lookup parses key with parse, keeping fallback when the variable is unset
// or malformed.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvStr(key, fallback string) string {
	return lookup(key, fallback, func(s string) (string, error) { return s, nil })
}

func getEnvNum(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

func getEnvFloat(key string, fallback float64) float64 {
	return lookup(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getEnvBool(key string, fallback bool) bool {
	return lookup(key, fallback, strconv.ParseBool)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return lookup(key, fallback, time.ParseDuration)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

// NormalizePaginationLimit maps a missing limit to 10 and caps the rest.
func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return min(limit, DefaultPaginationLimit)
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
