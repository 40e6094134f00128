package main

import (
	"context"
	"errors"
	sagahandler "letsplay/internal/saga/handler"
	"letsplay/internal/saga/queue"
	"letsplay/internal/wiring"
	"letsplay/pkg/app"
	"letsplay/pkg/config"
	"letsplay/pkg/kafka"
	kafka_config "letsplay/pkg/kafka/config"
	kafka_middleware "letsplay/pkg/kafka/middleware"
	"letsplay/pkg/obs"
	"sync"
)

const ServiceName = "saga-worker"

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

	metrics := kafka_middleware.NewMetrics()
	producer, err := wiring.NewSagaProducer(cfg, metrics)
	if err != nil {
		cfg.Log.Fatal("Failed to create saga task producer", "error", err)
	}
	saga := wiring.NewSaga(cfg, queue.NewKafkaQueue(producer, ServiceName))

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	consumers := initConsumers(cfg, kafkaCfg, saga, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i, consumer := range consumers {
		i, consumer := i, consumer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				cfg.Log.Error("Saga consumer stopped", "consumer", i, "error", err)
			}
		}()
	}
	go saga.RunRecovery(ctx, cfg.SagaRecoveryInterval, cfg)

	cfg.Log.Info("Saga worker started",
		"topic", cfg.SagaTaskTopic,
		"group", cfg.SagaConsumerGroup,
		"consumers", len(consumers),
		"recovery_interval", cfg.SagaRecoveryInterval,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.AddCheck("kafka", func(ctx context.Context) error {
		return kafka.PingBrokers(ctx, kafkaCfg.Brokers)
	})
	serverApp.SetApp(sagahandler.NewStatsHandler(metrics, func() []sagahandler.ConsumerStats {
		stats := make([]sagahandler.ConsumerStats, 0, len(consumers))
		for _, c := range consumers {
			s := c.Stats()
			stats = append(stats, sagahandler.ConsumerStats{Messages: s.Messages, Errors: s.Errors, Lag: s.Lag})
		}
		return stats
	}))
	serverApp.OnShutdown(func(shutdownCtx context.Context) {
		cancel()
		wg.Wait()
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				cfg.Log.Error("Failed to close saga consumer", "error", err)
			}
		}
		saga.Close()
		if err := shutdownTracer(shutdownCtx); err != nil {
			cfg.Log.Error("Tracer shutdown failed", "error", err)
		}
	})
	serverApp.Run()
}

// initConsumers opens SagaWorkerConcurrency readers in one consumer group, so
// partitions of the task topic are spread across them.
func initConsumers(cfg *config.Config, kafkaCfg *kafka_config.Config, saga *wiring.Saga, metrics *kafka_middleware.Metrics) []*kafka.Consumer {
	handler := queue.NewTaskHandler(saga.Orchestrator, cfg.Log)
	consumers := make([]*kafka.Consumer, 0, cfg.SagaWorkerConcurrency)
	for i := 0; i < cfg.SagaWorkerConcurrency; i++ {
		consumer, err := kafka.NewConsumer(kafkaCfg, cfg.SagaTaskTopic, cfg.SagaConsumerGroup, cfg.SagaTaskDLQTopic, handler, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create saga consumer", "error", err)
		}
		if kafkaCfg.EnableMiddleware {
			consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		}
		consumer.Use(metrics.ConsumerMiddleware())
		consumers = append(consumers, consumer)
	}
	return consumers
}
