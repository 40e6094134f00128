package kafka_config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.ConsumerCommitInterval != 0 {
		t.Errorf("commit interval = %s, want synchronous commits", cfg.ConsumerCommitInterval)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(EnvBrokers, " k1:9092, ,k2:9092 ")
	t.Setenv(EnvProducerCompression, "GZIP")
	t.Setenv(EnvConsumerMaxRetries, "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.ProducerCompression != "gzip" {
		t.Errorf("compression = %q", cfg.ProducerCompression)
	}
	if cfg.ConsumerMaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.ConsumerMaxRetries)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unparsable duration", EnvConsumerMaxWait, "soon"},
		{"unparsable integer", EnvProducerMaxAttempts, "three"},
		{"unknown compression", EnvProducerCompression, "brotli"},
		{"bad acks", EnvProducerRequireAcks, "2"},
		{"negative retries", EnvConsumerMaxRetries, "-1"},
		{"no brokers", EnvBrokers, " , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "kafka configuration invalid") {
				t.Errorf("error = %v", err)
			}
		})
	}
}
