package fakes

import (
	"time"

	"letsplay/pkg/config"
	"letsplay/pkg/logger"
)

// Config returns a configuration suitable for service tests: quiet logging,
// short timeouts and default limits.
func Config() *config.Config {
	return &config.Config{
		ReadTimeout:          time.Second,
		WriteTimeout:         time.Second,
		SagaMaxAttempts:      3,
		SagaStepTimeout:      time.Second,
		SagaLeaseTTL:         time.Minute,
		SagaStaleAfter:       time.Minute,
		MaxParticipantsLimit: config.DefaultMaxParticipantsLimit,
		Log:                  logger.Discard(),
	}
}
