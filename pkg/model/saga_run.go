package model

import "time"

const (
	SagaRunStateRunning            = "RUNNING"
	SagaRunStateCompleted          = "COMPLETED"
	SagaRunStateFailed             = "FAILED"
	SagaRunStateCompensationFailed = "COMPENSATION_FAILED"
)

const (
	SagaOutcomeSucceeded = "SUCCEEDED"
	SagaOutcomeRetrying  = "RETRYING"
	SagaOutcomeFailed    = "FAILED"
	SagaOutcomeSkipped   = "SKIPPED"
)

// SagaRun is the durable progress log of one booking saga.
// CompletedSteps is the index of the next step to execute.
type SagaRun struct {
	ID             string      `json:"id" bson:"_id"`
	BookingID      string      `json:"booking_id" bson:"booking_id"`
	State          string      `json:"state" bson:"state"`
	CompletedSteps int         `json:"completed_steps" bson:"completed_steps"`
	CurrentStep    string      `json:"current_step,omitempty" bson:"current_step,omitempty"`
	Attempts       int         `json:"attempts" bson:"attempts"`
	LastError      string      `json:"last_error,omitempty" bson:"last_error,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	History        []SagaEvent `json:"history" bson:"history"`
	CreatedAt      time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" bson:"updated_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

type SagaEvent struct {
	Step    string    `json:"step" bson:"step"`
	Attempt int       `json:"attempt" bson:"attempt"`
	Outcome string    `json:"outcome" bson:"outcome"`
	Error   string    `json:"error,omitempty" bson:"error,omitempty"`
	At      time.Time `json:"at" bson:"at"`
}

func (r *SagaRun) IsTerminal() bool {
	switch r.State {
	case SagaRunStateCompleted, SagaRunStateFailed, SagaRunStateCompensationFailed:
		return true
	}
	return false
}
