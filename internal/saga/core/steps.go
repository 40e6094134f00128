package core

import "context"

// RunContext identifies the saga run a step executes for.
type RunContext struct {
	BookingID string
	RunID     string
}

type StepFunc func(ctx context.Context, rc RunContext) error

type Step struct {
	Name    string
	Execute StepFunc
}

func NewStep(name string, execute StepFunc) *Step {
	return &Step{
		Name:    name,
		Execute: execute,
	}
}
