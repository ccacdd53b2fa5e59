package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one stage of the pipeline
type Step interface {
	ID() string
	Name() string

	// Execute runs the stage against the operation state
	Execute(ctx context.Context, state *OperationState) error

	// Validate checks the session is ready for this stage. It runs right
	// before Execute, after earlier stages of the same run have finished.
	Validate(state *OperationState) error

	// GetDependencies returns stages that must complete first when they
	// are part of the same run
	GetDependencies() []string
}

// StepStatus is the lifecycle status of a stage
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of a stage within one operation
type StepState struct {
	mu        sync.RWMutex
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Error     error                  `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a pending stage state
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

func (s *StepState) finish(status StepStatus) {
	now := time.Now()
	s.EndTime = &now
	s.Status = status
}

// Start marks the stage active
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.EndTime = nil
	s.Status = StepStatusActive
	s.Progress = 0
}

// Complete marks the stage completed
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusCompleted)
	s.Progress = 100
}

// Fail marks the stage failed
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusFailed)
	s.Error = err
}

// Skip marks the stage skipped
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(StepStatusSkipped)
	s.Message = reason
}

// UpdateProgress sets progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress = progress
	s.Message = message
}

// SetMetadata records one metadata value
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns how long the stage ran, or has been running
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.StartTime == nil:
		return 0
	case s.EndTime != nil:
		return s.EndTime.Sub(*s.StartTime)
	default:
		return time.Since(*s.StartTime)
	}
}

// BaseStage carries the identity shared by every stage
type BaseStage struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStage creates a base stage
func NewBaseStage(id, name string, dependencies ...string) BaseStage {
	return BaseStage{id: id, name: name, dependencies: dependencies}
}

func (b *BaseStage) ID() string { return b.id }

func (b *BaseStage) Name() string { return b.name }

func (b *BaseStage) GetDependencies() []string {
	return append([]string(nil), b.dependencies...)
}

// Validate accepts any state
func (b *BaseStage) Validate(*OperationState) error { return nil }
