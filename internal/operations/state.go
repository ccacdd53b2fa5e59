package operations

import (
	"log/slog"
	"sync"
	"time"

	"armpose/internal/infrastructure"
	"armpose/internal/session"
)

// OperationStatusValue is the overall status of an operation
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState is the runtime state of one pipeline run against a session
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	// Session is the pipeline session the stages read from and write to
	Session *session.Session `json:"-"`

	Steps map[string]*StepState `json:"steps"`

	// Config carries the request parameters (uploaded record sets, options)
	Config map[string]interface{} `json:"-"`

	Error error `json:"-"`

	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger
}

// NewOperationState creates a pending operation bound to a session
func NewOperationState(id string, sess *session.Session) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Session:   sess,
		Steps:     make(map[string]*StepState),
		Config:    make(map[string]interface{}),
		logger:    slog.Default(),
	}
}

// Logger returns the logger stages should use
func (p *OperationState) Logger() *slog.Logger {
	return p.logger
}

// Metrics returns the business metrics, possibly nil
func (p *OperationState) Metrics() *infrastructure.BusinessMetrics {
	return p.metrics
}

// ReportProgress updates a stage's progress and broadcasts it
func (p *OperationState) ReportProgress(stageID string, progress int, message string, metadata map[string]interface{}) {
	if step := p.GetStage(stageID); step != nil {
		step.UpdateProgress(float64(progress), message)
		for k, v := range metadata {
			step.SetMetadata(k, v)
		}
	}
	if p.broadcaster != nil {
		p.broadcaster.UpdateStepWithMetadata(p.ID, stageID, progress, message, metadata)
	}
}

// ReportTraining broadcasts an epoch report
func (p *OperationState) ReportTraining(progress session.TrainingProgress, eta string) {
	if p.broadcaster == nil {
		return
	}
	ev := TrainingProgressEvent{
		OperationID:      p.ID,
		TrainingProgress: progress,
		ETA:              eta,
	}
	if p.Session != nil {
		ev.SessionID = p.Session.ID
	}
	p.broadcaster.PublishTrainingProgress(ev)
}

func (p *OperationState) end(status OperationStatusValue) {
	now := time.Now()
	p.EndTime = &now
	p.Status = status
}

// Start marks the operation running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end(OperationStatusCompleted)
}

// Fail marks the operation failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end(OperationStatusFailed)
	p.Error = err
}

// Cancel marks the operation cancelled
func (p *OperationState) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end(OperationStatusCancelled)
}

// GetStage returns the state of one stage
func (p *OperationState) GetStage(stageID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stageID]
}

// SetStage records the state of one stage
func (p *OperationState) SetStage(stageID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stageID] = state
}

// GetConfig returns a request parameter
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig sets a request parameter
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// Duration returns the elapsed run time
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures reports whether any stage failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Snapshot copies the stage state into its broadcast form
func (s *StepState) Snapshot() StepSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := StepSnapshot{
		ID:       s.ID,
		Name:     s.Name,
		Status:   string(s.Status),
		Progress: int(s.Progress),
		Message:  s.Message,
	}
	if s.Error != nil {
		out.Error = s.Error.Error()
	}
	if len(s.Metadata) > 0 {
		out.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
