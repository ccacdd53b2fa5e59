package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"armpose/internal/session"
)

// StatusBroadcaster owns the broadcast view of every operation. Updates are
// applied one at a time by a single goroutine and each one pushes a full
// snapshot to the hub.
type StatusBroadcaster struct {
	mu         sync.RWMutex
	operations map[string]*OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
	updates    chan updateRequest
	stop       chan struct{}
	stopOnce   sync.Once
}

// OperationSnapshot is the complete state of an operation sent to clients
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	SessionID   string         `json:"session_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot is the state of one stage within a snapshot
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TrainingProgressEvent is broadcast once per completed epoch
type TrainingProgressEvent struct {
	OperationID string `json:"operation_id"`
	SessionID   string `json:"session_id"`
	session.TrainingProgress
	ETA string `json:"eta,omitempty"`
}

type updateRequest struct {
	operationID string
	updateFunc  func(*OperationSnapshot)
	done        chan struct{}
}

func isTerminal(status string) bool {
	return status == string(OperationStatusCompleted) ||
		status == string(OperationStatusFailed) ||
		status == string(OperationStatusCancelled)
}

// NewStatusBroadcaster starts a broadcaster. Call Stop to release it.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		operations: make(map[string]*OperationSnapshot),
		hub:        hub,
		logger:     logger,
		updates:    make(chan updateRequest, 100),
		stop:       make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	snapshot, exists := sb.operations[req.operationID]
	if !exists {
		now := time.Now()
		snapshot = &OperationSnapshot{
			OperationID: req.operationID,
			Status:      string(OperationStatusPending),
			StartedAt:   now,
			UpdatedAt:   now,
		}
		sb.operations[req.operationID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}

	if isTerminal(snapshot.Status) && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}

	out := snapshot.clone()
	sb.mu.Unlock()

	sb.broadcast(out)
}

func (s *OperationSnapshot) clone() *OperationSnapshot {
	c := *s
	c.Steps = append([]StepSnapshot(nil), s.Steps...)
	return &c
}

func (sb *StatusBroadcaster) broadcast(snapshot *OperationSnapshot) {
	if sb.hub == nil {
		return
	}

	sb.logger.Debug("broadcasting operation snapshot",
		slog.String("operation_id", snapshot.OperationID),
		slog.String("session_id", snapshot.SessionID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep))

	sb.hub.BroadcastUpdate(EventTypeOperationSnapshot, snapshot.CurrentStep, snapshot.Status, snapshot)
}

// UpdateStatus applies updateFunc to the operation's snapshot and broadcasts
// the result. It blocks until the update has been applied.
func (sb *StatusBroadcaster) UpdateStatus(operationID string, updateFunc func(*OperationSnapshot)) {
	req := updateRequest{
		operationID: operationID,
		updateFunc:  updateFunc,
		done:        make(chan struct{}),
	}

	select {
	case sb.updates <- req:
		<-req.done
	case <-sb.stop:
	}
}

// CreateOperation registers an operation and its stages. steps are
// stage IDs paired with display names.
func (sb *StatusBroadcaster) CreateOperation(operationID, sessionID string, steps []Step) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.SessionID = sessionID
		snapshot.Status = string(OperationStatusPending)
		snapshot.Progress = 0
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: string(StepStatusPending),
			}
		}
		snapshot.Message = "Operation created"
	})
}

// StartOperation marks an operation running
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusRunning)
		snapshot.Message = "Operation started"
	})
}

// UpdateStepProgress sets a stage's progress and message
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	sb.UpdateStepWithMetadata(operationID, stepID, progress, message, nil)
}

// UpdateStepWithMetadata sets a stage's progress, message and metadata.
// Progress never moves backwards while a stage is active.
func (sb *StatusBroadcaster) UpdateStepWithMetadata(operationID, stepID string, progress int, message string, metadata map[string]interface{}) {
	progress = min(max(progress, 0), 100)

	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		for i := range snapshot.Steps {
			step := &snapshot.Steps[i]
			if step.ID != stepID {
				continue
			}
			if !(progress < step.Progress && step.Status == string(StepStatusActive)) {
				step.Progress = progress
			}
			step.Message = message
			if metadata != nil {
				step.Metadata = metadata
			}
			if progress < 100 {
				step.Status = string(StepStatusActive)
				snapshot.CurrentStep = step.ID
			} else {
				step.Status = string(StepStatusCompleted)
			}
			return
		}

		snapshot.Steps = append(snapshot.Steps, StepSnapshot{
			ID:       stepID,
			Name:     stepID,
			Status:   string(StepStatusActive),
			Progress: progress,
			Message:  message,
			Metadata: metadata,
		})
		snapshot.CurrentStep = stepID
	})
}

func (sb *StatusBroadcaster) setStep(operationID, stepID string, fn func(*StepSnapshot)) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				fn(&snapshot.Steps[i])
				return
			}
		}
	})
}

// CompleteStep marks a stage completed
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID, message string) {
	sb.setStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusCompleted)
		s.Progress = 100
		s.Message = message
	})
}

// FailStep marks a stage failed
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.setStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusFailed)
		s.Error = err.Error()
	})
}

// SkipStep marks a stage skipped
func (sb *StatusBroadcaster) SkipStep(operationID, stepID, reason string) {
	sb.setStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusSkipped)
		s.Message = reason
	})
}

// CompleteOperation marks an operation completed
func (sb *StatusBroadcaster) CompleteOperation(operationID, message string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCompleted)
		snapshot.Progress = 100
		snapshot.CurrentStep = ""
		snapshot.Message = message
	})
}

// FailOperation marks an operation failed
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusFailed)
		snapshot.Error = err.Error()
		snapshot.CurrentStep = ""
	})
}

// CancelOperation marks an operation cancelled
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCancelled)
		snapshot.CurrentStep = ""
		snapshot.Message = "Operation cancelled"
	})
}

// PublishTrainingProgress sends one epoch report to clients
func (sb *StatusBroadcaster) PublishTrainingProgress(ev TrainingProgressEvent) {
	if sb.hub == nil {
		return
	}
	status := "running"
	if ev.Done {
		status = "completed"
	}
	sb.hub.BroadcastUpdate(EventTypeTrainingProgress, StageIDTrain, status, ev)
}

// GetSnapshot returns a copy of an operation's snapshot
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*OperationSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.operations[operationID]
	if !exists {
		return nil, false
	}
	return snapshot.clone(), true
}

// GetSessionSnapshots returns copies of every snapshot for one session,
// most recent first
func (sb *StatusBroadcaster) GetSessionSnapshots(sessionID string) []*OperationSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	var out []*OperationSnapshot
	for _, snapshot := range sb.operations {
		if snapshot.SessionID == sessionID {
			out = append(out, snapshot.clone())
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartedAt.After(out[j-1].StartedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// CleanupOldOperations drops finished snapshots older than maxAge
func (sb *StatusBroadcaster) CleanupOldOperations(ctx context.Context, maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, snapshot := range sb.operations {
		if !isTerminal(snapshot.Status) || snapshot.CompletedAt == nil {
			continue
		}
		if age := now.Sub(*snapshot.CompletedAt); age > maxAge {
			delete(sb.operations, id)
			removed++
			sb.logger.DebugContext(ctx, "cleaned up old operation",
				slog.String("operation_id", id),
				slog.String("status", snapshot.Status),
				slog.Duration("age", age))
		}
	}
	return removed
}

// Stop shuts the broadcaster down. Later updates are dropped.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}
