package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"armpose/internal/session"
)

// Manager runs pipeline stages against sessions. Runs on the same session
// are serialized; runs on different sessions proceed independently.
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *OperationTracer
	logger      *slog.Logger

	mu         sync.RWMutex
	operations map[string]*OperationState

	locksMu      sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewManager creates a manager. A nil registry or config gets the defaults.
func NewManager(hub WebSocketHub, registry *Registry, config *Config, tracer *OperationTracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = NewOperationTracer(nil)
	}
	logger = logger.With(slog.String("component", "operations"))

	return &Manager{
		registry:     registry,
		config:       config,
		broadcaster:  NewStatusBroadcaster(hub, logger),
		tracer:       tracer,
		logger:       logger,
		operations:   make(map[string]*OperationState),
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// RegisterStage adds a stage
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the stage registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Close stops the broadcaster
func (m *Manager) Close() {
	m.broadcaster.Stop()
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.sessionLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.sessionLocks[id] = l
	}
	return l
}

// ForgetSession drops the run lock of a deleted session
func (m *Manager) ForgetSession(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.sessionLocks, id)
}

// Execute runs the requested stage, or the whole pipeline, against sess.
// The returned error is the failing stage's error; domain errors remain
// reachable through errors.As.
func (m *Manager) Execute(ctx context.Context, sess *session.Session, req OperationRequest) (*OperationResponse, error) {
	if sess == nil {
		return nil, fmt.Errorf("execute operation: nil session")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.SessionID = sess.ID

	lock := m.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := m.tracer.TraceOperation(ctx, req)

	state := NewOperationState(req.ID, sess)
	state.broadcaster = m.broadcaster
	state.metrics = m.tracer.Metrics()
	state.logger = m.logger.With(
		slog.String("operation_id", req.ID),
		slog.String("session_id", sess.ID))
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	m.storeOperation(state)
	defer m.removeOperation(req.ID)

	steps, err := m.resolveSteps(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		m.tracer.EndOperation(span, state.Status, err)
		return m.createResponse(state, nil), err
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateOperation(req.ID, sess.ID, steps)

	m.logOperationStart(ctx, req)
	state.Start()
	m.broadcaster.StartOperation(req.ID)

	err = m.executeSequential(ctx, state, steps)

	switch {
	case err == nil:
		state.Complete()
		m.broadcaster.CompleteOperation(req.ID, "Operation completed successfully")
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel()
		m.broadcaster.CancelOperation(req.ID)
	default:
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
	}
	m.logOperationComplete(ctx, req.ID, state.Duration(), string(state.Status))
	m.tracer.EndOperation(span, state.Status, err)

	return m.createResponse(state, steps), err
}

func (m *Manager) resolveSteps(req OperationRequest) ([]Step, error) {
	name := req.Step()
	if name == StepFullPipeline {
		steps, err := m.registry.GetDependencyOrder()
		if err != nil {
			return nil, fmt.Errorf("failed to get dependency order: %w", err)
		}
		return steps, nil
	}

	step, err := m.registry.Get(name)
	if err != nil {
		unknown := *ErrUnknownStep
		unknown.Step = name
		unknown.Cause = err
		return nil, &unknown
	}
	return []Step{step}, nil
}

func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	var firstErr error

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			m.logger.WarnContext(ctx, "operation_cancelled", slog.String("step", step.ID()))
			return NewCancellationError(step.ID(), err)
		}

		stepState := state.GetStage(step.ID())
		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}

		m.logger.InfoContext(ctx, "executing_stage",
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		if err := m.executeStage(ctx, state, step); err != nil {
			m.logStageError(ctx, state.ID, step.ID(), err)
			m.skipDependentStages(state, steps, step.ID())
			if !m.config.ContinueOnError {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())

	if err := checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		m.broadcaster.SkipStep(state.ID, step.ID(), err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		verr := NewValidationError(step.ID(), "preconditions not met", err)
		stepState.Fail(verr)
		m.broadcaster.FailStep(state.ID, step.ID(), verr)
		return verr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stepState.Start()
		m.broadcaster.UpdateStepProgress(state.ID, step.ID(), 0, "Stage started")
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		err := m.runAttempt(ctx, state, step, timeout)
		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), "Stage completed successfully")
			m.logStageComplete(ctx, state.ID, step.ID(), stepState.Duration())
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == retry.MaxAttempts {
			break
		}

		delay := calculateRetryDelay(attempt, retry)
		m.logger.WarnContext(ctx, "stage_retry",
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = NewCancellationError(step.ID(), ctx.Err())
			attempt = retry.MaxAttempts
		}
	}

	stepState.Fail(lastErr)
	m.broadcaster.FailStep(state.ID, step.ID(), lastErr)
	return lastErr
}

func (m *Manager) runAttempt(ctx context.Context, state *OperationState, step Step, timeout time.Duration) error {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stageCtx, span := m.tracer.TraceStage(stageCtx, state.ID, step.ID())
	start := time.Now()
	err := step.Execute(stageCtx, state)
	duration := time.Since(start)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = NewCancellationError(step.ID(), err)
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		err = NewTimeoutError(step.ID(), timeout.String(), err)
	default:
		err = WrapError(err, step.ID(), "stage execution failed")
	}

	m.tracer.EndStage(stageCtx, span, step.ID(), duration, err)
	return err
}

// skipDependentStages skips every pending stage that transitively depends
// on failedStageID
func (m *Manager) skipDependentStages(state *OperationState, steps []Step, failedStageID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedStageID {
				continue
			}
			stepState := state.GetStage(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				reason := fmt.Sprintf("dependency %s failed", failedStageID)
				stepState.Skip(reason)
				m.broadcaster.SkipStep(state.ID, step.ID(), reason)
				m.skipDependentStages(state, steps, step.ID())
			}
			break
		}
	}
}

// checkDependencies only considers dependencies that are part of this run.
// Dependencies satisfied by an earlier run are checked by the stage's own
// Validate against the session.
func checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep,
				fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

func calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * config.Multiplier)
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

func (m *Manager) createResponse(state *OperationState, steps []Step) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.Status,
		Duration: state.Duration(),
	}
	if state.Session != nil {
		resp.SessionID = state.Session.ID
	}
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil {
			resp.Steps = append(resp.Steps, s.Snapshot())
		}
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	return resp
}

// ActiveOperations returns the IDs of running operations
func (m *Manager) ActiveOperations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.operations))
	for id := range m.operations {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) storeOperation(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}
