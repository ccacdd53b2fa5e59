package operations_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "armpose/internal/errors"
	"armpose/internal/operations"
	"armpose/internal/operations/testutil"
	"armpose/internal/session"
	sharedtest "armpose/internal/shared/testutil"
)

func newManager(t *testing.T, hub operations.WebSocketHub, cfg *operations.Config, stages ...operations.Step) *operations.Manager {
	t.Helper()
	logger, _ := sharedtest.NewTestLogger(t)
	m := operations.NewManager(hub, nil, cfg, nil, logger)
	t.Cleanup(m.Close)
	for _, s := range stages {
		require.NoError(t, m.RegisterStage(s))
	}
	return m
}

func fastConfig() *operations.Config {
	cfg := operations.NewConfig()
	cfg.RetryConfig.InitialDelay = time.Millisecond
	cfg.RetryConfig.MaxDelay = time.Millisecond
	return cfg
}

func TestManager_ExecuteFullPipeline(t *testing.T) {
	hub := &testutil.MockWebSocketHub{}
	var order []string
	record := func(id string) func(context.Context, *operations.OperationState) error {
		return func(context.Context, *operations.OperationState) error {
			order = append(order, id)
			return nil
		}
	}

	m := newManager(t, hub, fastConfig(),
		&testutil.MockStage{IDValue: "b", DependenciesValue: []string{"a"}, ExecuteFunc: record("b")},
		&testutil.MockStage{IDValue: "a", ExecuteFunc: record("a")},
	)

	resp, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	assert.Equal(t, "s1", resp.SessionID)
	assert.NotEmpty(t, resp.ID)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, string(operations.StepStatusCompleted), resp.Steps[1].Status)

	snap, ok := hub.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, "completed", snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Empty(t, m.ActiveOperations())
}

func TestManager_ExecuteSingleStep(t *testing.T) {
	a := &testutil.MockStage{IDValue: "a"}
	b := &testutil.MockStage{IDValue: "b", DependenciesValue: []string{"a"}}
	m := newManager(t, nil, fastConfig(), a, b)

	_, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{
		Parameters: map[string]interface{}{operations.ParamStep: "b"},
	})
	require.NoError(t, err)

	// a is not part of the run, so b does not wait for it
	assert.Equal(t, 0, a.ExecuteCalls())
	assert.Equal(t, 1, b.ExecuteCalls())
}

func TestManager_UnknownStep(t *testing.T) {
	m := newManager(t, nil, fastConfig())

	resp, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{
		Parameters: map[string]interface{}{operations.ParamStep: "nope"},
	})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
}

func TestManager_FailureSkipsDependents(t *testing.T) {
	domainErr := apperrors.NewAppError(apperrors.ErrTypeConfiguration, "zero stddev", nil)
	a := &testutil.MockStage{IDValue: "a", ExecuteFunc: func(context.Context, *operations.OperationState) error {
		return domainErr
	}}
	b := &testutil.MockStage{IDValue: "b", DependenciesValue: []string{"a"}}
	m := newManager(t, nil, fastConfig(), a, b)

	resp, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{})
	require.Error(t, err)

	// the domain classification survives the operation wrapper
	assert.ErrorIs(t, err, domainErr)
	assert.Equal(t, apperrors.ErrTypeConfiguration, apperrors.TypeOf(err))
	assert.False(t, operations.IsRetryable(err))

	assert.Equal(t, 1, a.ExecuteCalls(), "non-retryable errors run once")
	assert.Equal(t, 0, b.ExecuteCalls())
	assert.Equal(t, string(operations.StepStatusSkipped), resp.Steps[1].Status)
}

func TestManager_ValidationFailureKeepsCause(t *testing.T) {
	a := &testutil.MockStage{IDValue: "a", ValidateFunc: func(*operations.OperationState) error {
		return session.ErrNotCalibrated
	}}
	m := newManager(t, nil, fastConfig(), a)

	_, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	assert.ErrorIs(t, err, session.ErrNotCalibrated)
	assert.Equal(t, 0, a.ExecuteCalls())
}

func TestManager_TimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	slow := &testutil.MockStage{IDValue: "slow", ExecuteFunc: func(ctx context.Context, _ *operations.OperationState) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	cfg := fastConfig()
	cfg.SetStageTimeout("slow", 20*time.Millisecond)
	m := newManager(t, nil, cfg, slow)

	_, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestManager_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &testutil.MockStage{IDValue: "a", ExecuteFunc: func(context.Context, *operations.OperationState) error {
		cancel()
		return nil
	}}
	b := &testutil.MockStage{IDValue: "b", DependenciesValue: []string{"a"}}
	m := newManager(t, nil, fastConfig(), a, b)

	resp, err := m.Execute(ctx, session.New("s1"), operations.OperationRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	assert.Equal(t, 0, b.ExecuteCalls())
}

func TestManager_SerializesRunsPerSession(t *testing.T) {
	var running, peak atomic.Int32
	stage := &testutil.MockStage{IDValue: "a", ExecuteFunc: func(context.Context, *operations.OperationState) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}}
	m := newManager(t, nil, fastConfig(), stage)
	sess := session.New("s1")

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_, _ = m.Execute(context.Background(), sess, operations.OperationRequest{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 4, stage.ExecuteCalls())
}
