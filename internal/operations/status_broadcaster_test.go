package operations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armpose/internal/operations"
	"armpose/internal/operations/testutil"
	"armpose/internal/session"
	sharedtest "armpose/internal/shared/testutil"
)

func newBroadcaster(t *testing.T) (*operations.StatusBroadcaster, *testutil.MockWebSocketHub) {
	t.Helper()
	hub := &testutil.MockWebSocketHub{}
	logger, _ := sharedtest.NewTestLogger(t)
	sb := operations.NewStatusBroadcaster(hub, logger)
	t.Cleanup(sb.Stop)
	return sb, hub
}

func TestStatusBroadcaster_Lifecycle(t *testing.T) {
	sb, hub := newBroadcaster(t)
	steps := []operations.Step{
		&testutil.MockStage{IDValue: "calibrate", NameValue: "Calibration"},
		&testutil.MockStage{IDValue: "train", NameValue: "Model Training"},
	}

	sb.CreateOperation("op1", "s1", steps)
	sb.StartOperation("op1")
	sb.UpdateStepProgress("op1", "calibrate", 50, "half way")

	snap, ok := sb.GetSnapshot("op1")
	require.True(t, ok)
	assert.Equal(t, "running", snap.Status)
	assert.Equal(t, "calibrate", snap.CurrentStep)
	assert.Equal(t, 25, snap.Progress)
	assert.Equal(t, "Calibration", snap.Steps[0].Name)

	// progress does not move backwards while active
	sb.UpdateStepProgress("op1", "calibrate", 20, "late event")
	snap, _ = sb.GetSnapshot("op1")
	assert.Equal(t, 50, snap.Steps[0].Progress)

	sb.CompleteStep("op1", "calibrate", "done")
	sb.FailStep("op1", "train", errors.New("diverged"))
	sb.FailOperation("op1", errors.New("diverged"))

	snap, _ = sb.GetSnapshot("op1")
	assert.Equal(t, "failed", snap.Status)
	assert.Equal(t, "diverged", snap.Steps[1].Error)
	assert.NotNil(t, snap.CompletedAt)

	assert.Len(t, hub.GetMessagesByType(operations.EventTypeOperationSnapshot), 7)
}

func TestStatusBroadcaster_SnapshotsAreCopies(t *testing.T) {
	sb, _ := newBroadcaster(t)
	sb.CreateOperation("op1", "s1", []operations.Step{&testutil.MockStage{IDValue: "a"}})

	snap, _ := sb.GetSnapshot("op1")
	snap.Steps[0].Status = "tampered"

	again, _ := sb.GetSnapshot("op1")
	assert.Equal(t, "pending", again.Steps[0].Status)
}

func TestStatusBroadcaster_SessionSnapshotsAndCleanup(t *testing.T) {
	sb, _ := newBroadcaster(t)
	sb.CreateOperation("op1", "s1", nil)
	sb.CreateOperation("op2", "s2", nil)
	sb.CompleteOperation("op1", "ok")

	got := sb.GetSessionSnapshots("s1")
	require.Len(t, got, 1)
	assert.Equal(t, "op1", got[0].OperationID)

	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, 1, sb.CleanupOldOperations(context.Background(), time.Millisecond))
	_, ok := sb.GetSnapshot("op1")
	assert.False(t, ok)
	_, ok = sb.GetSnapshot("op2")
	assert.True(t, ok, "running operations are kept")
}

func TestStatusBroadcaster_TrainingProgress(t *testing.T) {
	sb, hub := newBroadcaster(t)
	loss := 0.25
	p := session.NewTrainingProgress(2, 4, &loss)

	sb.PublishTrainingProgress(operations.TrainingProgressEvent{OperationID: "op1", SessionID: "s1", TrainingProgress: p})

	msgs := hub.GetMessagesByType(operations.EventTypeTrainingProgress)
	require.Len(t, msgs, 1)
	assert.Equal(t, operations.StageIDTrain, msgs[0].Step)
	ev := msgs[0].Metadata.(operations.TrainingProgressEvent)
	assert.Equal(t, 50, ev.Percent)
}

func TestStatusBroadcaster_StopDropsUpdates(t *testing.T) {
	sb, _ := newBroadcaster(t)
	sb.Stop()
	assert.NotPanics(t, func() { sb.StartOperation("op1") })
}
