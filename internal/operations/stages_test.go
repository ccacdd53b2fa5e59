package operations_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/operations"
	"armpose/internal/operations/testutil"
	"armpose/internal/regressor"
	"armpose/internal/session"
	sharedtest "armpose/internal/shared/testutil"
)

func load(t *testing.T, csv string, role dataset.Role) *dataset.ValidationResult {
	t.Helper()
	res, err := dataset.Load(context.Background(), strings.NewReader(csv), string(role)+".csv", role)
	require.NoError(t, err)
	return res
}

func pipelineFixtures(t *testing.T) (cal *dataset.ValidationResult, train, test *dataset.RecordSet) {
	cal = load(t, sharedtest.CalibrationCSV([][]float64{
		sharedtest.UniformRow(1, 1),
		sharedtest.UniformRow(2, 1),
		sharedtest.UniformRow(3, 1),
	}), dataset.RoleCalibration)

	train = load(t, sharedtest.TrainingCSV(
		[][]float64{sharedtest.UniformRow(1.5, 1), sharedtest.UniformRow(2.5, 1)},
		[][3]float64{{120, 10, 30}, {60, 20, 45}},
	), dataset.RoleTraining).Set

	test = load(t, sharedtest.TestCSV([][]float64{
		sharedtest.UniformRow(1.2, 1),
		sharedtest.UniformRow(2.8, 1),
	}), dataset.RoleTest).Set
	return cal, train, test
}

func pipelineManager(t *testing.T, hub operations.WebSocketHub) *operations.Manager {
	t.Helper()
	cfg := operations.NewConfig()
	cfg.Model.Epochs = 5
	cfg.Model.HiddenUnits1 = 8
	cfg.Model.HiddenUnits2 = 4
	cfg.PredictConcurrency = 2

	logger, _ := sharedtest.NewTestLogger(t)
	m := operations.NewManager(hub, nil, cfg, nil, logger)
	t.Cleanup(m.Close)
	require.NoError(t, operations.RegisterPipeline(m, cfg))
	return m
}

func TestPipeline_EndToEnd(t *testing.T) {
	hub := &testutil.MockWebSocketHub{}
	m := pipelineManager(t, hub)
	cal, train, test := pipelineFixtures(t)
	sess := session.New("s1")

	resp, err := m.Execute(context.Background(), sess, operations.OperationRequest{
		Parameters: map[string]interface{}{
			operations.ParamCalibration: cal,
			operations.ParamTraining:    train,
			operations.ParamTest:        test,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	require.Len(t, resp.Steps, 4)

	preds, err := sess.Predictions()
	require.NoError(t, err)
	require.Len(t, preds, 2)
	for _, p := range preds {
		assert.Len(t, p.Angles(), 3)
	}

	progress := sess.Progress()
	assert.True(t, progress.Done)
	assert.Equal(t, 100, progress.Percent)
	assert.Equal(t, 5, progress.Epochs)

	epochs := hub.GetMessagesByType(operations.EventTypeTrainingProgress)
	assert.Len(t, epochs, 6, "one event per epoch plus the final report")
	assert.NotEmpty(t, sess.Fingerprint())
}

func TestPipeline_StepByStep(t *testing.T) {
	m := pipelineManager(t, nil)
	cal, train, test := pipelineFixtures(t)
	sess := session.New("s1")
	ctx := context.Background()

	run := func(step string, params map[string]interface{}) error {
		if params == nil {
			params = map[string]interface{}{}
		}
		params[operations.ParamStep] = step
		_, err := m.Execute(ctx, sess, operations.OperationRequest{Parameters: params})
		return err
	}

	// train before anything else is a conflict with the session state
	err := run(operations.StageIDTrain, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeConflict, apperrors.TypeOf(err))

	require.NoError(t, run(operations.StageIDCalibrate, map[string]interface{}{operations.ParamCalibration: cal}))

	err = run(operations.StageIDCalibrate, map[string]interface{}{operations.ParamCalibration: cal})
	assert.ErrorIs(t, err, session.ErrStatsAlreadySet)

	require.NoError(t, run(operations.StageIDPrepareTraining, map[string]interface{}{operations.ParamTraining: train}))

	err = run(operations.StageIDTrain, map[string]interface{}{
		operations.ParamOptions: regressor.Options{Activation: "softmax"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeTraining, apperrors.TypeOf(err))

	require.NoError(t, run(operations.StageIDTrain, map[string]interface{}{
		operations.ParamOptions: regressor.Options{Activation: "tanh", Epochs: 3},
	}))
	model, err := sess.TrainedModel()
	require.NoError(t, err)
	assert.Equal(t, "tanh", model.Options().Activation)
	assert.Equal(t, 2, model.Examples())

	require.NoError(t, run(operations.StageIDPredict, map[string]interface{}{operations.ParamTest: test}))
	std, err := sess.Standardized()
	require.NoError(t, err)
	assert.Equal(t, 2, std.Len())
}

func TestPipeline_ZeroDeviationCalibration(t *testing.T) {
	m := pipelineManager(t, nil)
	cal := load(t, sharedtest.CalibrationCSV([][]float64{
		sharedtest.UniformRow(1, 1),
		sharedtest.UniformRow(1, 1),
	}), dataset.RoleCalibration)
	sess := session.New("s1")

	_, err := m.Execute(context.Background(), sess, operations.OperationRequest{
		Parameters: map[string]interface{}{
			operations.ParamStep:        operations.StageIDCalibrate,
			operations.ParamCalibration: cal,
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeConfiguration, apperrors.TypeOf(err))

	_, err = sess.Stats()
	assert.ErrorIs(t, err, session.ErrNotCalibrated)
}

func TestPipeline_MissingInput(t *testing.T) {
	m := pipelineManager(t, nil)

	_, err := m.Execute(context.Background(), session.New("s1"), operations.OperationRequest{
		Parameters: map[string]interface{}{operations.ParamStep: operations.StageIDCalibrate},
	})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	assert.Contains(t, err.Error(), "missing calibration input")
}
