package prediction

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "armpose/internal/errors"
	"armpose/internal/regressor"
)

func outputs(values ...float64) []regressor.LabeledOutput {
	out := make([]regressor.LabeledOutput, len(values))
	for i, v := range values {
		out[i] = regressor.LabeledOutput{Label: strconv.Itoa(i), Value: v}
	}
	return out
}

func TestDecode(t *testing.T) {
	p, err := Decode(outputs(10, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, Prediction{ElbowAngle: 10, WristAngle: 20, ShoulderAngle: 30}, p)
	assert.Equal(t, []float64{10, 20, 30}, p.Angles())
}

func TestDecode_IgnoresUnknownLabels(t *testing.T) {
	in := append(outputs(1, 2, 3), regressor.LabeledOutput{Label: "7", Value: 99})
	p, err := Decode(in)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.ShoulderAngle)
}

func TestDecode_Strict(t *testing.T) {
	tests := []struct {
		name string
		in   []regressor.LabeledOutput
	}{
		{"partial output", outputs(1, 2)},
		{"empty output", nil},
		{"missing label", []regressor.LabeledOutput{{Value: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			var structErr *StructureError
			require.ErrorAs(t, err, &structErr)
			assert.Equal(t, apperrors.ErrTypeStructure, apperrors.TypeOf(err))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	p, err := DecodeJSON([]byte(`[{"label":"0","value":10},{"label":"1","value":20},{"label":"2","value":30}]`))
	require.NoError(t, err)
	assert.Equal(t, Prediction{ElbowAngle: 10, WristAngle: 20, ShoulderAngle: 30}, p)

	bad := []struct {
		name string
		raw  string
	}{
		{"object", `{"label":"0","value":10}`},
		{"number", `42`},
		{"empty", ``},
		{"element not an object", `[1,2,3]`},
		{"missing value", `[{"label":"0"}]`},
		{"missing label", `[{"value":1}]`},
		{"numeric label", `[{"label":0,"value":1}]`},
		{"string value", `[{"label":"0","value":"x"}]`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(tt.raw))
			var structErr *StructureError
			assert.ErrorAs(t, err, &structErr)
		})
	}
}

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) Predict(ctx context.Context, features []float64) ([]regressor.LabeledOutput, error) {
	args := m.Called(ctx, features)
	out, _ := args.Get(0).([]regressor.LabeledOutput)
	return out, args.Error(1)
}

// echoPredictor returns the first feature as every angle after a delay
// that shrinks with the value, so later frames finish first.
type echoPredictor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (e *echoPredictor) Predict(ctx context.Context, features []float64) ([]regressor.LabeledOutput, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(10-int(features[0])) * time.Millisecond)
	v := features[0]
	return outputs(v, v, v), nil
}

func TestPredictAll_OrderedByFrame(t *testing.T) {
	frames := make([][]float64, 10)
	for i := range frames {
		frames[i] = []float64{float64(i)}
	}
	p := &echoPredictor{}

	preds, err := PredictAll(context.Background(), p, frames, 4)
	require.NoError(t, err)
	require.Len(t, preds, 10)
	for i, pred := range preds {
		assert.Equal(t, float64(i), pred.ElbowAngle)
	}
	assert.LessOrEqual(t, p.peak.Load(), int32(4))
}

func TestPredictAll_FailureCarriesFrame(t *testing.T) {
	m := &mockPredictor{}
	m.On("Predict", mock.Anything, []float64{0}).Return(outputs(1, 2, 3), nil)
	m.On("Predict", mock.Anything, []float64{1}).Return(nil, errors.New("boom"))

	_, err := PredictAll(context.Background(), m, [][]float64{{0}, {1}}, 1)

	var predErr *regressor.PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, 1, predErr.Frame)
	assert.Equal(t, []float64{1}, predErr.Input)
	assert.Equal(t, apperrors.ErrTypePrediction, apperrors.TypeOf(err))
}

func TestPredictAll_StructureErrorCarriesFrame(t *testing.T) {
	m := &mockPredictor{}
	m.On("Predict", mock.Anything, mock.Anything).Return(outputs(1, 2), nil)

	_, err := PredictAll(context.Background(), m, [][]float64{{5}}, 2)

	var structErr *StructureError
	require.ErrorAs(t, err, &structErr)
	assert.Equal(t, 0, structErr.Frame)
}

func TestPredictAll_StopsAfterFailure(t *testing.T) {
	m := &mockPredictor{}
	m.On("Predict", mock.Anything, []float64{0}).Return(nil, errors.New("first frame fails"))
	m.On("Predict", mock.Anything, mock.Anything).Return(outputs(1, 2, 3), nil).Maybe()

	frames := make([][]float64, 50)
	for i := range frames {
		frames[i] = []float64{float64(i)}
	}
	_, err := PredictAll(context.Background(), m, frames, 1)
	require.Error(t, err)

	// with a single worker nothing after the failed frame is started
	m.AssertNumberOfCalls(t, "Predict", 1)
}

func TestPredictAll_Empty(t *testing.T) {
	preds, err := PredictAll(context.Background(), &mockPredictor{}, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestPredictAll_WithRegressor(t *testing.T) {
	opts := regressor.DefaultOptions()
	opts.Epochs = 3
	opts.HiddenUnits1, opts.HiddenUnits2 = 8, 4
	r, err := regressor.Configure(2, 3, opts)
	require.NoError(t, err)
	require.NoError(t, r.AddExample([]float64{0, 1}, []float64{90, 10, 45}))
	require.NoError(t, r.AddExample([]float64{1, 0}, []float64{80, 20, 50}))
	require.NoError(t, r.Train(context.Background(), nil))

	preds, err := PredictAll(context.Background(), r, [][]float64{{0, 1}, {1, 0}}, 2)
	require.NoError(t, err)
	assert.Len(t, preds, 2)
}
