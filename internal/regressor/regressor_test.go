package regressor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "armpose/internal/errors"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.HiddenUnits1 = 16
	opts.HiddenUnits2 = 8
	opts.Epochs = 200
	opts.BatchSize = 8
	opts.LearningRate = 0.05
	return opts
}

// linearData builds y = (x0+x1, x0-x1, 2*x2) samples
func linearData(n int, seed int64) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	xs := make([][]float64, n)
	ys := make([][]float64, n)
	for i := range xs {
		x := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		xs[i] = x
		ys[i] = []float64{x[0] + x[1], x[0] - x[1], 2 * x[2]}
	}
	return xs, ys
}

func trained(t *testing.T, opts Options) *Regressor {
	t.Helper()
	r, err := Configure(3, 3, opts)
	require.NoError(t, err)
	xs, ys := linearData(128, 1)
	for i := range xs {
		require.NoError(t, r.AddExample(xs[i], ys[i]))
	}
	require.NoError(t, r.Train(context.Background(), nil))
	return r
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 32, opts.Epochs)
	assert.Equal(t, 12, opts.BatchSize)
	assert.Equal(t, "relu", opts.Activation)
	assert.Equal(t, 128, opts.HiddenUnits1)
	assert.Equal(t, 64, opts.HiddenUnits2)
	assert.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero epochs", func(o *Options) { o.Epochs = 0 }},
		{"unknown activation", func(o *Options) { o.Activation = "softmax" }},
		{"negative learning rate", func(o *Options) { o.LearningRate = -1 }},
		{"zero hidden units", func(o *Options) { o.HiddenUnits2 = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			assert.Error(t, opts.Validate())
			_, err := Configure(14, 3, opts)
			assert.Error(t, err)
		})
	}
}

func TestOptionsMerge(t *testing.T) {
	got := Options{Epochs: 5, Activation: "tanh"}.Merge(DefaultOptions())
	assert.Equal(t, 5, got.Epochs)
	assert.Equal(t, "tanh", got.Activation)
	assert.Equal(t, 12, got.BatchSize)
	assert.Equal(t, 128, got.HiddenUnits1)
	assert.Equal(t, int64(42), got.SeedValue())

	zero := Options{Seed: SeedOf(0)}.Merge(DefaultOptions())
	require.NotNil(t, zero.Seed)
	assert.Equal(t, int64(0), zero.SeedValue())
	assert.Equal(t, int64(0), Options{}.SeedValue())
}

func TestConfigureRejectsBadSizes(t *testing.T) {
	_, err := Configure(0, 3, DefaultOptions())
	assert.Error(t, err)
}

func TestAddExampleShape(t *testing.T) {
	r, err := Configure(3, 2, DefaultOptions())
	require.NoError(t, err)

	err = r.AddExample([]float64{1, 2}, []float64{1, 2})
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.ErrorIs(t, err, ErrShape)

	err = r.AddExample([]float64{1, 2, math.NaN()}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrNonFinite)

	err = r.AddExample([]float64{1, 2, 3}, []float64{1, math.Inf(1)})
	assert.ErrorIs(t, err, ErrNonFinite)

	require.NoError(t, r.AddExample([]float64{1, 2, 3}, []float64{1, 2}))
	assert.Equal(t, 1, r.Examples())
}

func TestTrainWithoutExamples(t *testing.T) {
	r, err := Configure(3, 3, DefaultOptions())
	require.NoError(t, err)

	err = r.Train(context.Background(), nil)
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.ErrorIs(t, err, ErrNoExamples)
	assert.Equal(t, apperrors.ErrTypeTraining, apperrors.TypeOf(err))
	assert.False(t, r.Trained())
}

func TestTrainReportsProgress(t *testing.T) {
	opts := smallOptions()
	opts.Epochs = 10

	r, err := Configure(3, 3, opts)
	require.NoError(t, err)
	xs, ys := linearData(30, 2)
	for i := range xs {
		require.NoError(t, r.AddExample(xs[i], ys[i]))
	}

	var epochs []int
	var losses []float64
	err = r.Train(context.Background(), func(epoch int, loss *float64) {
		epochs = append(epochs, epoch)
		require.NotNil(t, loss)
		losses = append(losses, *loss)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, epochs)
	assert.Less(t, losses[len(losses)-1], losses[0])
	require.NotNil(t, r.LastLoss())
	assert.True(t, r.Trained())
}

func TestTrainLearnsLinearMap(t *testing.T) {
	r := trained(t, smallOptions())

	out, err := r.Predict(context.Background(), []float64{0.5, 0.25, -0.25})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "0", out[0].Label)
	assert.Equal(t, "1", out[1].Label)
	assert.Equal(t, "2", out[2].Label)
	assert.InDelta(t, 0.75, out[0].Value, 0.3)
	assert.InDelta(t, 0.25, out[1].Value, 0.3)
	assert.InDelta(t, -0.5, out[2].Value, 0.3)
}

func TestTrainIsDeterministicForSeed(t *testing.T) {
	a := trained(t, smallOptions())
	b := trained(t, smallOptions())

	in := []float64{0.1, 0.2, 0.3}
	outA, err := a.Predict(context.Background(), in)
	require.NoError(t, err)
	outB, err := b.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)
}

func TestTrainActivations(t *testing.T) {
	for _, name := range []string{"relu", "sigmoid", "tanh", "linear"} {
		t.Run(name, func(t *testing.T) {
			opts := smallOptions()
			opts.Activation = name
			opts.Epochs = 5
			r := trained(t, opts)
			_, err := r.Predict(context.Background(), []float64{0, 0, 0})
			assert.NoError(t, err)
		})
	}
}

func TestTrainCancelled(t *testing.T) {
	r, err := Configure(3, 3, smallOptions())
	require.NoError(t, err)
	xs, ys := linearData(16, 3)
	for i := range xs {
		require.NoError(t, r.AddExample(xs[i], ys[i]))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Train(ctx, nil)

	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.Equal(t, 1, trainErr.Epoch)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTrainDivergence(t *testing.T) {
	opts := smallOptions()
	opts.Activation = "linear"
	opts.LearningRate = 10
	opts.Epochs = 200

	r, err := Configure(3, 3, opts)
	require.NoError(t, err)
	for i := 0; i < 32; i++ {
		x := float64(i)
		require.NoError(t, r.AddExample([]float64{x * 100, -x * 100, x * 50}, []float64{x, 2 * x, 3 * x}))
	}

	err = r.Train(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestPredictErrors(t *testing.T) {
	r, err := Configure(3, 3, smallOptions())
	require.NoError(t, err)

	_, err = r.Predict(context.Background(), []float64{1, 2, 3})
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Equal(t, []float64{1, 2, 3}, predErr.Input)
	assert.Equal(t, apperrors.ErrTypePrediction, apperrors.TypeOf(err))

	r = trained(t, smallOptions())
	_, err = r.Predict(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrShape)
}

func TestPredictConcurrent(t *testing.T) {
	r := trained(t, smallOptions())
	in := []float64{0.3, -0.1, 0.2}
	want, err := r.Predict(context.Background(), in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Predict(context.Background(), in)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestTrainProgressCanReadModel(t *testing.T) {
	opts := smallOptions()
	opts.Epochs = 5
	r, err := Configure(3, 3, opts)
	require.NoError(t, err)
	xs, ys := linearData(32, 4)
	for i := range xs {
		require.NoError(t, r.AddExample(xs[i], ys[i]))
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Train(context.Background(), func(epoch int, loss *float64) {
			assert.False(t, r.Trained())
			assert.Equal(t, 32, r.Examples())
			assert.Nil(t, r.LastLoss())
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Train blocked while the progress callback read the model")
	}
	assert.True(t, r.Trained())
}

func TestFailedRetrainKeepsPreviousFit(t *testing.T) {
	r := trained(t, smallOptions())
	x := []float64{0.2, -0.4, 0.1}
	before, err := r.Predict(context.Background(), x)
	require.NoError(t, err)
	loss := r.LastLoss()

	ctx, cancel := context.WithCancel(context.Background())
	err = r.Train(ctx, func(epoch int, _ *float64) {
		if epoch == 2 {
			cancel()
		}
	})
	var trainErr *TrainingError
	require.ErrorAs(t, err, &trainErr)
	assert.Equal(t, 3, trainErr.Epoch)

	assert.True(t, r.Trained())
	assert.Equal(t, loss, r.LastLoss())
	after, err := r.Predict(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
