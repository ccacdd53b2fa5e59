package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armpose/internal/calibration"
	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/playback"
	"armpose/internal/prediction"
	"armpose/internal/regressor"
	"armpose/internal/shared/testutil"
)

func calibrated(t *testing.T) (calibration.ChannelStats, *dataset.ValidationResult) {
	t.Helper()
	csv := testutil.CalibrationCSV([][]float64{testutil.UniformRow(1, 1), testutil.UniformRow(3, 2)})
	res, err := dataset.Load(context.Background(), strings.NewReader(csv), "cal.csv", dataset.RoleCalibration)
	require.NoError(t, err)
	stats, err := calibration.Estimate(res.Set)
	require.NoError(t, err)
	return stats, res
}

func TestNewTrainingProgress(t *testing.T) {
	loss := 0.123456
	p := NewTrainingProgress(8, 32, &loss)
	assert.Equal(t, 25, p.Percent)
	assert.Equal(t, "Epoch 8/32, loss: 0.1235", p.Message)
	require.NotNil(t, p.Loss)
	assert.Equal(t, loss, *p.Loss)

	p = NewTrainingProgress(1, 3, &loss)
	assert.Equal(t, 33, p.Percent)

	p = NewTrainingProgress(5, 32, nil)
	assert.Equal(t, 0, p.Percent)
	assert.Nil(t, p.Loss)
	assert.Equal(t, "Epoch 5/32, loss: N/A", p.Message)
}

func TestSession_CalibrationIsWriteOnce(t *testing.T) {
	s := New("s1")
	_, err := s.Stats()
	assert.ErrorIs(t, err, ErrNotCalibrated)

	stats, res := calibrated(t)
	require.NoError(t, s.SetCalibration(stats, res))

	got, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats, got)
	assert.Equal(t, stats.Fingerprint(), s.Fingerprint())

	err = s.SetCalibration(stats, res)
	assert.ErrorIs(t, err, ErrStatsAlreadySet)
	assert.Equal(t, apperrors.ErrTypeConflict, apperrors.TypeOf(err))

	s.Reset()
	assert.Empty(t, s.Fingerprint())
	assert.NoError(t, s.SetCalibration(stats, res))
}

func TestSession_TrainingReplacesModel(t *testing.T) {
	s := New("s1")
	_, err := s.Training()
	assert.ErrorIs(t, err, ErrNoTrainingData)
	_, err = s.TrainedModel()
	assert.ErrorIs(t, err, ErrNotTrained)

	s.SetTraining(&dataset.RecordSet{Records: []dataset.Record{{Line: 2}}})
	set, err := s.Training()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	s.SetProgress(TrainingProgress{Epoch: 3})
	s.SetTraining(&dataset.RecordSet{Records: []dataset.Record{{Line: 2}}})
	assert.Equal(t, 0, s.Progress().Epoch)
	_, err = s.TrainedModel()
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestSession_SetModelRequiresTrainedModel(t *testing.T) {
	s := New("s1")
	assert.ErrorIs(t, s.SetModel(nil), ErrNotTrained)

	model, err := regressor.Configure(1, 1, regressor.DefaultOptions())
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetModel(model), ErrNotTrained)
	assert.False(t, s.Summary().Trained)

	require.NoError(t, model.AddExample([]float64{1}, []float64{2}))
	require.NoError(t, model.AddExample([]float64{2}, []float64{4}))
	require.NoError(t, model.Train(context.Background(), nil))
	require.NoError(t, s.SetModel(model))

	got, err := s.TrainedModel()
	require.NoError(t, err)
	assert.Same(t, model, got)
	assert.True(t, s.Summary().Trained)
}

func TestSession_ResultsAndPlayer(t *testing.T) {
	s := New("s1")
	_, err := s.Predictions()
	assert.ErrorIs(t, err, ErrNoPredictions)

	factory := func(p []prediction.Prediction) *playback.Player {
		return playback.New(p, playback.Options{SessionID: s.ID, Tick: time.Millisecond})
	}
	_, err = s.Player(factory)
	assert.ErrorIs(t, err, ErrNoPredictions)

	preds := []prediction.Prediction{{ElbowAngle: 1}, {ElbowAngle: 2}}
	s.SetResults(&dataset.RecordSet{Records: make([]dataset.Record, 2)}, preds)

	got, err := s.Predictions()
	require.NoError(t, err)
	assert.Equal(t, preds, got)

	p1, err := s.Player(factory)
	require.NoError(t, err)
	p2, err := s.Player(factory)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	// new results replace the player
	s.SetResults(&dataset.RecordSet{}, preds[:1])
	p3, err := s.Player(factory)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, 1, p3.State().Total)
}

func TestSession_Summary(t *testing.T) {
	s := New("s1")
	stats, res := calibrated(t)
	require.NoError(t, s.SetCalibration(stats, res))
	s.SetTraining(&dataset.RecordSet{Records: make([]dataset.Record, 4)})

	sum := s.Summary()
	assert.Equal(t, "s1", sum.ID)
	assert.True(t, sum.Calibrated)
	assert.Equal(t, 4, sum.TrainingRows)
	assert.False(t, sum.Trained)
	assert.Equal(t, 0, sum.Predictions)
	assert.Len(t, sum.Stats, dataset.ChannelCount)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	a := store.Create(ctx)
	b := store.Create(ctx)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, store.Len())

	got, err := store.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	list := store.List()
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{list[0].ID, list[1].ID})

	require.NoError(t, store.Delete(ctx, a.ID))
	_, err = store.Get(a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))
	assert.ErrorIs(t, store.Delete(ctx, a.ID), ErrSessionNotFound)
}

func TestStore_CleanupIdle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	old := store.Create(ctx)
	old.mu.Lock()
	old.updatedAt = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()
	fresh := store.Create(ctx)

	assert.Equal(t, 1, store.CleanupIdle(ctx, time.Hour))
	_, err := store.Get(old.ID)
	assert.Error(t, err)
	_, err = store.Get(fresh.ID)
	assert.NoError(t, err)
}
