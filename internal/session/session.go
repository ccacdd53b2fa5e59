package session

import (
	"sync"
	"time"

	"armpose/internal/calibration"
	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/playback"
	"armpose/internal/prediction"
	"armpose/internal/regressor"
)

var (
	ErrStatsAlreadySet = apperrors.NewAppError(apperrors.ErrTypeConflict, "session is already calibrated", nil)
	ErrNotCalibrated   = apperrors.NewAppError(apperrors.ErrTypeConflict, "session has no calibration statistics", nil)
	ErrNoTrainingData  = apperrors.NewAppError(apperrors.ErrTypeConflict, "session has no training data", nil)
	ErrNotTrained      = apperrors.NewAppError(apperrors.ErrTypeConflict, "session has no trained model", nil)
	ErrNoPredictions   = apperrors.NewAppError(apperrors.ErrTypeConflict, "session has no predictions", nil)
)

// Session holds everything one user builds up while going from a
// calibration file to predictions. The channel statistics are write-once
// until Reset.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	updatedAt   time.Time
	stats       calibration.ChannelStats
	fingerprint string
	calibration *dataset.ValidationResult
	training    *dataset.RecordSet
	model       *regressor.Regressor
	progress    TrainingProgress
	test        *dataset.RecordSet
	predictions []prediction.Prediction
	player      *playback.Player
}

// New creates an empty session
func New(id string) *Session {
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, updatedAt: now}
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}

// UpdatedAt returns the time of the last mutation
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// SetCalibration stores the baseline computed from result. It fails with
// ErrStatsAlreadySet when the session already has one.
func (s *Session) SetCalibration(stats calibration.ChannelStats, result *dataset.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats != nil {
		return ErrStatsAlreadySet
	}
	s.stats = stats
	s.fingerprint = stats.Fingerprint()
	s.calibration = result
	s.touch()
	return nil
}

// Stats returns the channel statistics or ErrNotCalibrated
func (s *Session) Stats() (calibration.ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return nil, ErrNotCalibrated
	}
	return s.stats, nil
}

// Fingerprint identifies the calibration baseline, empty before calibration
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// SetTraining replaces the training data and drops any model built from
// the previous data.
func (s *Session) SetTraining(set *dataset.RecordSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.training = set
	s.model = nil
	s.progress = TrainingProgress{}
	s.touch()
}

// Training returns the standardized training data or ErrNoTrainingData
func (s *Session) Training() (*dataset.RecordSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.training.Len() == 0 {
		return nil, ErrNoTrainingData
	}
	return s.training, nil
}

// SetModel stores a model whose training has finished. The model is
// checked before the session lock is taken.
func (s *Session) SetModel(m *regressor.Regressor) error {
	if m == nil || !m.Trained() {
		return ErrNotTrained
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
	s.touch()
	return nil
}

// TrainedModel returns the last successfully trained model
func (s *Session) TrainedModel() (*regressor.Regressor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrNotTrained
	}
	return s.model, nil
}

// SetProgress records the latest training progress
func (s *Session) SetProgress(p TrainingProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	s.touch()
}

// Progress returns the latest training progress
func (s *Session) Progress() TrainingProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SetResults stores the standardized test set and its predictions. Any
// previous player is stopped and discarded.
func (s *Session) SetResults(test *dataset.RecordSet, preds []prediction.Prediction) {
	s.mu.Lock()
	old := s.player
	s.test = test
	s.predictions = preds
	s.player = nil
	s.touch()
	s.mu.Unlock()

	if old != nil {
		old.Reset()
	}
}

// Predictions returns the decoded predictions in frame order
func (s *Session) Predictions() ([]prediction.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.predictions == nil {
		return nil, ErrNoPredictions
	}
	return s.predictions, nil
}

// Standardized returns the standardized test set
func (s *Session) Standardized() (*dataset.RecordSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.test == nil {
		return nil, ErrNoPredictions
	}
	return s.test, nil
}

// Player returns the playback cursor, creating it with newPlayer on first use
func (s *Session) Player(newPlayer func([]prediction.Prediction) *playback.Player) (*playback.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.predictions == nil {
		return nil, ErrNoPredictions
	}
	if s.player == nil {
		s.player = newPlayer(s.predictions)
	}
	return s.player, nil
}

// Reset clears everything, calibration included
func (s *Session) Reset() {
	s.mu.Lock()
	old := s.player
	s.stats = nil
	s.fingerprint = ""
	s.calibration = nil
	s.training = nil
	s.model = nil
	s.progress = TrainingProgress{}
	s.test = nil
	s.predictions = nil
	s.player = nil
	s.touch()
	s.mu.Unlock()

	if old != nil {
		old.Reset()
	}
}

// Summary is the JSON view of a session
type Summary struct {
	ID                  string                   `json:"id"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
	Calibrated          bool                     `json:"calibrated"`
	Fingerprint         string                   `json:"fingerprint,omitempty"`
	Stats               calibration.ChannelStats `json:"stats,omitempty"`
	CalibrationRejected int                      `json:"calibration_rejected"`
	TrainingRows        int                      `json:"training_rows"`
	Trained             bool                     `json:"trained"`
	Progress            TrainingProgress         `json:"progress"`
	TestFrames          int                      `json:"test_frames"`
	Predictions         int                      `json:"predictions"`
}

// Summary returns a point-in-time view of the session
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.updatedAt,
		Calibrated:   s.stats != nil,
		Fingerprint:  s.fingerprint,
		Stats:        s.stats,
		TrainingRows: s.training.Len(),
		Trained:      s.model != nil,
		Progress:     s.progress,
		TestFrames:   s.test.Len(),
		Predictions:  len(s.predictions),
	}
	if s.calibration != nil {
		sum.CalibrationRejected = len(s.calibration.Rejected)
	}
	return sum
}
