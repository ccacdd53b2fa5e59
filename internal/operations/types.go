package operations

import (
	"time"
)

// Pipeline stage identifiers
const (
	StageIDCalibrate       = "calibrate"
	StageIDPrepareTraining = "prepare_training"
	StageIDTrain           = "train"
	StageIDPredict         = "predict"
)

// Pipeline stage names
const (
	StageNameCalibrate       = "Calibration"
	StageNamePrepareTraining = "Training Data Preparation"
	StageNameTrain           = "Model Training"
	StageNamePredict         = "Prediction"
)

// StepFullPipeline runs every registered stage in dependency order
const StepFullPipeline = "full_pipeline"

// Request parameter keys
const (
	ParamStep        = "step"
	ParamCalibration = "calibration"
	ParamTraining    = "training"
	ParamTest        = "test"
	ParamOptions     = "options"
)

// WebSocket event types
const (
	EventTypeOperationSnapshot = "operation:snapshot"
	EventTypeTrainingProgress  = "training:progress"
	EventTypePlaybackFrame     = "playback:frame"
)

// Default timeouts
const (
	DefaultStageTimeout     = 30 * time.Minute
	DefaultCalibrateTimeout = 1 * time.Minute
	DefaultPrepareTimeout   = 2 * time.Minute
	DefaultPredictTimeout   = 10 * time.Minute
)

// RetryConfig defines retry behavior for stages
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration. Pipeline errors
// are never retryable, so in practice only timeouts are retried.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest asks the manager to run one stage, or the whole
// pipeline, against a session.
type OperationRequest struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Step returns the requested stage ID, or StepFullPipeline
func (r OperationRequest) Step() string {
	if s, ok := r.Parameters[ParamStep].(string); ok && s != "" {
		return s
	}
	return StepFullPipeline
}

// OperationResponse summarizes a finished operation
type OperationResponse struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Status    OperationStatusValue `json:"status"`
	Duration  time.Duration        `json:"duration"`
	Steps     []StepSnapshot       `json:"steps"`
	Error     string               `json:"error,omitempty"`
}
