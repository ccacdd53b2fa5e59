package operations

import (
	"time"

	"armpose/internal/config"
	"armpose/internal/regressor"
)

// Config controls how the manager runs stages
type Config struct {
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`
	RetryConfig   RetryConfig              `json:"retry_config"`

	// ContinueOnError keeps running independent stages after a failure
	ContinueOnError bool `json:"continue_on_error"`

	// PredictConcurrency bounds the frames predicted in parallel
	PredictConcurrency int `json:"predict_concurrency"`

	// Model holds the regressor options used when a request does not override them
	Model regressor.Options `json:"model"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StageIDCalibrate:       DefaultCalibrateTimeout,
			StageIDPrepareTraining: DefaultPrepareTimeout,
			StageIDTrain:           DefaultStageTimeout,
			StageIDPredict:         DefaultPredictTimeout,
		},
		RetryConfig:        NewRetryConfig(),
		PredictConcurrency: 1,
		Model:              regressor.DefaultOptions(),
	}
}

// ConfigFromApp derives the operation configuration from the application config
func ConfigFromApp(cfg *config.Config) *Config {
	c := NewConfig()
	if cfg == nil {
		return c
	}
	if cfg.Server.OperationTimeout > 0 {
		c.SetStageTimeout(StageIDTrain, cfg.Server.OperationTimeout)
	}
	if cfg.Model.Concurrency > 0 {
		c.PredictConcurrency = cfg.Model.Concurrency
	}
	c.Model = regressor.Options{
		Epochs:       cfg.Model.Epochs,
		BatchSize:    cfg.Model.BatchSize,
		Activation:   cfg.Model.Activation,
		HiddenUnits1: cfg.Model.HiddenUnits1,
		HiddenUnits2: cfg.Model.HiddenUnits2,
		LearningRate: cfg.Model.LearningRate,
		Seed:         regressor.SeedOf(cfg.Model.Seed),
	}.Merge(regressor.DefaultOptions())
	return c
}

// GetStageTimeout returns the timeout for a stage
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok {
		return timeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout overrides the timeout for a stage
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}
