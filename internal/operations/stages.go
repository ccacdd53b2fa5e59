package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"armpose/internal/calibration"
	"armpose/internal/dataset"
	"armpose/internal/infrastructure"
	"armpose/internal/prediction"
	"armpose/internal/regressor"
	"armpose/internal/session"
)

// RegisterPipeline registers the four pipeline stages with cfg's defaults
func RegisterPipeline(m *Manager, cfg *Config) error {
	if cfg == nil {
		cfg = m.GetConfig()
	}
	for _, s := range []Step{
		NewCalibrateStage(),
		NewPrepareTrainingStage(),
		NewTrainStage(cfg.Model),
		NewPredictStage(cfg.PredictConcurrency),
	} {
		if err := m.RegisterStage(s); err != nil {
			return err
		}
	}
	return nil
}

func requireParam[T any](state *OperationState, stageID, key string) (T, error) {
	var zero T
	raw, ok := state.GetConfig(key)
	if !ok || raw == nil {
		return zero, NewValidationError(stageID, fmt.Sprintf("missing %s input", key), nil)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, NewValidationError(stageID, fmt.Sprintf("%s input has type %T", key, raw), nil)
	}
	return v, nil
}

// CalibrateStage estimates the channel statistics from the calibration file
type CalibrateStage struct {
	BaseStage
}

func NewCalibrateStage() *CalibrateStage {
	return &CalibrateStage{BaseStage: NewBaseStage(StageIDCalibrate, StageNameCalibrate)}
}

func (s *CalibrateStage) Validate(state *OperationState) error {
	if _, err := requireParam[*dataset.ValidationResult](state, s.ID(), ParamCalibration); err != nil {
		return err
	}
	if _, err := state.Session.Stats(); err == nil {
		return session.ErrStatsAlreadySet
	}
	return nil
}

func (s *CalibrateStage) Execute(ctx context.Context, state *OperationState) error {
	result, err := requireParam[*dataset.ValidationResult](state, s.ID(), ParamCalibration)
	if err != nil {
		return err
	}

	stats, err := calibration.Estimate(result.Set)
	if err != nil {
		return err
	}
	if err := stats.Check(); err != nil {
		return err
	}
	if err := state.Session.SetCalibration(stats, result); err != nil {
		return err
	}

	infrastructure.AddSpanEvent(ctx, "calibration.estimated")
	state.ReportProgress(s.ID(), 100, "Calibration statistics computed", map[string]interface{}{
		"rows":        result.Accepted(),
		"rejected":    len(result.Rejected),
		"fingerprint": state.Session.Fingerprint(),
	})
	return nil
}

// PrepareTrainingStage standardizes the training files with the session's
// calibration statistics
type PrepareTrainingStage struct {
	BaseStage
}

func NewPrepareTrainingStage() *PrepareTrainingStage {
	return &PrepareTrainingStage{
		BaseStage: NewBaseStage(StageIDPrepareTraining, StageNamePrepareTraining, StageIDCalibrate),
	}
}

func (s *PrepareTrainingStage) Validate(state *OperationState) error {
	if _, err := requireParam[*dataset.RecordSet](state, s.ID(), ParamTraining); err != nil {
		return err
	}
	_, err := state.Session.Stats()
	return err
}

func (s *PrepareTrainingStage) Execute(ctx context.Context, state *OperationState) error {
	raw, err := requireParam[*dataset.RecordSet](state, s.ID(), ParamTraining)
	if err != nil {
		return err
	}
	if raw.Len() == 0 {
		return &dataset.EmptyResultError{Source: "training upload", Role: dataset.RoleTraining}
	}
	stats, err := state.Session.Stats()
	if err != nil {
		return err
	}

	std, err := calibration.Standardize(raw, stats)
	if err != nil {
		return err
	}
	state.Session.SetTraining(std)

	state.ReportProgress(s.ID(), 100, fmt.Sprintf("%d training rows standardized", std.Len()), map[string]interface{}{
		"rows":    std.Len(),
		"sources": std.Sources,
	})
	return nil
}

// TrainStage configures a regressor, feeds it every standardized training
// row and trains it
type TrainStage struct {
	BaseStage
	defaults regressor.Options
}

func NewTrainStage(defaults regressor.Options) *TrainStage {
	return &TrainStage{
		BaseStage: NewBaseStage(StageIDTrain, StageNameTrain, StageIDPrepareTraining),
		defaults:  defaults.Merge(regressor.DefaultOptions()),
	}
}

func (s *TrainStage) options(state *OperationState) (regressor.Options, error) {
	opts := s.defaults
	if raw, ok := state.GetConfig(ParamOptions); ok && raw != nil {
		override, ok := raw.(regressor.Options)
		if !ok {
			return opts, NewValidationError(s.ID(), fmt.Sprintf("options input has type %T", raw), nil)
		}
		opts = override.Merge(s.defaults)
	}
	if err := opts.Validate(); err != nil {
		return opts, &regressor.TrainingError{Err: err}
	}
	return opts, nil
}

func (s *TrainStage) Validate(state *OperationState) error {
	if _, err := state.Session.Training(); err != nil {
		return err
	}
	_, err := s.options(state)
	return err
}

func (s *TrainStage) Execute(ctx context.Context, state *OperationState) error {
	opts, err := s.options(state)
	if err != nil {
		return err
	}
	set, err := state.Session.Training()
	if err != nil {
		return err
	}

	model, err := regressor.Configure(dataset.ChannelCount, len(dataset.AngleColumns()), opts)
	if err != nil {
		return err
	}
	for _, rec := range set.Records {
		if err := model.AddExample(rec.Features(), rec.Labels()); err != nil {
			return err
		}
	}

	logger := state.Logger()
	tracker := NewProgressTracker(s.ID(), opts.Epochs)
	err = model.Train(ctx, func(epoch int, loss *float64) {
		p := session.NewTrainingProgress(epoch, opts.Epochs, loss)
		tracker.Update(epoch, p.Message)
		state.Session.SetProgress(p)
		infrastructure.RecordEpoch(ctx, state.Metrics(), loss)
		state.ReportProgress(s.ID(), p.Percent, p.Message, map[string]interface{}{
			"epoch":  epoch,
			"epochs": opts.Epochs,
		})
		state.ReportTraining(p, tracker.GetETA())
		logger.DebugContext(ctx, "epoch complete",
			slog.Int("epoch", epoch),
			slog.String("message", p.Message))
	})
	if err != nil {
		return err
	}
	if err := state.Session.SetModel(model); err != nil {
		return err
	}

	final := session.NewTrainingProgress(opts.Epochs, opts.Epochs, model.LastLoss())
	final.Done = true
	state.Session.SetProgress(final)
	state.ReportTraining(final, "")

	logger.InfoContext(ctx, "training complete",
		slog.Int("examples", model.Examples()),
		slog.Int("epochs", opts.Epochs),
		slog.String("message", final.Message))
	return nil
}

// PredictStage standardizes the test file and predicts every frame
type PredictStage struct {
	BaseStage
	concurrency int
}

func NewPredictStage(concurrency int) *PredictStage {
	return &PredictStage{
		BaseStage:   NewBaseStage(StageIDPredict, StageNamePredict, StageIDTrain),
		concurrency: max(concurrency, 1),
	}
}

func (s *PredictStage) Validate(state *OperationState) error {
	if _, err := requireParam[*dataset.RecordSet](state, s.ID(), ParamTest); err != nil {
		return err
	}
	if _, err := state.Session.Stats(); err != nil {
		return err
	}
	_, err := state.Session.TrainedModel()
	return err
}

func (s *PredictStage) Execute(ctx context.Context, state *OperationState) error {
	raw, err := requireParam[*dataset.RecordSet](state, s.ID(), ParamTest)
	if err != nil {
		return err
	}
	if raw.Len() == 0 {
		return &dataset.EmptyResultError{Source: "test upload", Role: dataset.RoleTest}
	}
	stats, err := state.Session.Stats()
	if err != nil {
		return err
	}
	model, err := state.Session.TrainedModel()
	if err != nil {
		return err
	}

	std, err := calibration.Standardize(raw, stats)
	if err != nil {
		return err
	}
	state.ReportProgress(s.ID(), 10, fmt.Sprintf("%d test frames standardized", std.Len()), nil)

	start := time.Now()
	preds, err := prediction.PredictAll(ctx, model, prediction.Features(std), s.concurrency)
	infrastructure.RecordPredictions(ctx, state.Metrics(), std.Len(), time.Since(start), err)
	if err != nil {
		return err
	}

	state.Session.SetResults(std, preds)
	state.ReportProgress(s.ID(), 100, fmt.Sprintf("%d frames predicted", len(preds)), map[string]interface{}{
		"frames": len(preds),
	})
	return nil
}
