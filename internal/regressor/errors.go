package regressor

import (
	"errors"
	"fmt"

	apperrors "armpose/internal/errors"
)

var (
	ErrNoExamples = errors.New("no training examples")
	ErrNotTrained = errors.New("model has not been trained")
	ErrDiverged   = errors.New("loss is not finite")
	ErrShape      = errors.New("unexpected vector length")
	ErrNonFinite  = errors.New("vector contains a non-finite value")
)

// TrainingError wraps a failure of the training loop. Epoch is 0 when the
// failure happened before the first epoch.
type TrainingError struct {
	Epoch int
	Err   error
}

func (e *TrainingError) Error() string {
	if e.Epoch > 0 {
		return fmt.Sprintf("training failed at epoch %d: %v", e.Epoch, e.Err)
	}
	return fmt.Sprintf("training failed: %v", e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

func (e *TrainingError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeTraining }

func (e *TrainingError) ProblemExtensions() map[string]interface{} {
	if e.Epoch == 0 {
		return nil
	}
	return map[string]interface{}{"epoch": e.Epoch}
}

// PredictionError is a failed inference on one test frame. Frame is -1
// when the caller did not know the frame index.
type PredictionError struct {
	Frame int
	Input []float64
	Err   error
}

func (e *PredictionError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("prediction failed: %v", e.Err)
	}
	return fmt.Sprintf("prediction failed for frame %d: %v", e.Frame, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

func (e *PredictionError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypePrediction }

func (e *PredictionError) ProblemExtensions() map[string]interface{} {
	ext := map[string]interface{}{"input": e.Input}
	if e.Frame >= 0 {
		ext["frame"] = e.Frame
	}
	return ext
}
