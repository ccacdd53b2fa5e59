package prediction

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"armpose/internal/dataset"
	"armpose/internal/regressor"
)

// Predictor is the inference half of the regressor contract
type Predictor interface {
	Predict(ctx context.Context, features []float64) ([]regressor.LabeledOutput, error)
}

// Features returns the channel vectors of a standardized set in frame order
func Features(set *dataset.RecordSet) [][]float64 {
	out := make([][]float64, set.Len())
	for i, rec := range set.Records {
		out[i] = rec.Features()
	}
	return out
}

// PredictAll runs p on every frame with at most limit calls in flight and
// decodes the outputs. Result i always belongs to frame i. The first
// failure cancels frames that have not started and is returned with its
// frame index.
func PredictAll(ctx context.Context, p Predictor, frames [][]float64, limit int) ([]Prediction, error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]Prediction, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, features := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs, err := p.Predict(gctx, features)
			if err != nil {
				return withFrame(err, i, features)
			}
			pred, err := Decode(outputs)
			if err != nil {
				return withFrame(err, i, features)
			}
			results[i] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func withFrame(err error, frame int, input []float64) error {
	var structErr *StructureError
	if errors.As(err, &structErr) {
		return &StructureError{Frame: frame, Reason: structErr.Reason}
	}
	var predErr *regressor.PredictionError
	if errors.As(err, &predErr) {
		return &regressor.PredictionError{Frame: frame, Input: predErr.Input, Err: predErr.Err}
	}
	return &regressor.PredictionError{Frame: frame, Input: input, Err: err}
}
