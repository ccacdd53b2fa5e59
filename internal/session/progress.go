package session

import (
	"fmt"
	"math"
)

// TrainingProgress is the last progress report of a training run
type TrainingProgress struct {
	Epoch   int      `json:"epoch"`
	Epochs  int      `json:"epochs"`
	Percent int      `json:"percent"`
	Loss    *float64 `json:"loss"`
	Message string   `json:"message"`
	Done    bool     `json:"done"`
}

// NewTrainingProgress builds the progress of epoch out of epochs. An
// unknown loss reports 0% and "N/A".
func NewTrainingProgress(epoch, epochs int, loss *float64) TrainingProgress {
	p := TrainingProgress{Epoch: epoch, Epochs: epochs}
	if loss == nil {
		p.Message = fmt.Sprintf("Epoch %d/%d, loss: N/A", epoch, epochs)
		return p
	}
	l := *loss
	p.Loss = &l
	if epochs > 0 {
		p.Percent = int(math.Round(float64(epoch) / float64(epochs) * 100))
	}
	p.Message = fmt.Sprintf("Epoch %d/%d, loss: %.4f", epoch, epochs, l)
	return p
}
