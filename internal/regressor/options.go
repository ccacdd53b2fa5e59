package regressor

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Options configures the network and its training loop
type Options struct {
	Epochs       int     `json:"epochs" yaml:"epochs" validate:"min=1,max=10000"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size" validate:"min=1,max=4096"`
	Activation   string  `json:"activation" yaml:"activation" validate:"oneof=relu sigmoid tanh linear"`
	HiddenUnits1 int     `json:"hidden_units_1" yaml:"hidden_units_1" validate:"min=1,max=4096"`
	HiddenUnits2 int     `json:"hidden_units_2" yaml:"hidden_units_2" validate:"min=1,max=4096"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0,lte=10"`
	// Seed is nil when unset so that an explicit 0 survives Merge
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// SeedOf returns a pointer to seed, for building Options literals
func SeedOf(seed int64) *int64 { return &seed }

// SeedValue returns the seed, 0 when unset
func (o Options) SeedValue() int64 {
	if o.Seed == nil {
		return 0
	}
	return *o.Seed
}

// DefaultOptions returns 32 epochs, batches of 12, relu and 128/64 hidden units
func DefaultOptions() Options {
	return Options{
		Epochs:       32,
		BatchSize:    12,
		Activation:   "relu",
		HiddenUnits1: 128,
		HiddenUnits2: 64,
		LearningRate: 0.01,
		Seed:         SeedOf(42),
	}
}

var validate = validator.New()

// Validate checks every option is in range
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid regressor options: %w", err)
	}
	return nil
}

// Merge returns o with every zero field, and a nil Seed, taken from base
func (o Options) Merge(base Options) Options {
	if o.Epochs == 0 {
		o.Epochs = base.Epochs
	}
	if o.BatchSize == 0 {
		o.BatchSize = base.BatchSize
	}
	if o.Activation == "" {
		o.Activation = base.Activation
	}
	if o.HiddenUnits1 == 0 {
		o.HiddenUnits1 = base.HiddenUnits1
	}
	if o.HiddenUnits2 == 0 {
		o.HiddenUnits2 = base.HiddenUnits2
	}
	if o.LearningRate == 0 {
		o.LearningRate = base.LearningRate
	}
	if o.Seed == nil {
		o.Seed = base.Seed
	}
	return o
}
