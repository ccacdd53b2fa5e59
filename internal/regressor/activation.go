package regressor

import "math"

type activation struct {
	name string
	f    func(z float64) float64
	// df is the derivative expressed in terms of the input z and output a
	df func(z, a float64) float64
}

var activations = map[string]activation{
	"relu": {
		name: "relu",
		f:    func(z float64) float64 { return math.Max(0, z) },
		df: func(z, _ float64) float64 {
			if z > 0 {
				return 1
			}
			return 0
		},
	},
	"sigmoid": {
		name: "sigmoid",
		f:    func(z float64) float64 { return 1 / (1 + math.Exp(-z)) },
		df:   func(_, a float64) float64 { return a * (1 - a) },
	},
	"tanh": {
		name: "tanh",
		f:    math.Tanh,
		df:   func(_, a float64) float64 { return 1 - a*a },
	},
	"linear": {
		name: "linear",
		f:    func(z float64) float64 { return z },
		df:   func(_, _ float64) float64 { return 1 },
	},
}

// IsActivation reports whether name is a supported activation function
func IsActivation(name string) bool {
	_, ok := activations[name]
	return ok
}
