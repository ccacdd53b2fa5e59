package regressor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LabeledOutput is one output unit of a prediction. Label is the unit's
// ordinal position, not a semantic name.
type LabeledOutput struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ProgressFunc is called after every epoch. A nil loss means the loss is
// unknown for that epoch.
type ProgressFunc func(epoch int, loss *float64)

// Regressor is a trainable feature-to-target model. Training examples are
// buffered with AddExample and fitted by Train. Predict may be called
// concurrently once training has finished.
type Regressor struct {
	inputSize  int
	outputSize int
	opts       Options

	// trainMu serializes Train calls; mu guards the fields below
	trainMu  sync.Mutex
	mu       sync.RWMutex
	features [][]float64
	labels   [][]float64
	net      *network
	// targets are min-max scaled to [0,1] during training
	labelMin   []float64
	labelRange []float64
	lastLoss   *float64
}

// Configure declares a model with inputSize features and outputSize targets
func Configure(inputSize, outputSize int, opts Options) (*Regressor, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("input and output sizes must be positive, got %d and %d", inputSize, outputSize)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Regressor{
		inputSize:  inputSize,
		outputSize: outputSize,
		opts:       opts,
	}, nil
}

// Options returns the configured options
func (r *Regressor) Options() Options {
	return r.opts
}

// AddExample buffers one training example
func (r *Regressor) AddExample(features, labels []float64) error {
	if err := checkVector(features, r.inputSize); err != nil {
		return &TrainingError{Err: fmt.Errorf("features: %w", err)}
	}
	if err := checkVector(labels, r.outputSize); err != nil {
		return &TrainingError{Err: fmt.Errorf("labels: %w", err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = append(r.features, append([]float64(nil), features...))
	r.labels = append(r.labels, append([]float64(nil), labels...))
	return nil
}

// Examples returns the number of buffered examples
func (r *Regressor) Examples() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.features)
}

// Trained reports whether Train has completed successfully
func (r *Regressor) Trained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.net != nil
}

// LastLoss returns the loss of the final epoch, or nil before training
func (r *Regressor) LastLoss() *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLoss
}

// Train fits the network to the buffered examples. onProgress may be nil.
// The context is checked between minibatches. The fitted network replaces
// the previous one only when every epoch succeeds; no lock is held while
// onProgress runs.
func (r *Regressor) Train(ctx context.Context, onProgress ProgressFunc) error {
	r.trainMu.Lock()
	defer r.trainMu.Unlock()

	r.mu.RLock()
	features, labels := r.features[:len(r.features):len(r.features)], r.labels[:len(r.labels):len(r.labels)]
	r.mu.RUnlock()

	n := len(features)
	if n == 0 {
		return &TrainingError{Err: ErrNoExamples}
	}

	act, ok := activations[r.opts.Activation]
	if !ok {
		return &TrainingError{Err: fmt.Errorf("unknown activation %q", r.opts.Activation)}
	}

	ls := fitLabelScale(labels, r.outputSize)
	targets := make([][]float64, n)
	for i, l := range labels {
		targets[i] = ls.scale(l)
	}

	rng := rand.New(rand.NewSource(r.opts.SeedValue()))
	net := newNetwork([]int{r.inputSize, r.opts.HiddenUnits1, r.opts.HiddenUnits2, r.outputSize}, act, rng)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	var loss float64
	for epoch := 1; epoch <= r.opts.Epochs; epoch++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var total float64
		for start := 0; start < n; start += r.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return &TrainingError{Epoch: epoch, Err: err}
			}
			end := min(start+r.opts.BatchSize, n)
			x, t := r.batch(order[start:end], features, targets)
			total += net.step(x, t, r.opts.LearningRate) * float64(end-start)
		}

		loss = total / float64(n)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return &TrainingError{Epoch: epoch, Err: ErrDiverged}
		}
		if onProgress != nil {
			l := loss
			onProgress(epoch, &l)
		}
	}

	r.mu.Lock()
	r.net = net
	r.labelMin = ls.min
	r.labelRange = ls.rng
	r.lastLoss = &loss
	r.mu.Unlock()
	return nil
}

// Predict runs one sample through the trained network and returns one
// labeled output per target, labelled "0", "1", ...
func (r *Regressor) Predict(ctx context.Context, features []float64) ([]LabeledOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PredictionError{Frame: -1, Input: features, Err: err}
	}
	if err := checkVector(features, r.inputSize); err != nil {
		return nil, &PredictionError{Frame: -1, Input: features, Err: err}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.net == nil {
		return nil, &PredictionError{Frame: -1, Input: features, Err: ErrNotTrained}
	}

	raw := r.net.predict(features)
	out := make([]LabeledOutput, len(raw))
	for i, v := range raw {
		value := v*r.labelRange[i] + r.labelMin[i]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &PredictionError{Frame: -1, Input: features, Err: ErrNonFinite}
		}
		out[i] = LabeledOutput{Label: strconv.Itoa(i), Value: value}
	}
	return out, nil
}

// labelScale maps each target column to [0,1]
type labelScale struct {
	min []float64
	rng []float64
}

func fitLabelScale(labels [][]float64, outputSize int) labelScale {
	ls := labelScale{min: make([]float64, outputSize), rng: make([]float64, outputSize)}
	col := make([]float64, len(labels))
	for j := 0; j < outputSize; j++ {
		for i, l := range labels {
			col[i] = l[j]
		}
		lo, hi := floats.Min(col), floats.Max(col)
		ls.min[j] = lo
		ls.rng[j] = hi - lo
		if ls.rng[j] == 0 {
			ls.rng[j] = 1
		}
	}
	return ls
}

func (ls labelScale) scale(labels []float64) []float64 {
	out := make([]float64, len(labels))
	for j, v := range labels {
		out[j] = (v - ls.min[j]) / ls.rng[j]
	}
	return out
}

func (r *Regressor) batch(idx []int, features, targets [][]float64) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(len(idx), r.inputSize, nil)
	t := mat.NewDense(len(idx), r.outputSize, nil)
	for row, i := range idx {
		x.SetRow(row, features[i])
		t.SetRow(row, targets[i])
	}
	return x, t
}

func checkVector(v []float64, size int) error {
	if len(v) != size {
		return fmt.Errorf("%w: want %d, got %d", ErrShape, size, len(v))
	}
	if floats.HasNaN(v) {
		return ErrNonFinite
	}
	for _, x := range v {
		if math.IsInf(x, 0) {
			return ErrNonFinite
		}
	}
	return nil
}
