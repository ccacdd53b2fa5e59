package regressor

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type layer struct {
	w   *mat.Dense // fanIn x fanOut
	b   []float64
	act activation
}

// network is a dense feed-forward net with a linear output layer
type network struct {
	layers []*layer
}

func newNetwork(sizes []int, hidden activation, rng *rand.Rand) *network {
	n := &network{}
	for i := 0; i < len(sizes)-1; i++ {
		fanIn, fanOut := sizes[i], sizes[i+1]
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		data := make([]float64, fanIn*fanOut)
		for k := range data {
			data[k] = (rng.Float64()*2 - 1) * limit
		}
		act := hidden
		if i == len(sizes)-2 {
			act = activations["linear"]
		}
		n.layers = append(n.layers, &layer{
			w:   mat.NewDense(fanIn, fanOut, data),
			b:   make([]float64, fanOut),
			act: act,
		})
	}
	return n
}

// forward returns the pre-activations of every layer and the activations,
// where as[0] is the input and as[len(as)-1] the output.
func (n *network) forward(x mat.Matrix) (zs []*mat.Dense, as []mat.Matrix) {
	as = append(as, x)
	in := x
	for _, l := range n.layers {
		rows, _ := in.Dims()
		_, cols := l.w.Dims()

		z := mat.NewDense(rows, cols, nil)
		z.Mul(in, l.w)
		z.Apply(func(_, j int, v float64) float64 { return v + l.b[j] }, z)

		a := mat.NewDense(rows, cols, nil)
		a.Apply(func(_, _ int, v float64) float64 { return l.act.f(v) }, z)

		zs = append(zs, z)
		as = append(as, a)
		in = a
	}
	return zs, as
}

// step runs one minibatch of gradient descent on the mean squared error
// and returns the batch loss measured before the update.
func (n *network) step(x, target *mat.Dense, lr float64) float64 {
	zs, as := n.forward(x)
	out := as[len(as)-1]
	rows, cols := out.Dims()
	count := float64(rows * cols)

	diff := mat.NewDense(rows, cols, nil)
	diff.Sub(out, target)
	sq := mat.NewDense(rows, cols, nil)
	sq.MulElem(diff, diff)
	loss := mat.Sum(sq) / count

	delta := mat.NewDense(rows, cols, nil)
	delta.Scale(2/count, diff)

	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		z, a := zs[i], as[i+1]
		delta.Apply(func(r, c int, v float64) float64 {
			return v * l.act.df(z.At(r, c), a.At(r, c))
		}, delta)

		fanIn, fanOut := l.w.Dims()
		grad := mat.NewDense(fanIn, fanOut, nil)
		grad.Mul(as[i].T(), delta)

		var next *mat.Dense
		if i > 0 {
			next = mat.NewDense(rows, fanIn, nil)
			next.Mul(delta, l.w.T())
		}

		grad.Scale(lr, grad)
		l.w.Sub(l.w, grad)
		for j := range l.b {
			l.b[j] -= lr * mat.Sum(delta.ColView(j))
		}
		delta = next
	}
	return loss
}

// predict runs a single sample through the network
func (n *network) predict(features []float64) []float64 {
	x := mat.NewDense(1, len(features), append([]float64(nil), features...))
	_, as := n.forward(x)
	return mat.Row(nil, 0, as[len(as)-1])
}
