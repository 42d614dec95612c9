package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLP is a fully-connected network with ReLU between layers and a linear
// output layer.
type MLP struct {
	layers []*Linear
	// preacts caches post-linear pre-activation outputs per layer for the
	// backward pass of the most recent Forward call.
	preacts []*mat.VecDense
}

// NewMLP builds a network with the given layer sizes, e.g. (in, hidden,
// hidden, out). At least one input and one output size are required.
func NewMLP(rng *rand.Rand, sizes ...int) *MLP {
	if len(sizes) < 2 {
		panic("model: MLP needs at least input and output sizes")
	}
	m := &MLP{}
	for i := 0; i+1 < len(sizes); i++ {
		m.layers = append(m.layers, NewLinear(sizes[i], sizes[i+1], rng))
	}
	m.preacts = make([]*mat.VecDense, len(m.layers))
	return m
}

// InDim returns the input width.
func (m *MLP) InDim() int { return m.layers[0].In }

// OutDim returns the output width.
func (m *MLP) OutDim() int { return m.layers[len(m.layers)-1].Out }

// Forward runs one input through the network.
func (m *MLP) Forward(x []float64) []float64 {
	v := mat.NewVecDense(len(x), x)
	for i, l := range m.layers {
		v = l.Forward(v)
		m.preacts[i] = v
		if i+1 < len(m.layers) {
			v = reluVec(v)
		}
	}
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}

// Backward propagates the output gradient of the most recent Forward call
// and accumulates parameter gradients. Returns the input gradient.
func (m *MLP) Backward(gradOut []float64) []float64 {
	grad := mat.NewVecDense(len(gradOut), append([]float64(nil), gradOut...))
	for i := len(m.layers) - 1; i >= 0; i-- {
		if i < len(m.layers)-1 {
			// gate through the ReLU applied after layer i
			pre := m.preacts[i]
			for j := 0; j < grad.Len(); j++ {
				if pre.AtVec(j) <= 0 {
					grad.SetVec(j, 0)
				}
			}
		}
		grad = m.layers[i].Backward(grad)
	}
	out := make([]float64, grad.Len())
	copy(out, grad.RawVector().Data)
	return out
}

// Params collects all layer parameters.
func (m *MLP) Params() []Parameter {
	var ps []Parameter
	for _, l := range m.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// ZeroGrad clears all gradient accumulators.
func (m *MLP) ZeroGrad() {
	for _, l := range m.layers {
		l.ZeroGrad()
	}
}

func reluVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); x > 0 {
			out.SetVec(i, x)
		}
	}
	return out
}
