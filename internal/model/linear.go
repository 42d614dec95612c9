// Package model implements the small fully-connected networks used by the
// planner, the polyline policy and the RL heads, with manual backprop on
// gonum matrices.
package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Parameter is a flat view over one tensor of weights and its gradient
// accumulator. Optimizers update Value in place.
type Parameter struct {
	Value []float64
	Grad  []float64
}

// Linear is a dense layer y = Wx + b.
type Linear struct {
	In, Out int
	W       *mat.Dense
	B       *mat.VecDense
	dW      *mat.Dense
	dB      *mat.VecDense

	lastX *mat.VecDense
}

// NewLinear creates a layer with Glorot-uniform weights.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Linear{
		In:  in,
		Out: out,
		W:   mat.NewDense(out, in, w),
		B:   mat.NewVecDense(out, nil),
		dW:  mat.NewDense(out, in, nil),
		dB:  mat.NewVecDense(out, nil),
	}
}

// Forward computes Wx + b and caches x for the backward pass.
func (l *Linear) Forward(x *mat.VecDense) *mat.VecDense {
	l.lastX = x
	out := mat.NewVecDense(l.Out, nil)
	out.MulVec(l.W, x)
	out.AddVec(out, l.B)
	return out
}

// Backward accumulates dW and dB for the cached input and returns the
// gradient with respect to the input.
func (l *Linear) Backward(grad *mat.VecDense) *mat.VecDense {
	var outer mat.Dense
	outer.Outer(1, grad, l.lastX)
	l.dW.Add(l.dW, &outer)
	l.dB.AddVec(l.dB, grad)

	dx := mat.NewVecDense(l.In, nil)
	dx.MulVec(l.W.T(), grad)
	return dx
}

// Params exposes the layer parameters for an optimizer.
func (l *Linear) Params() []Parameter {
	return []Parameter{
		{Value: l.W.RawMatrix().Data, Grad: l.dW.RawMatrix().Data},
		{Value: l.B.RawVector().Data, Grad: l.dB.RawVector().Data},
	}
}

// ZeroGrad clears the gradient accumulators.
func (l *Linear) ZeroGrad() {
	zero(l.dW.RawMatrix().Data)
	zero(l.dB.RawVector().Data)
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
