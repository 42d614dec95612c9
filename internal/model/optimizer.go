package model

import "math"

// Optimizer applies accumulated gradients to parameters.
type Optimizer interface {
	Step(params []Parameter)
}

// SGD is plain stochastic gradient descent with optional weight decay.
type SGD struct {
	LR          float64
	WeightDecay float64
}

// Step applies one SGD update.
func (o *SGD) Step(params []Parameter) {
	for _, p := range params {
		for i := range p.Value {
			g := p.Grad[i] + o.WeightDecay*p.Value[i]
			p.Value[i] -= o.LR * g
		}
	}
}

// Adam implements the Adam update rule. Moment buffers are allocated lazily
// on the first step, keyed by parameter order, so the same optimizer must
// always see the same parameter list.
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	t int
	m [][]float64
	v [][]float64
}

// NewAdam creates an Adam optimizer with standard betas.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step applies one Adam update.
func (o *Adam) Step(params []Parameter) {
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.Value))
			o.v[i] = make([]float64, len(p.Value))
		}
	}
	o.t++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.t))

	for i, p := range params {
		for j := range p.Value {
			g := p.Grad[j] + o.WeightDecay*p.Value[j]
			o.m[i][j] = o.Beta1*o.m[i][j] + (1-o.Beta1)*g
			o.v[i][j] = o.Beta2*o.v[i][j] + (1-o.Beta2)*g*g
			mHat := o.m[i][j] / bc1
			vHat := o.v[i][j] / bc2
			p.Value[j] -= o.LR * mHat / (math.Sqrt(vHat) + o.Eps)
		}
	}
}

// ClipGradNorm scales gradients so their global L2 norm does not exceed
// maxNorm. A non-positive maxNorm disables clipping. Returns the norm before
// clipping.
func ClipGradNorm(params []Parameter, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += g * g
		}
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] *= scale
		}
	}
	return norm
}

// ScaleGrads multiplies all gradients by s, e.g. 1/batchSize.
func ScaleGrads(params []Parameter, s float64) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] *= s
		}
	}
}
