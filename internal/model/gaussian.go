package model

import (
	"math"
	"math/rand"
)

// GaussianPolicy is a diagonal Gaussian policy head for continuous control:
// an MLP predicts the action mean, with a state-independent learnable
// log-standard-deviation per action dimension.
type GaussianPolicy struct {
	Mean    *MLP
	LogStd  []float64
	dLogStd []float64
}

// NewGaussianPolicy builds a policy over actDim continuous actions.
func NewGaussianPolicy(rng *rand.Rand, obsDim, hidden, actDim int) *GaussianPolicy {
	logStd := make([]float64, actDim)
	for i := range logStd {
		logStd[i] = -0.5
	}
	return &GaussianPolicy{
		Mean:    NewMLP(rng, obsDim, hidden, hidden, actDim),
		LogStd:  logStd,
		dLogStd: make([]float64, actDim),
	}
}

// ActDim returns the action dimensionality.
func (g *GaussianPolicy) ActDim() int { return len(g.LogStd) }

// Forward computes the action mean for an observation, caching state for a
// following Backward call.
func (g *GaussianPolicy) Forward(obs []float64) []float64 {
	return g.Mean.Forward(obs)
}

// Sample draws an action from the policy for the given mean.
func (g *GaussianPolicy) Sample(mean []float64, rng *rand.Rand) []float64 {
	act := make([]float64, len(mean))
	for i := range mean {
		act[i] = mean[i] + math.Exp(g.LogStd[i])*rng.NormFloat64()
	}
	return act
}

// LogProb returns the log density of action under N(mean, exp(LogStd)²).
func (g *GaussianPolicy) LogProb(mean, action []float64) float64 {
	logp := 0.0
	for i := range mean {
		std := math.Exp(g.LogStd[i])
		z := (action[i] - mean[i]) / std
		logp += -0.5*z*z - g.LogStd[i] - 0.5*math.Log(2*math.Pi)
	}
	return logp
}

// Entropy returns the differential entropy of the policy distribution.
func (g *GaussianPolicy) Entropy() float64 {
	h := 0.0
	for _, ls := range g.LogStd {
		h += ls + 0.5*math.Log(2*math.Pi*math.E)
	}
	return h
}

// Backward accumulates parameter gradients for dLoss/dLogProb = dLogp and
// dLoss/dEntropy = dEntropy, for the mean cached by the latest Forward.
func (g *GaussianPolicy) Backward(mean, action []float64, dLogp, dEntropy float64) {
	gradMean := make([]float64, len(mean))
	for i := range mean {
		std := math.Exp(g.LogStd[i])
		z := (action[i] - mean[i]) / std
		// dlogp/dmean = z/std, dlogp/dlogstd = z^2 - 1, dH/dlogstd = 1
		gradMean[i] = dLogp * z / std
		g.dLogStd[i] += dLogp*(z*z-1) + dEntropy
	}
	g.Mean.Backward(gradMean)
}

// Params exposes mean-net weights and the log-std vector.
func (g *GaussianPolicy) Params() []Parameter {
	return append(g.Mean.Params(), Parameter{Value: g.LogStd, Grad: g.dLogStd})
}

// ZeroGrad clears gradient accumulators.
func (g *GaussianPolicy) ZeroGrad() {
	g.Mean.ZeroGrad()
	zero(g.dLogStd)
}

// ValueNet is a scalar state-value estimator.
type ValueNet struct {
	Net *MLP
}

// NewValueNet builds a value network.
func NewValueNet(rng *rand.Rand, obsDim, hidden int) *ValueNet {
	return &ValueNet{Net: NewMLP(rng, obsDim, hidden, hidden, 1)}
}

// Forward returns the value estimate for an observation.
func (v *ValueNet) Forward(obs []float64) float64 {
	return v.Net.Forward(obs)[0]
}

// TrainStep accumulates the gradient of (value - target)² for the
// observation and returns the squared error.
func (v *ValueNet) TrainStep(obs []float64, target float64) float64 {
	val := v.Net.Forward(obs)[0]
	diff := val - target
	v.Net.Backward([]float64{2 * diff})
	return diff * diff
}

// Params exposes the value-net parameters.
func (v *ValueNet) Params() []Parameter { return v.Net.Params() }

// ZeroGrad clears gradient accumulators.
func (v *ValueNet) ZeroGrad() { v.Net.ZeroGrad() }
