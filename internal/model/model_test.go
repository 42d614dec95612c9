package model

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearForwardBackwardShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := NewLinear(4, 3, rng)

	m := NewMLP(rng, 4, 8, 3)
	out := m.Forward([]float64{1, 2, 3, 4})
	require.Len(t, out, 3)
	gradIn := m.Backward([]float64{1, 0, -1})
	require.Len(t, gradIn, 4)

	require.Len(t, l.Params(), 2)
	require.Len(t, l.Params()[0].Value, 12)
}

// Finite-difference check of MLP backprop through ReLU layers.
func TestMLPGradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := NewMLP(rng, 3, 5, 2)
	x := []float64{0.4, -0.7, 1.3}
	target := []float64{0.5, -0.25}

	loss := func() float64 {
		out := m.Forward(x)
		s := 0.0
		for i := range out {
			d := out[i] - target[i]
			s += d * d
		}
		return s
	}

	// analytic gradient
	m.ZeroGrad()
	out := m.Forward(x)
	grad := make([]float64, len(out))
	for i := range out {
		grad[i] = 2 * (out[i] - target[i])
	}
	m.Backward(grad)

	const eps = 1e-6
	for pi, p := range m.Params() {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + eps
			up := loss()
			p.Value[i] = orig - eps
			down := loss()
			p.Value[i] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, p.Grad[i], 1e-4,
				"param %d index %d: analytic %v vs numeric %v", pi, i, p.Grad[i], numeric)
		}
	}
}

func TestSGDReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewMLP(rng, 2, 16, 1)
	opt := &SGD{LR: 0.05}

	// learn y = x0 + x1 on a fixed batch
	inputs := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.25}}
	batchLoss := func(train bool) float64 {
		total := 0.0
		if train {
			m.ZeroGrad()
		}
		for _, in := range inputs {
			out := m.Forward(in)
			diff := out[0] - (in[0] + in[1])
			total += diff * diff
			if train {
				m.Backward([]float64{2 * diff})
			}
		}
		if train {
			ScaleGrads(m.Params(), 1/float64(len(inputs)))
			opt.Step(m.Params())
		}
		return total / float64(len(inputs))
	}

	before := batchLoss(false)
	for i := 0; i < 300; i++ {
		batchLoss(true)
	}
	after := batchLoss(false)
	assert.Less(t, after, before/10, "training failed to reduce loss: %v -> %v", before, after)
}

func TestAdamConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := NewMLP(rng, 1, 8, 1)
	opt := NewAdam(0.01)

	for i := 0; i < 400; i++ {
		m.ZeroGrad()
		x := rng.Float64()*2 - 1
		out := m.Forward([]float64{x})
		diff := out[0] - 3*x
		m.Backward([]float64{2 * diff})
		opt.Step(m.Params())
	}

	out := m.Forward([]float64{0.5})
	assert.InDelta(t, 1.5, out[0], 0.3)
}

func TestClipGradNorm(t *testing.T) {
	p := []Parameter{{Value: make([]float64, 2), Grad: []float64{3, 4}}}
	norm := ClipGradNorm(p, 1)
	assert.InDelta(t, 5.0, norm, 1e-9)
	assert.InDelta(t, 0.6, p[0].Grad[0], 1e-9)
	assert.InDelta(t, 0.8, p[0].Grad[1], 1e-9)

	// under the cap gradients stay put
	p[0].Grad = []float64{0.1, 0.1}
	ClipGradNorm(p, 1)
	assert.InDelta(t, 0.1, p[0].Grad[0], 1e-9)
}

func TestPlannerTrainStepReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := NewPlanner(rng, 6, 16, 2)
	opt := NewAdam(0.005)

	input := []float64{0.2, -0.1, 0.5, 0.9, -0.4, 0.3}
	target := Trajectory{{X: 1, Y: 0.1, Yaw: 0.05}, {X: 2, Y: 0.2, Yaw: 0.1}}
	avail := []float64{1, 1}

	first, err := p.TrainStep(input, target, avail)
	require.NoError(t, err)
	opt.Step(p.Params())
	var last float64
	for i := 0; i < 200; i++ {
		p.ZeroGrad()
		last, err = p.TrainStep(input, target, avail)
		require.NoError(t, err)
		opt.Step(p.Params())
	}
	assert.Less(t, last, first/100)
}

func TestPlannerMaskedTargets(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := NewPlanner(rng, 4, 8, 2)

	input := []float64{1, 2, 3, 4}
	target := Trajectory{{X: 1}, {X: 100}}

	// fully masked: zero loss, zero gradients
	loss, err := p.TrainStep(input, target, []float64{0, 0})
	require.NoError(t, err)
	assert.Zero(t, loss)
	for _, par := range p.Params() {
		for _, g := range par.Grad {
			assert.Zero(t, g)
		}
	}

	// second step masked: its huge target must not affect the loss scale
	p.ZeroGrad()
	lossMasked, err := p.TrainStep(input, target, []float64{1, 0})
	require.NoError(t, err)
	lossFull, err := p.TrainStep(input, target, []float64{1, 1})
	require.NoError(t, err)
	assert.Less(t, lossMasked, lossFull)
}

func TestPlannerInputSizeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p := NewPlanner(rng, 4, 8, 2)
	_, err := p.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestGaussianPolicyLogProb(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	g := NewGaussianPolicy(rng, 3, 8, 2)

	// unit variance check against the standard normal density
	g.LogStd[0], g.LogStd[1] = 0, 0
	mean := []float64{0, 0}
	logp := g.LogProb(mean, []float64{0, 0})
	assert.InDelta(t, -math.Log(2*math.Pi), logp, 1e-9)

	// entropy of two unit Gaussians
	assert.InDelta(t, math.Log(2*math.Pi*math.E), g.Entropy(), 1e-9)
}

func TestGaussianPolicyBackwardGradCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	g := NewGaussianPolicy(rng, 2, 4, 1)
	obs := []float64{0.3, -0.8}
	action := []float64{0.7}

	g.ZeroGrad()
	mean := g.Forward(obs)
	g.Backward(mean, action, 1, 0)

	const eps = 1e-6
	for pi, p := range g.Params() {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + eps
			up := g.LogProb(g.Forward(obs), action)
			p.Value[i] = orig - eps
			down := g.LogProb(g.Forward(obs), action)
			p.Value[i] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, p.Grad[i], 1e-4,
				"param %d index %d", pi, i)
		}
	}
}

func TestValueNetTrainStep(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	v := NewValueNet(rng, 2, 8)
	opt := NewAdam(0.01)

	for i := 0; i < 300; i++ {
		v.ZeroGrad()
		v.TrainStep([]float64{1, 0}, 2.5)
		opt.Step(v.Params())
	}
	assert.InDelta(t, 2.5, v.Forward([]float64{1, 0}), 0.2)
}

func TestCheckpointRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	p := NewPlanner(rng, 6, 8, 2)
	path := filepath.Join(t.TempDir(), "planner.ckpt")

	meta := Meta{Kind: "planner", Step: 42, Shape: map[string]int{"in": 6, "hidden": 8, "future": 2}}
	require.NoError(t, SaveCheckpoint(path, meta, p.Params()))

	input := []float64{1, 2, 3, 4, 5, 6}
	want, err := p.Predict(input)
	require.NoError(t, err)

	fresh := NewPlanner(rand.New(rand.NewSource(99)), 6, 8, 2)
	got, err := LoadCheckpoint(path, fresh.Params())
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	pred, err := fresh.Predict(input)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i].X, pred[i].X, 1e-12)
		assert.InDelta(t, want[i].Yaw, pred[i].Yaw, 1e-12)
	}
}

func TestCheckpointSizeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	p := NewPlanner(rng, 6, 8, 2)
	path := filepath.Join(t.TempDir(), "planner.ckpt")
	require.NoError(t, SaveCheckpoint(path, Meta{Kind: "planner"}, p.Params()))

	other := NewPlanner(rng, 4, 8, 2)
	_, err := LoadCheckpoint(path, other.Params())
	assert.Error(t, err)
}

func TestCheckpointBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.ckpt")
	require.NoError(t, os.WriteFile(path, []byte("not a checkpoint"), 0644))
	_, err := ReadCheckpointMeta(path)
	assert.Error(t, err)
}
