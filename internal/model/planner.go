package model

import (
	"fmt"
	"math/rand"

	"github.com/avstack-dev/drivekit/internal/raster"
)

// TrajectoryStep is one predicted offset in the ego frame at prediction time:
// displacement in meters and yaw change in radians.
type TrajectoryStep struct {
	X   float64
	Y   float64
	Yaw float64
}

// Trajectory is a fixed-horizon sequence of steps.
type Trajectory []TrajectoryStep

// valuesPerStep is the output width per future frame: x, y, yaw.
const valuesPerStep = 3

// Planner predicts an ego trajectory from a flattened BEV raster, the
// behavioral-cloning model.
type Planner struct {
	Net    *MLP
	Future int
}

// NewPlanner builds a planner for a raster of inDim values predicting future
// steps.
func NewPlanner(rng *rand.Rand, inDim, hidden, future int) *Planner {
	return &Planner{
		Net:    NewMLP(rng, inDim, hidden, hidden, future*valuesPerStep),
		Future: future,
	}
}

// FlattenRaster converts a CHW tensor into the planner input vector.
func FlattenRaster(t *raster.Tensor) []float64 {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

// Predict runs a forward pass and decodes the trajectory.
func (p *Planner) Predict(input []float64) (Trajectory, error) {
	if len(input) != p.Net.InDim() {
		return nil, fmt.Errorf("planner input size %d, model expects %d", len(input), p.Net.InDim())
	}
	return decodeTrajectory(p.Net.Forward(input), p.Future), nil
}

// TrainStep runs forward and backward for one sample, accumulating parameter
// gradients, and returns the masked MSE loss. Callers zero gradients, scale
// and step the optimizer across the batch.
func (p *Planner) TrainStep(input []float64, target Trajectory, avail []float64) (float64, error) {
	if len(input) != p.Net.InDim() {
		return 0, fmt.Errorf("planner input size %d, model expects %d", len(input), p.Net.InDim())
	}
	if len(target) != p.Future || len(avail) != p.Future {
		return 0, fmt.Errorf("target horizon %d/%d, model expects %d", len(target), len(avail), p.Future)
	}
	out := p.Net.Forward(input)
	loss, grad := trajectoryLoss(out, target, avail)
	p.Net.Backward(grad)
	return loss, nil
}

// Params exposes the planner parameters.
func (p *Planner) Params() []Parameter { return p.Net.Params() }

// ZeroGrad clears gradient accumulators.
func (p *Planner) ZeroGrad() { p.Net.ZeroGrad() }

func decodeTrajectory(out []float64, future int) Trajectory {
	traj := make(Trajectory, future)
	for i := 0; i < future; i++ {
		traj[i] = TrajectoryStep{
			X:   out[i*valuesPerStep],
			Y:   out[i*valuesPerStep+1],
			Yaw: out[i*valuesPerStep+2],
		}
	}
	return traj
}

// trajectoryLoss computes availability-masked mean squared error and its
// gradient with respect to the raw output vector.
func trajectoryLoss(out []float64, target Trajectory, avail []float64) (float64, []float64) {
	grad := make([]float64, len(out))
	var loss float64
	var denom float64
	for i := range target {
		denom += avail[i] * valuesPerStep
	}
	if denom == 0 {
		return 0, grad
	}
	for i, step := range target {
		want := [valuesPerStep]float64{step.X, step.Y, step.Yaw}
		for k := 0; k < valuesPerStep; k++ {
			idx := i*valuesPerStep + k
			diff := (out[idx] - want[k]) * avail[i]
			loss += diff * diff
			grad[idx] = 2 * diff / denom
		}
	}
	return loss / denom, grad
}
