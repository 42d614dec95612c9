package train

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/sample"
)

// PlannerModel adapts the raster planner to the trainer.
type PlannerModel struct {
	*model.Planner
}

// TrainSample flattens the sample raster and accumulates gradients.
func (m PlannerModel) TrainSample(s *sample.Sample) (float64, error) {
	if s.Raster == nil {
		return 0, fmt.Errorf("sample %d has no raster input", s.FrameIndex)
	}
	return m.TrainStep(model.FlattenRaster(s.Raster), s.Target, s.TargetAvail)
}

// EvalSample computes the loss without touching gradients meaningfully; the
// trainer zeroes gradients before the next optimization step.
func (m PlannerModel) EvalSample(s *sample.Sample) (float64, error) {
	if s.Raster == nil {
		return 0, fmt.Errorf("sample %d has no raster input", s.FrameIndex)
	}
	pred, err := m.Predict(model.FlattenRaster(s.Raster))
	if err != nil {
		return 0, err
	}
	return trajectoryMSE(pred, s.Target, s.TargetAvail), nil
}

// PolicyModel adapts the vectorized urban policy to the trainer.
type PolicyModel struct {
	*model.UrbanPolicy
}

// TrainSample runs the polyline policy on the sample's vector features.
func (m PolicyModel) TrainSample(s *sample.Sample) (float64, error) {
	if s.Vector == nil {
		return 0, fmt.Errorf("sample %d has no vector input", s.FrameIndex)
	}
	return m.TrainStep(s.Vector, s.Target, s.TargetAvail)
}

// EvalSample computes the masked MSE without gradient accumulation.
func (m PolicyModel) EvalSample(s *sample.Sample) (float64, error) {
	if s.Vector == nil {
		return 0, fmt.Errorf("sample %d has no vector input", s.FrameIndex)
	}
	pred, err := m.Forward(s.Vector)
	if err != nil {
		return 0, err
	}
	return trajectoryMSE(pred, s.Target, s.TargetAvail), nil
}

func trajectoryMSE(pred, target model.Trajectory, avail []float64) float64 {
	var loss, denom float64
	for i := range target {
		if i >= len(pred) {
			break
		}
		a := avail[i]
		dx := pred[i].X - target[i].X
		dy := pred[i].Y - target[i].Y
		dyaw := pred[i].Yaw - target[i].Yaw
		loss += a * (dx*dx + dy*dy + dyaw*dyaw)
		denom += a * 3
	}
	if denom == 0 {
		return 0
	}
	return loss / denom
}

// PerturbedDataset wraps an ego dataset so samples come through the
// configured trajectory perturbation. Safe for concurrent Get calls.
type PerturbedDataset struct {
	Ego *sample.EgoDataset

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPerturbedDataset seeds the perturbation stream.
func NewPerturbedDataset(ego *sample.EgoDataset, seed int64) *PerturbedDataset {
	return &PerturbedDataset{Ego: ego, rng: rand.New(rand.NewSource(seed))}
}

// Len returns the underlying dataset length.
func (d *PerturbedDataset) Len() int64 { return d.Ego.Len() }

// Get builds a possibly perturbed sample.
func (d *PerturbedDataset) Get(i int64) (*sample.Sample, error) {
	d.mu.Lock()
	rng := rand.New(rand.NewSource(d.rng.Int63()))
	d.mu.Unlock()
	return d.Ego.GetPerturbed(i, rng)
}
