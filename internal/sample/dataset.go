// Package sample builds model-ready training samples from the chunked
// dataset: history snapshots, rasterized or vectorized inputs and future
// trajectory targets.
package sample

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/raster"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/vector"
)

// Sample is one training example. Raster and Vector are filled according to
// the dataset's construction; targets are expressed in the frame of the pose
// the sample is centred on.
type Sample struct {
	SceneIndex  int
	FrameIndex  int64
	TrackID     int64 // 0 for ego samples
	Centroid    geometry.Pose
	History     []scene.Snapshot
	Target      model.Trajectory
	TargetAvail []float64

	Raster *raster.Tensor
	Vector *vector.Features
}

// EgoDataset yields one sample per dataset frame, centred on the ego.
type EgoDataset struct {
	cfg  *config.Config
	ds   *data.ChunkedDataset
	rast raster.Rasterizer
	vec  *vector.Vectorizer

	sceneOfFrame []int
	scenes       []data.Scene
}

// NewEgoDataset indexes scenes and prepares sample generation. Either or
// both of rast and vec may be nil when that input flavour is not needed.
func NewEgoDataset(cfg *config.Config, ds *data.ChunkedDataset, rast raster.Rasterizer, vec *vector.Vectorizer) (*EgoDataset, error) {
	e := &EgoDataset{
		cfg:          cfg,
		ds:           ds,
		rast:         rast,
		vec:          vec,
		sceneOfFrame: make([]int, ds.NumFrames()),
	}
	for si := int64(0); si < ds.NumScenes(); si++ {
		s, err := ds.Scene(si)
		if err != nil {
			return nil, fmt.Errorf("index scene %d: %w", si, err)
		}
		if s.FrameInterval[0] < 0 || s.FrameInterval[1] > ds.NumFrames() || s.FrameInterval[0] > s.FrameInterval[1] {
			return nil, fmt.Errorf("scene %d has invalid frame interval %v", si, s.FrameInterval)
		}
		for fi := s.FrameInterval[0]; fi < s.FrameInterval[1]; fi++ {
			e.sceneOfFrame[fi] = int(si)
		}
		e.scenes = append(e.scenes, s)
	}
	return e, nil
}

// Len returns the number of samples.
func (e *EgoDataset) Len() int64 { return e.ds.NumFrames() }

// Get builds the sample for frame index i.
func (e *EgoDataset) Get(i int64) (*Sample, error) {
	return e.get(i, geometry.Pose{}, false)
}

// GetPerturbed builds the sample for frame index i with the configured
// trajectory perturbation applied to the current ego pose. Targets still
// point at the unperturbed future, which teaches the policy to recover.
func (e *EgoDataset) GetPerturbed(i int64, rng *rand.Rand) (*Sample, error) {
	mp := e.cfg.ModelParams
	if mp.PerturbProbability <= 0 || rng.Float64() >= mp.PerturbProbability {
		return e.get(i, geometry.Pose{}, false)
	}
	noise := geometry.Pose{
		X:   rng.NormFloat64() * mp.PerturbTransStdDev,
		Y:   rng.NormFloat64() * mp.PerturbTransStdDev,
		Yaw: rng.NormFloat64() * mp.PerturbYawStdDevDeg * math.Pi / 180,
	}
	return e.get(i, noise, true)
}

func (e *EgoDataset) get(i int64, noise geometry.Pose, perturb bool) (*Sample, error) {
	if i < 0 || i >= e.ds.NumFrames() {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", i, e.ds.NumFrames())
	}
	mp := e.cfg.ModelParams
	sceneIdx := e.sceneOfFrame[i]
	bounds := e.scenes[sceneIdx].FrameInterval

	history, err := e.snapshots(i, bounds, mp.HistoryNumFrames)
	if err != nil {
		return nil, err
	}
	if perturb {
		cur := &history[0].Ego
		cur.X += noise.X
		cur.Y += noise.Y
		cur.Yaw = geometry.WrapYaw(cur.Yaw + noise.Yaw)
	}
	center := history[0].Ego

	target, avail, err := e.futureTargets(i, bounds, mp.FutureNumFrames, center, 0)
	if err != nil {
		return nil, err
	}

	s := &Sample{
		SceneIndex:  sceneIdx,
		FrameIndex:  i,
		Centroid:    center,
		History:     history,
		Target:      target,
		TargetAvail: avail,
	}
	if e.rast != nil {
		if s.Raster, err = e.rast.Rasterize(history); err != nil {
			return nil, fmt.Errorf("rasterize frame %d: %w", i, err)
		}
	}
	if e.vec != nil {
		s.Vector = e.vec.Vectorize(history)
	}
	return s, nil
}

// snapshots loads frames i, i-1, ... back to the history depth, clipped at
// the scene start.
func (e *EgoDataset) snapshots(i int64, bounds [2]int64, historyFrames int) ([]scene.Snapshot, error) {
	threshold := e.cfg.RasterParams.FilterAgentsThreshold
	var out []scene.Snapshot
	for step := 0; step <= historyFrames; step++ {
		fi := i - int64(step)
		if fi < bounds[0] {
			break
		}
		f, err := e.ds.Frame(fi)
		if err != nil {
			return nil, err
		}
		agents, err := e.ds.FrameAgents(f)
		if err != nil {
			return nil, err
		}
		out = append(out, scene.FromFrame(f, agents, threshold))
	}
	return out, nil
}

// futureTargets computes displacement/yaw targets relative to center for
// frames i+1..i+future. trackID zero targets the ego; otherwise the matching
// agent's pose is used and availability reflects track presence.
func (e *EgoDataset) futureTargets(i int64, bounds [2]int64, future int, center geometry.Pose, trackID int64) (model.Trajectory, []float64, error) {
	threshold := e.cfg.RasterParams.FilterAgentsThreshold
	fromWorld := geometry.FromPose(center).Inverse()
	target := make(model.Trajectory, future)
	avail := make([]float64, future)

	for step := 1; step <= future; step++ {
		fi := i + int64(step)
		if fi >= bounds[1] {
			break
		}
		f, err := e.ds.Frame(fi)
		if err != nil {
			return nil, nil, err
		}
		var pose geometry.Pose
		if trackID == 0 {
			pose = geometry.Pose{X: f.EgoX, Y: f.EgoY, Yaw: f.EgoYaw}
		} else {
			agents, err := e.ds.FrameAgents(f)
			if err != nil {
				return nil, nil, err
			}
			snap := scene.FromFrame(f, agents, threshold)
			st, ok := snap.FindAgent(trackID)
			if !ok {
				continue // track dropped out for this step
			}
			pose = geometry.Pose{X: st.CX, Y: st.CY, Yaw: st.Yaw}
		}
		x, y := fromWorld.Apply(pose.X, pose.Y)
		target[step-1] = model.TrajectoryStep{X: x, Y: y, Yaw: geometry.YawDiff(pose.Yaw, center.Yaw)}
		avail[step-1] = 1
	}
	return target, avail, nil
}
