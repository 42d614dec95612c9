// Package sim implements closed-loop rollout: model predictions are written
// back into an in-memory copy of the scene so each step observes the
// consequences of the previous one.
package sim

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/scene"
)

// EgoPolicy predicts an ego trajectory from snapshot history (current
// first). Implementations wrap the raster planner or the polyline policy.
type EgoPolicy interface {
	PredictEgo(history []scene.Snapshot) (model.Trajectory, error)
}

// AgentPolicy predicts a trajectory for one agent track from history
// recentred on that agent.
type AgentPolicy interface {
	PredictAgent(history []scene.Snapshot, trackID int64) (model.Trajectory, error)
}

// Scene is a mutable in-memory copy of one dataset scene plus its frozen
// ground truth.
type Scene struct {
	Index  int
	Frames []scene.Snapshot // mutated during rollout
	GT     []scene.Snapshot
}

// LoadScene copies scene sceneIdx out of the dataset for simulation.
func LoadScene(ds *data.ChunkedDataset, sceneIdx int, filterThreshold float64) (*Scene, error) {
	rec, err := ds.Scene(int64(sceneIdx))
	if err != nil {
		return nil, err
	}
	frames, err := ds.SceneFrames(rec)
	if err != nil {
		return nil, err
	}
	s := &Scene{Index: sceneIdx}
	for _, f := range frames {
		agents, err := ds.FrameAgents(f)
		if err != nil {
			return nil, err
		}
		snap := scene.FromFrame(f, agents, filterThreshold)
		s.GT = append(s.GT, snap)
		s.Frames = append(s.Frames, cloneSnapshot(snap))
	}
	return s, nil
}

func cloneSnapshot(s scene.Snapshot) scene.Snapshot {
	out := s
	out.Agents = append([]scene.AgentState(nil), s.Agents...)
	return out
}

// StepOutput records the state and predictions at one rollout step.
type StepOutput struct {
	Step       int
	FrameIndex int
	EgoPose    geometry.Pose
	GTEgoPose  geometry.Pose
	EgoPred    model.Trajectory
	// SimulatedAgents counts agents whose motion came from the agent
	// policy this step.
	SimulatedAgents int
}

// SceneOutput bundles the rollout of one scene.
type SceneOutput struct {
	SceneIndex int
	Steps      []StepOutput
	// Frames holds the simulated snapshots over the rollout window.
	Frames []scene.Snapshot
	GT     []scene.Snapshot
}

// Simulator unrolls scenes under a SimParams policy selection.
type Simulator struct {
	Params config.SimParams
	Ego    EgoPolicy   // required unless Params.UseEgoGT
	Agents AgentPolicy // required unless Params.UseAgentsGT
}

// Unroll runs the closed-loop rollout for one scene.
func (s *Simulator) Unroll(ctx context.Context, sc *Scene) (*SceneOutput, error) {
	p := s.Params
	if !p.UseEgoGT && s.Ego == nil {
		return nil, fmt.Errorf("sim: ego policy required when use_ego_gt is false")
	}
	if !p.UseAgentsGT && s.Agents == nil {
		return nil, fmt.Errorf("sim: agent policy required when use_agents_gt is false")
	}
	start := p.StartFrameIndex
	if start >= len(sc.Frames)-1 {
		return nil, fmt.Errorf("sim: start frame %d beyond scene length %d", start, len(sc.Frames))
	}
	steps := p.NumSimulationSteps
	if max := len(sc.Frames) - 1 - start; steps > max {
		steps = max
	}

	// track IDs present at the start frame; used to drop late arrivals
	initial := map[int64]bool{}
	for _, a := range sc.Frames[start].Agents {
		initial[a.TrackID] = true
	}

	out := &SceneOutput{SceneIndex: sc.Index}
	for t := 0; t < steps; t++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		cur := start + t
		history := historyView(sc.Frames, cur)
		step := StepOutput{
			Step:       t,
			FrameIndex: cur,
			EgoPose:    sc.Frames[cur].Ego,
			GTEgoPose:  sc.GT[cur].Ego,
		}

		// ego
		if !p.UseEgoGT {
			pred, err := s.Ego.PredictEgo(history)
			if err != nil {
				return out, fmt.Errorf("ego prediction at step %d: %w", t, err)
			}
			if len(pred) == 0 {
				return out, fmt.Errorf("ego policy returned empty trajectory at step %d", t)
			}
			step.EgoPred = pred
			sc.Frames[cur+1].Ego = advancePose(sc.Frames[cur].Ego, pred[0])
		}

		// agents
		nextAgents := s.nextAgents(sc, cur, history, initial, &step)
		sc.Frames[cur+1].Agents = nextAgents

		out.Steps = append(out.Steps, step)
		if p.ShowInfo {
			log.Printf("scene %d step %d/%d: ego (%.2f, %.2f) yaw %.3f, %d simulated agents",
				sc.Index, t+1, steps, sc.Frames[cur+1].Ego.X, sc.Frames[cur+1].Ego.Y,
				sc.Frames[cur+1].Ego.Yaw, step.SimulatedAgents)
		}
	}

	out.Frames = sc.Frames[start : start+steps+1]
	out.GT = sc.GT[start : start+steps+1]
	return out, nil
}

// nextAgents decides every agent's state at frame cur+1: policy-driven for
// close agents, ground truth for far ones. Tracks entering the log
// mid-rollout join at their recorded state unless DisableNewAgents drops
// them.
func (s *Simulator) nextAgents(sc *Scene, cur int, history []scene.Snapshot, initial map[int64]bool, step *StepOutput) []scene.AgentState {
	p := s.Params
	ego := sc.Frames[cur].Ego

	var next []scene.AgentState
	if p.UseAgentsGT {
		next = append(next, sc.GT[cur+1].Agents...)
	} else {
		carried := make(map[int64]bool, len(sc.Frames[cur].Agents))
		// carry simulated agents forward
		for _, a := range sc.Frames[cur].Agents {
			carried[a.TrackID] = true
			d := math.Hypot(a.CX-ego.X, a.CY-ego.Y)
			if d > p.DistanceThFar {
				// out of range: follow ground truth when the track persists
				if gt, ok := sc.GT[cur+1].FindAgent(a.TrackID); ok {
					next = append(next, gt)
				}
				continue
			}
			if d > p.DistanceThClose {
				// mid band: hold ground truth motion but keep the track alive
				if gt, ok := sc.GT[cur+1].FindAgent(a.TrackID); ok {
					next = append(next, gt)
				} else {
					next = append(next, a)
				}
				continue
			}
			pred, err := s.Agents.PredictAgent(history, a.TrackID)
			if err != nil || len(pred) == 0 {
				next = append(next, a) // freeze on failure
				continue
			}
			moved := a
			pose := advancePose(geometry.Pose{X: a.CX, Y: a.CY, Yaw: a.Yaw}, pred[0])
			moved.CX, moved.CY, moved.Yaw = pose.X, pose.Y, pose.Yaw
			next = append(next, moved)
			step.SimulatedAgents++
		}
		// admit tracks the log introduces at frame cur+1
		for _, gt := range sc.GT[cur+1].Agents {
			if !carried[gt.TrackID] {
				next = append(next, gt)
			}
		}
	}

	if p.DisableNewAgents {
		filtered := next[:0]
		for _, a := range next {
			if initial[a.TrackID] {
				filtered = append(filtered, a)
			}
		}
		next = filtered
	}
	return next
}

// historyView returns frames cur, cur-1, ... as a current-first slice.
func historyView(frames []scene.Snapshot, cur int) []scene.Snapshot {
	out := make([]scene.Snapshot, 0, cur+1)
	for i := cur; i >= 0; i-- {
		out = append(out, frames[i])
	}
	return out
}

// advancePose applies one trajectory step expressed in the pose frame.
func advancePose(p geometry.Pose, step model.TrajectoryStep) geometry.Pose {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return geometry.Pose{
		X:   p.X + c*step.X - s*step.Y,
		Y:   p.Y + s*step.X + c*step.Y,
		Yaw: geometry.WrapYaw(p.Yaw + step.Yaw),
	}
}
