// Package rl trains driving policies with proximal policy optimization on
// top of the closed-loop simulator.
package rl

import (
	"fmt"
	"math"

	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/sim"
	"github.com/avstack-dev/drivekit/internal/vector"
)

// Env is a single-agent episodic environment with continuous actions.
type Env interface {
	// Reset starts a new episode and returns the initial observation.
	Reset() ([]float64, error)
	// Step applies an action and returns the next observation, the reward
	// and whether the episode terminated.
	Step(action []float64) ([]float64, float64, bool, error)
	ObsDim() int
	ActDim() int
}

// ActDim is the driving action width: forward and lateral displacement plus
// yaw change, all in the current ego frame.
const ActDim = 3

// RewardParams weights the driving reward terms.
type RewardParams struct {
	// ProgressWeight scales the per-step reduction in distance to the
	// episode goal, the logged ego pose at the final episode frame.
	ProgressWeight float64
	// CollisionPenalty is subtracted once when the ego hits an agent; the
	// episode ends.
	CollisionPenalty float64
	// OffRouteWeight scales the penalty on lateral distance from the log.
	OffRouteWeight float64
	// OffRouteLimit terminates the episode when exceeded, in meters.
	OffRouteLimit float64
}

// DefaultRewardParams returns the weighting used by the example trainers.
func DefaultRewardParams() RewardParams {
	return RewardParams{
		ProgressWeight:   1.0,
		CollisionPenalty: 10.0,
		OffRouteWeight:   0.1,
		OffRouteLimit:    6.0,
	}
}

// DriveEnv replays one recorded scene: the policy drives the ego while
// agents follow the log. Observations are the flattened polyline features.
type DriveEnv struct {
	base    *sim.Scene
	vec     *vector.Vectorizer
	reward  RewardParams
	start   int
	horizon int

	frames []scene.Snapshot // working copy, reset per episode
	t      int
	done   bool
}

// NewDriveEnv wraps a loaded scene. The episode runs from startFrame for at
// most horizon steps.
func NewDriveEnv(sc *sim.Scene, vec *vector.Vectorizer, reward RewardParams, startFrame, horizon int) (*DriveEnv, error) {
	if startFrame >= len(sc.Frames)-1 {
		return nil, fmt.Errorf("rl: start frame %d beyond scene length %d", startFrame, len(sc.Frames))
	}
	if max := len(sc.Frames) - 1 - startFrame; horizon > max || horizon <= 0 {
		horizon = max
	}
	return &DriveEnv{base: sc, vec: vec, reward: reward, start: startFrame, horizon: horizon}, nil
}

// ObsDim returns the flattened feature width.
func (e *DriveEnv) ObsDim() int { return e.vec.FeatureDim() }

// ActDim returns the action width.
func (e *DriveEnv) ActDim() int { return ActDim }

// Reset restores the scene from the log and returns the first observation.
func (e *DriveEnv) Reset() ([]float64, error) {
	e.frames = make([]scene.Snapshot, len(e.base.GT))
	for i, s := range e.base.GT {
		e.frames[i] = s
		e.frames[i].Agents = append([]scene.AgentState(nil), s.Agents...)
	}
	e.t = 0
	e.done = false
	return e.observe(), nil
}

// Step advances one frame under the action.
func (e *DriveEnv) Step(action []float64) ([]float64, float64, bool, error) {
	if e.done {
		return nil, 0, true, fmt.Errorf("rl: step on finished episode")
	}
	if len(action) != ActDim {
		return nil, 0, false, fmt.Errorf("rl: action width %d, want %d", len(action), ActDim)
	}
	cur := e.start + e.t
	prev := e.frames[cur].Ego
	next := advance(prev, action)
	e.frames[cur+1].Ego = next
	e.t++

	gt := e.base.GT[cur+1].Ego
	goal := e.base.GT[e.start+e.horizon].Ego
	prevDist := math.Hypot(prev.X-goal.X, prev.Y-goal.Y)
	dist := math.Hypot(next.X-goal.X, next.Y-goal.Y)
	gap := math.Hypot(next.X-gt.X, next.Y-gt.Y)

	reward := e.reward.ProgressWeight*(prevDist-dist) - e.reward.OffRouteWeight*gap

	snap := e.frames[cur+1]
	egoBox := snap.EgoBox()
	for _, a := range snap.Agents {
		if egoBox.Intersects(a.Box()) {
			reward -= e.reward.CollisionPenalty
			e.done = true
			break
		}
	}
	if gap > e.reward.OffRouteLimit {
		e.done = true
	}
	if e.t >= e.horizon {
		e.done = true
	}
	return e.observe(), reward, e.done, nil
}

func (e *DriveEnv) observe() []float64 {
	cur := e.start + e.t
	history := make([]scene.Snapshot, 0, cur+1)
	for i := cur; i >= 0; i-- {
		history = append(history, e.frames[i])
	}
	return e.vec.Vectorize(history).Flatten()
}

func advance(p geometry.Pose, action []float64) geometry.Pose {
	return advanceStep(p, model.TrajectoryStep{X: action[0], Y: action[1], Yaw: action[2]})
}

func advanceStep(p geometry.Pose, step model.TrajectoryStep) geometry.Pose {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return geometry.Pose{
		X:   p.X + c*step.X - s*step.Y,
		Y:   p.Y + s*step.X + c*step.Y,
		Yaw: geometry.WrapYaw(p.Yaw + step.Yaw),
	}
}
