package sim

import (
	"fmt"
	"math"

	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/raster"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/vector"
)

// PlannerPolicy drives the ego with the raster behavioral-cloning planner.
type PlannerPolicy struct {
	Planner *model.Planner
	Rast    raster.Rasterizer
}

// PredictEgo rasterizes the history and runs the planner.
func (p PlannerPolicy) PredictEgo(history []scene.Snapshot) (model.Trajectory, error) {
	t, err := p.Rast.Rasterize(history)
	if err != nil {
		return nil, fmt.Errorf("rasterize for planner: %w", err)
	}
	return p.Planner.Predict(model.FlattenRaster(t))
}

// UrbanPolicy drives the ego with the polyline policy.
type UrbanPolicy struct {
	Policy *model.UrbanPolicy
	Vec    *vector.Vectorizer
}

// PredictEgo vectorizes the history and runs the policy.
func (p UrbanPolicy) PredictEgo(history []scene.Snapshot) (model.Trajectory, error) {
	return p.Policy.Forward(p.Vec.Vectorize(history))
}

// ConstantVelocityAgents extrapolates each agent's last observed motion.
// Used as the agent model when no learned one is supplied.
type ConstantVelocityAgents struct {
	// Horizon is the trajectory length to emit; zero means 1.
	Horizon int
}

// PredictAgent repeats the displacement between the two most recent
// observations of the track, expressed in the agent frame. An agent seen
// only once stays put.
func (p ConstantVelocityAgents) PredictAgent(history []scene.Snapshot, trackID int64) (model.Trajectory, error) {
	horizon := p.Horizon
	if horizon < 1 {
		horizon = 1
	}
	cur, ok := history[0].FindAgent(trackID)
	if !ok {
		return nil, fmt.Errorf("track %d not in current frame", trackID)
	}
	var step model.TrajectoryStep
	if len(history) > 1 {
		if prev, ok := history[1].FindAgent(trackID); ok {
			dx := cur.CX - prev.CX
			dy := cur.CY - prev.CY
			c, s := math.Cos(cur.Yaw), math.Sin(cur.Yaw)
			step = model.TrajectoryStep{
				X:   c*dx + s*dy,
				Y:   -s*dx + c*dy,
				Yaw: geometry.YawDiff(cur.Yaw, prev.Yaw),
			}
		}
	}
	out := make(model.Trajectory, horizon)
	for i := range out {
		out[i] = step
	}
	return out, nil
}
