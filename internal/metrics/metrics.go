// Package metrics scores closed-loop rollouts against logged ground truth:
// displacement errors, yaw error and collision detection between oriented
// boxes.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/sim"
)

// CollisionType labels where the other box sits relative to the ego heading
// at the moment of contact.
type CollisionType int

const (
	CollisionNone CollisionType = iota
	CollisionFront
	CollisionRear
	CollisionSide
)

func (c CollisionType) String() string {
	switch c {
	case CollisionFront:
		return "front"
	case CollisionRear:
		return "rear"
	case CollisionSide:
		return "side"
	default:
		return "none"
	}
}

// Collision records one ego-agent contact during a rollout.
type Collision struct {
	Step    int
	TrackID int64
	Type    CollisionType
}

// SceneScore holds the per-scene evaluation of one rollout.
type SceneScore struct {
	SceneIndex int

	// ADE is the average L2 distance between simulated and logged ego
	// positions over the rollout; FDE is the distance at the final step.
	ADE float64
	FDE float64
	// YawError is the absolute wrapped yaw difference at the final step.
	YawError float64

	Collisions []Collision
}

// Collided reports whether any contact occurred.
func (s SceneScore) Collided() bool { return len(s.Collisions) > 0 }

// ScoreScene evaluates one rollout output.
func ScoreScene(out *sim.SceneOutput) (SceneScore, error) {
	if len(out.Frames) < 2 || len(out.Frames) != len(out.GT) {
		return SceneScore{}, fmt.Errorf("metrics: malformed rollout for scene %d: %d sim vs %d gt frames",
			out.SceneIndex, len(out.Frames), len(out.GT))
	}
	score := SceneScore{SceneIndex: out.SceneIndex}

	// displacement over every frame after the start state
	var sum float64
	for i := 1; i < len(out.Frames); i++ {
		simEgo := out.Frames[i].Ego
		gtEgo := out.GT[i].Ego
		d := math.Hypot(simEgo.X-gtEgo.X, simEgo.Y-gtEgo.Y)
		sum += d
		if i == len(out.Frames)-1 {
			score.FDE = d
			score.YawError = math.Abs(geometry.YawDiff(simEgo.Yaw, gtEgo.Yaw))
		}
	}
	score.ADE = sum / float64(len(out.Frames)-1)

	for i := 1; i < len(out.Frames); i++ {
		snap := out.Frames[i]
		egoBox := snap.EgoBox()
		for _, a := range snap.Agents {
			if !egoBox.Intersects(a.Box()) {
				continue
			}
			score.Collisions = append(score.Collisions, Collision{
				Step:    i - 1,
				TrackID: a.TrackID,
				Type:    classifyCollision(snap.Ego, a),
			})
		}
	}
	return score, nil
}

// classifyCollision buckets the contact by the agent bearing in the ego
// frame: within 45 degrees of the heading is front, within 45 of the tail is
// rear, everything else is side.
func classifyCollision(ego geometry.Pose, a scene.AgentState) CollisionType {
	bearing := math.Atan2(a.CY-ego.Y, a.CX-ego.X)
	rel := math.Abs(geometry.YawDiff(bearing, ego.Yaw))
	switch {
	case rel <= math.Pi/4:
		return CollisionFront
	case rel >= 3*math.Pi/4:
		return CollisionRear
	default:
		return CollisionSide
	}
}

// Aggregate summarises scores across scenes.
type Aggregate struct {
	NumScenes     int
	MeanADE       float64
	MeanFDE       float64
	StdFDE        float64
	MeanYawError  float64
	CollisionRate float64 // fraction of scenes with at least one contact
}

// Summarise aggregates per-scene scores.
func Summarise(scores []SceneScore) Aggregate {
	if len(scores) == 0 {
		return Aggregate{}
	}
	ades := make([]float64, len(scores))
	fdes := make([]float64, len(scores))
	yaws := make([]float64, len(scores))
	collided := 0
	for i, s := range scores {
		ades[i] = s.ADE
		fdes[i] = s.FDE
		yaws[i] = s.YawError
		if s.Collided() {
			collided++
		}
	}
	return Aggregate{
		NumScenes:     len(scores),
		MeanADE:       stat.Mean(ades, nil),
		MeanFDE:       stat.Mean(fdes, nil),
		StdFDE:        stat.StdDev(fdes, nil),
		MeanYawError:  stat.Mean(yaws, nil),
		CollisionRate: float64(collided) / float64(len(scores)),
	}
}
