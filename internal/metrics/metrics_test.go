package metrics

import (
	"math"
	"testing"

	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapAt(x, y, yaw float64, agents ...scene.AgentState) scene.Snapshot {
	return scene.Snapshot{Ego: geometry.Pose{X: x, Y: y, Yaw: yaw}, Agents: agents}
}

func TestScoreSceneDisplacement(t *testing.T) {
	out := &sim.SceneOutput{
		SceneIndex: 3,
		GT: []scene.Snapshot{
			snapAt(0, 0, 0), snapAt(1, 0, 0), snapAt(2, 0, 0),
		},
		Frames: []scene.Snapshot{
			snapAt(0, 0, 0), snapAt(1, 1, 0), snapAt(2, 2, 0.5),
		},
	}
	score, err := ScoreScene(out)
	require.NoError(t, err)
	assert.Equal(t, 3, score.SceneIndex)
	assert.InDelta(t, 1.5, score.ADE, 1e-12)
	assert.InDelta(t, 2.0, score.FDE, 1e-12)
	assert.InDelta(t, 0.5, score.YawError, 1e-12)
	assert.False(t, score.Collided())
}

func TestScoreScenePerfectRollout(t *testing.T) {
	frames := []scene.Snapshot{snapAt(0, 0, 0), snapAt(1, 0, 0)}
	out := &sim.SceneOutput{GT: frames, Frames: frames}
	score, err := ScoreScene(out)
	require.NoError(t, err)
	assert.Zero(t, score.ADE)
	assert.Zero(t, score.FDE)
	assert.Zero(t, score.YawError)
}

func TestScoreSceneCollisions(t *testing.T) {
	front := scene.AgentState{TrackID: 1, CX: 4.2, CY: 0, Length: 4, Width: 2}
	rear := scene.AgentState{TrackID: 2, CX: -4.2, CY: 0, Length: 4, Width: 2}
	side := scene.AgentState{TrackID: 3, CX: 0, CY: 1.8, Length: 4, Width: 2}
	far := scene.AgentState{TrackID: 4, CX: 50, CY: 50, Length: 4, Width: 2}

	out := &sim.SceneOutput{
		GT:     []scene.Snapshot{snapAt(0, 0, 0), snapAt(0, 0, 0)},
		Frames: []scene.Snapshot{snapAt(0, 0, 0), snapAt(0, 0, 0, front, rear, side, far)},
	}
	score, err := ScoreScene(out)
	require.NoError(t, err)
	require.Len(t, score.Collisions, 3)
	assert.True(t, score.Collided())

	types := map[int64]CollisionType{}
	for _, c := range score.Collisions {
		types[c.TrackID] = c.Type
		assert.Equal(t, 0, c.Step)
	}
	assert.Equal(t, CollisionFront, types[1])
	assert.Equal(t, CollisionRear, types[2])
	assert.Equal(t, CollisionSide, types[3])
}

func TestScoreSceneMalformed(t *testing.T) {
	_, err := ScoreScene(&sim.SceneOutput{
		GT:     []scene.Snapshot{snapAt(0, 0, 0)},
		Frames: []scene.Snapshot{snapAt(0, 0, 0), snapAt(1, 0, 0)},
	})
	assert.Error(t, err)
}

func TestSummarise(t *testing.T) {
	scores := []SceneScore{
		{ADE: 1, FDE: 2, YawError: 0.1},
		{ADE: 3, FDE: 4, YawError: 0.3, Collisions: []Collision{{TrackID: 1, Type: CollisionFront}}},
	}
	agg := Summarise(scores)
	assert.Equal(t, 2, agg.NumScenes)
	assert.InDelta(t, 2.0, agg.MeanADE, 1e-12)
	assert.InDelta(t, 3.0, agg.MeanFDE, 1e-12)
	assert.InDelta(t, math.Sqrt2, agg.StdFDE, 1e-12)
	assert.InDelta(t, 0.2, agg.MeanYawError, 1e-12)
	assert.InDelta(t, 0.5, agg.CollisionRate, 1e-12)

	assert.Zero(t, Summarise(nil).NumScenes)
}

func TestCollisionTypeString(t *testing.T) {
	assert.Equal(t, "front", CollisionFront.String())
	assert.Equal(t, "rear", CollisionRear.String())
	assert.Equal(t, "side", CollisionSide.String())
	assert.Equal(t, "none", CollisionNone.String())
}
