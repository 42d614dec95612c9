package model

import (
	"math/rand"
	"testing"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func urbanFixture(t *testing.T) (*vector.Vectorizer, *vector.Features) {
	t.Helper()
	mp := config.Default().ModelParams
	mp.HistoryNumFrames = 1
	mp.MaxAgents = 2
	mp.MaxMapElements = 2
	mp.PointsPerElement = 4
	v := vector.New(mp, nil)

	history := []scene.Snapshot{
		{
			Ego: geometry.Pose{X: 0, Y: 0, Yaw: 0},
			Agents: []scene.AgentState{
				{TrackID: 1, CX: 6, CY: 1, Length: 4, Width: 2},
			},
		},
		{
			Ego: geometry.Pose{X: -1, Y: 0, Yaw: 0},
			Agents: []scene.AgentState{
				{TrackID: 1, CX: 5.5, CY: 1, Length: 4, Width: 2},
			},
		},
	}
	return v, v.Vectorize(history)
}

func TestUrbanPolicyForwardShape(t *testing.T) {
	v, feats := urbanFixture(t)
	rng := rand.New(rand.NewSource(1))
	u := NewUrbanPolicy(rng, v, 8, 16, 3)

	traj, err := u.Forward(feats)
	require.NoError(t, err)
	assert.Len(t, traj, 3)
	assert.Equal(t, 5, u.NumPolylines()) // ego + 2 agents + 2 map
}

func TestUrbanPolicyTrainingConverges(t *testing.T) {
	v, feats := urbanFixture(t)
	rng := rand.New(rand.NewSource(2))
	u := NewUrbanPolicy(rng, v, 8, 16, 2)
	opt := NewAdam(0.005)

	target := Trajectory{{X: 0.8, Y: 0.05, Yaw: 0.01}, {X: 1.6, Y: 0.1, Yaw: 0.02}}
	avail := []float64{1, 1}

	first, err := u.TrainStep(feats, target, avail)
	require.NoError(t, err)
	opt.Step(u.Params())

	var last float64
	for i := 0; i < 300; i++ {
		u.ZeroGrad()
		last, err = u.TrainStep(feats, target, avail)
		require.NoError(t, err)
		opt.Step(u.Params())
	}
	assert.Less(t, last, first/50, "policy failed to fit: %v -> %v", first, last)
}

func TestUrbanPolicyMaskedPolylinesNoGrad(t *testing.T) {
	v, _ := urbanFixture(t)
	rng := rand.New(rand.NewSource(3))
	u := NewUrbanPolicy(rng, v, 4, 8, 1)

	// features with nothing available except the ego current point
	empty := v.Vectorize([]scene.Snapshot{{Ego: geometry.Pose{}}})
	_, err := u.TrainStep(empty, Trajectory{{X: 1}}, []float64{1})
	require.NoError(t, err)

	// gradient flows into the head; finite on every parameter
	sawNonZero := false
	for _, p := range u.Params() {
		for _, g := range p.Grad {
			if g != 0 {
				sawNonZero = true
			}
		}
	}
	assert.True(t, sawNonZero)
}
