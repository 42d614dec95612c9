package vector

import (
	"math"
	"testing"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/mapapi"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() config.ModelParams {
	mp := config.Default().ModelParams
	mp.HistoryNumFrames = 2
	mp.MaxAgents = 3
	mp.MaxAgentsDistance = 30
	mp.MaxMapDistance = 40
	mp.MaxMapElements = 2
	mp.PointsPerElement = 4
	return mp
}

func agent(id int64, x, y float64) scene.AgentState {
	return scene.AgentState{TrackID: id, CX: x, CY: y, Length: 4.5, Width: 1.9}
}

func TestVectorizeEgoFrame(t *testing.T) {
	v := New(testParams(), nil)
	history := []scene.Snapshot{
		{Ego: geometry.Pose{X: 10, Y: 10, Yaw: math.Pi / 2}},
		{Ego: geometry.Pose{X: 10, Y: 8, Yaw: math.Pi / 2}},
		{Ego: geometry.Pose{X: 10, Y: 6, Yaw: math.Pi / 2}},
	}
	f := v.Vectorize(history)

	require.Len(t, f.Ego, 3)
	// current pose maps to the origin
	assert.InDelta(t, 0, f.Ego[0].X, 1e-9)
	assert.InDelta(t, 0, f.Ego[0].Y, 1e-9)
	// ego was 2m behind: behind means -X in the ego frame
	assert.InDelta(t, -2, f.Ego[1].X, 1e-9)
	assert.InDelta(t, 0, f.Ego[1].Y, 1e-9)
	assert.True(t, f.Ego[2].Avail)
}

func TestVectorizeAgentSelection(t *testing.T) {
	v := New(testParams(), nil)
	cur := scene.Snapshot{
		Ego: geometry.Pose{},
		Agents: []scene.AgentState{
			agent(1, 5, 0),
			agent(2, 50, 0), // beyond max distance
			{TrackID: 3, CX: 2, CY: 0, Length: 1, Width: 0.4}, // too small
			agent(4, 10, 0),
			agent(5, 3, 0),
			agent(6, 8, 0),
		},
	}
	f := v.Vectorize([]scene.Snapshot{cur})

	// closest three valid agents fill the slots: 5 (3m), 1 (5m), 6 (8m)
	require.Equal(t, []bool{true, true, true}, f.AgentMask)
	assert.InDelta(t, 3, f.Agents[0][0].X, 1e-9)
	assert.InDelta(t, 5, f.Agents[1][0].X, 1e-9)
	assert.InDelta(t, 8, f.Agents[2][0].X, 1e-9)
}

func TestVectorizeTrackMatchingAcrossHistory(t *testing.T) {
	v := New(testParams(), nil)
	history := []scene.Snapshot{
		{Ego: geometry.Pose{}, Agents: []scene.AgentState{agent(7, 6, 0)}},
		{Ego: geometry.Pose{}, Agents: []scene.AgentState{agent(7, 5, 0)}},
		{Ego: geometry.Pose{}, Agents: []scene.AgentState{agent(8, 4, 0)}}, // different track
	}
	f := v.Vectorize(history)

	require.True(t, f.AgentMask[0])
	assert.True(t, f.Agents[0][0].Avail)
	assert.InDelta(t, 6, f.Agents[0][0].X, 1e-9)
	assert.True(t, f.Agents[0][1].Avail)
	assert.InDelta(t, 5, f.Agents[0][1].X, 1e-9)
	// track 7 absent two steps back
	assert.False(t, f.Agents[0][2].Avail)
}

func TestVectorizeMapElements(t *testing.T) {
	sm := &mapapi.Map{Lanes: []mapapi.Lane{
		{ID: 1, Centerline: [][2]float64{{0, 0}, {30, 0}}},
		{ID: 2, Centerline: [][2]float64{{500, 500}, {510, 500}}}, // out of range
	}}
	v := New(testParams(), sm)
	f := v.Vectorize([]scene.Snapshot{{Ego: geometry.Pose{}}})

	assert.Equal(t, []bool{true, false}, f.MapMask)
	require.Len(t, f.Map[0], 4)
	assert.True(t, f.Map[0][0].Avail)
	assert.InDelta(t, 10, f.Map[0][1].X, 1e-9) // resampled at thirds of 30m
}

func TestFlattenShape(t *testing.T) {
	v := New(testParams(), nil)
	f := v.Vectorize([]scene.Snapshot{{Ego: geometry.Pose{}}})

	want := (3 + 3*3 + 2*4) * PointDim // ego + agents + map polyline points
	assert.Len(t, f.Flatten(), want)

	flat := f.Flatten()
	assert.Equal(t, 1.0, flat[3], "current ego point must be available")
}
