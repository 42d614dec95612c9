package raster

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

func testContext() RenderContext {
	return RenderContext{
		Width:     64,
		Height:    64,
		PixelSize: [2]float64{0.5, 0.5},
		EgoCenter: [2]float64{0.5, 0.5},
	}
}

func channelSum(ch []float32) float64 {
	var s float64
	for _, v := range ch {
		s += float64(v)
	}
	return s
}

func TestRasterFromWorldPlacesEgoAtCenter(t *testing.T) {
	rc := testContext()
	ego := geometry.Pose{X: 120, Y: -40, Yaw: 1.1}

	x, y := rc.RasterFromWorld(ego).Apply(120, -40)
	assert.InDelta(t, 32, x, 1e-9)
	assert.InDelta(t, 32, y, 1e-9)

	// a point 4m ahead of the ego lands +8px along raster X
	ax := 120 + 4*math.Cos(1.1)
	ay := -40 + 4*math.Sin(1.1)
	x, y = rc.RasterFromWorld(ego).Apply(ax, ay)
	assert.InDelta(t, 40, x, 1e-6)
	assert.InDelta(t, 32, y, 1e-6)
}

func TestWorldFromRasterRoundTrip(t *testing.T) {
	rc := testContext()
	ego := geometry.Pose{X: 3, Y: 9, Yaw: -0.4}
	fw := rc.RasterFromWorld(ego)
	bw := rc.WorldFromRaster(ego)

	px, py := fw.Apply(7.5, -2.5)
	x, y := bw.Apply(px, py)
	assert.InDelta(t, 7.5, x, 1e-9)
	assert.InDelta(t, -2.5, y, 1e-9)
}

func TestBoxRasterizerDrawsEgoAndAgents(t *testing.T) {
	r := NewBoxRasterizer(testContext(), 1)
	snap := scene.Snapshot{
		Ego: geometry.Pose{X: 0, Y: 0, Yaw: 0},
		Agents: []scene.AgentState{
			{TrackID: 1, CX: 5, CY: 0, Yaw: 0, Length: 4, Width: 2},
		},
	}

	out, err := r.Rasterize([]scene.Snapshot{snap})
	require.NoError(t, err)
	require.Equal(t, 2, out.C)

	agentPixels := channelSum(out.Channel(0))
	egoPixels := channelSum(out.Channel(1))
	assert.Greater(t, agentPixels, 0.0, "agent channel empty")
	assert.Greater(t, egoPixels, 0.0, "ego channel empty")

	// 4m x 2m at 0.5 m/px covers about 8x4 px
	assert.InDelta(t, 32, agentPixels, 12)

	// the agent sits 10px right of center on the agent channel
	assert.Equal(t, float32(1), out.At(0, 32, 42))
	// ego box covers the center pixel on the ego channel
	assert.Equal(t, float32(1), out.At(1, 32, 32))
}

func TestBoxRasterizerHistoryChannels(t *testing.T) {
	r := NewBoxRasterizer(testContext(), 3)
	require.Equal(t, 6, r.NumChannels())

	current := scene.Snapshot{Ego: geometry.Pose{X: 0, Y: 0, Yaw: 0}}
	older := scene.Snapshot{Ego: geometry.Pose{X: -2, Y: 0, Yaw: 0}}

	// only two snapshots available: the last history pair stays empty
	out, err := r.Rasterize([]scene.Snapshot{current, older})
	require.NoError(t, err)
	assert.Greater(t, channelSum(out.Channel(1)), 0.0)
	assert.Greater(t, channelSum(out.Channel(3)), 0.0)
	assert.Zero(t, channelSum(out.Channel(5)))
}

func TestBoxRasterizerEmptyHistory(t *testing.T) {
	_, err := NewBoxRasterizer(testContext(), 1).Rasterize(nil)
	assert.Error(t, err)
}

func TestSemanticRasterizer(t *testing.T) {
	sm := &mapapi.Map{
		Lanes: []mapapi.Lane{{
			ID:         1,
			Centerline: [][2]float64{{-10, 0}, {10, 0}},
			LeftBound:  [][2]float64{{-10, 1.5}, {10, 1.5}},
			RightBound: [][2]float64{{-10, -1.5}, {10, -1.5}},
		}},
		Crosswalks: []mapapi.Crosswalk{{
			ID:      2,
			Polygon: [][2]float64{{3, -3}, {5, -3}, {5, 3}, {3, 3}},
		}},
	}
	r := NewSemanticRasterizer(testContext(), sm)

	out, err := r.Rasterize([]scene.Snapshot{{Ego: geometry.Pose{X: 0, Y: 0, Yaw: 0}}})
	require.NoError(t, err)
	require.Equal(t, numSemanticChannels, out.C)

	assert.Greater(t, channelSum(out.Channel(ChannelLaneCenter)), 0.0)
	assert.Greater(t, channelSum(out.Channel(ChannelLaneBound)), 0.0)
	assert.Greater(t, channelSum(out.Channel(ChannelCrosswalk)), 0.0)

	// lane centerline passes through the raster center row
	assert.Equal(t, float32(1), out.At(ChannelLaneCenter, 32, 32))
}

func TestBuildSelectsRasterizer(t *testing.T) {
	cfg := config.Default()
	cfg.ModelParams.HistoryNumFrames = 2

	cfg.RasterParams.MapType = config.MapTypeBoxDebug
	r, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, r.NumChannels())

	cfg.RasterParams.MapType = config.MapTypeSemanticDebug
	_, err = Build(cfg, nil)
	assert.Error(t, err, "semantic map required")

	r, err = Build(cfg, &mapapi.Map{})
	require.NoError(t, err)
	assert.Equal(t, 6+numSemanticChannels, r.NumChannels())
}
