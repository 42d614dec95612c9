package viz

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/rl"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/sim"
	"github.com/avstack-dev/drivekit/internal/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() scene.Snapshot {
	return scene.Snapshot{
		TimestampNs: 1000,
		Ego:         geometry.Pose{X: 10, Y: 20, Yaw: 0.3},
		Agents: []scene.AgentState{
			{TrackID: 1, CX: 15, CY: 22, Yaw: 0.3, Length: 4.4, Width: 1.9},
			{TrackID: 2, CX: 5, CY: 18, Yaw: 0.3, Length: 4.4, Width: 1.9},
		},
	}
}

func testRollout() *sim.SceneOutput {
	out := &sim.SceneOutput{SceneIndex: 2}
	for i := 0; i < 5; i++ {
		out.Frames = append(out.Frames, scene.Snapshot{
			Ego: geometry.Pose{X: float64(i), Y: 0.1 * float64(i)},
			Agents: []scene.AgentState{
				{TrackID: 1, CX: float64(i) + 6, CY: 2, Length: 4.4, Width: 1.9},
			},
		})
		out.GT = append(out.GT, scene.Snapshot{Ego: geometry.Pose{X: float64(i)}})
		if i < 4 {
			out.Steps = append(out.Steps, sim.StepOutput{Step: i})
		}
	}
	return out
}

func TestRenderSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSnapshot(&buf, testSnapshot(), nil, "frame 0"))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "frame 0")
	assert.Contains(t, html, "ego")
	assert.Contains(t, html, "agents")
}

func TestWriteRolloutPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollouts.html")
	require.NoError(t, WriteRolloutPage(path, []*sim.SceneOutput{testRollout()}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "simulated")
	assert.Contains(t, html, "log")
	assert.True(t, strings.Contains(html, "scene 2"))

	assert.Error(t, WriteRolloutPage(path, nil))
}

func TestSaveLossCurves(t *testing.T) {
	report := &train.Report{
		TrainLosses: []float64{1.0, 0.8, 0.6, 0.5},
		ValLosses:   []train.ValPoint{{Step: 2, Loss: 0.7}, {Step: 4, Loss: 0.55}},
		Steps:       4,
	}
	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, SaveLossCurves(path, report))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, SaveLossCurves(path, &train.Report{}))
}

func TestSaveRewardCurve(t *testing.T) {
	stats := []rl.UpdateStats{
		{Update: 1, MeanReward: -0.5},
		{Update: 2, MeanReward: 0.1},
		{Update: 3, MeanReward: 0.4},
	}
	path := filepath.Join(t.TempDir(), "reward.png")
	require.NoError(t, SaveRewardCurve(path, stats))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, SaveRewardCurve(path, nil))
}
