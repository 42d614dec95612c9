package train

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/datagen"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/raster"
	"github.com/avstack-dev/drivekit/internal/sample"
	"github.com/avstack-dev/drivekit/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainConfig() *config.Config {
	cfg := config.Default()
	cfg.RasterParams.RasterSize = [2]int{16, 16}
	cfg.ModelParams.HistoryNumFrames = 1
	cfg.ModelParams.FutureNumFrames = 3
	cfg.ModelParams.HiddenSize = 16
	cfg.ModelParams.MaxAgents = 3
	cfg.ModelParams.MaxMapElements = 2
	cfg.ModelParams.PointsPerElement = 4
	cfg.TrainDataLoader.BatchSize = 4
	cfg.TrainDataLoader.NumWorkers = 2
	cfg.TrainDataLoader.Shuffle = true
	cfg.ValDataLoader.BatchSize = 4
	cfg.TrainParams.MaxNumSteps = 30
	cfg.TrainParams.LearningRate = 1e-3
	cfg.TrainParams.EvalEverySteps = 10
	cfg.TrainParams.CheckpointEvery = 15
	cfg.TrainParams.LogEverySteps = 0
	cfg.TrainParams.ValidationBatches = 2
	return cfg
}

func buildEgoDataset(t *testing.T, cfg *config.Config, withRaster bool) *sample.EgoDataset {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "train.chunked")
	p := datagen.DefaultParams()
	p.NumScenes = 2
	p.FramesPerScene = 25
	p.AgentsPerScene = 3
	require.NoError(t, datagen.Generate(dir, p))
	ds, err := data.OpenChunked(dir)
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	var rast raster.Rasterizer
	if withRaster {
		rast, err = raster.Build(cfg, nil)
		require.NoError(t, err)
	}
	vec := vector.New(cfg.ModelParams, nil)
	ego, err := sample.NewEgoDataset(cfg, ds, rast, vec)
	require.NoError(t, err)
	return ego
}

func TestTrainerPlannerRun(t *testing.T) {
	cfg := trainConfig()
	ego := buildEgoDataset(t, cfg, true)

	rast, err := raster.Build(cfg, nil)
	require.NoError(t, err)
	inDim := rast.NumChannels() * 16 * 16
	rng := rand.New(rand.NewSource(cfg.TrainParams.Seed))
	planner := model.NewPlanner(rng, inDim, cfg.ModelParams.HiddenSize, cfg.ModelParams.FutureNumFrames)

	var checkpoints []int
	tr := &Trainer{
		Cfg:   cfg,
		Model: PlannerModel{planner},
		Opt:   model.NewAdam(cfg.TrainParams.LearningRate),
		Train: ego,
		Val:   ego,
		CheckpointFn: func(step int) error {
			checkpoints = append(checkpoints, step)
			return nil
		},
	}

	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, report.Steps)
	assert.Len(t, report.TrainLosses, 30)
	assert.Len(t, report.ValLosses, 3)
	assert.Equal(t, []int{15, 30, 30}, checkpoints)

	// loss should come down over the run
	first := avg(report.TrainLosses[:5])
	last := avg(report.TrainLosses[25:])
	assert.Less(t, last, first)
}

func TestTrainerPolicyWithPerturbation(t *testing.T) {
	cfg := trainConfig()
	cfg.ModelParams.PerturbProbability = 0.5
	cfg.TrainParams.MaxNumSteps = 10
	cfg.TrainParams.EvalEverySteps = 0
	cfg.TrainParams.CheckpointEvery = 0
	ego := buildEgoDataset(t, cfg, false)

	vec := vector.New(cfg.ModelParams, nil)
	rng := rand.New(rand.NewSource(2))
	policy := model.NewUrbanPolicy(rng, vec, 8, cfg.ModelParams.HiddenSize, cfg.ModelParams.FutureNumFrames)

	tr := &Trainer{
		Cfg:   cfg,
		Model: PolicyModel{policy},
		Opt:   model.NewAdam(cfg.TrainParams.LearningRate),
		Train: NewPerturbedDataset(ego, 7),
	}
	report, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Steps)
}

func TestTrainerCancellation(t *testing.T) {
	cfg := trainConfig()
	cfg.TrainParams.MaxNumSteps = 1000
	ego := buildEgoDataset(t, cfg, false)

	vec := vector.New(cfg.ModelParams, nil)
	policy := model.NewUrbanPolicy(rand.New(rand.NewSource(3)), vec, 4, 8, cfg.ModelParams.FutureNumFrames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &Trainer{
		Cfg:   cfg,
		Model: PolicyModel{policy},
		Opt:   model.NewAdam(1e-3),
		Train: ego,
	}
	_, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSamplerCoversDataset(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := newSampler(10, true, rng)

	seen := map[int64]int{}
	for i := 0; i < 2; i++ {
		for _, idx := range s.next(10) {
			seen[idx]++
		}
	}
	require.Len(t, seen, 10)
	for idx, n := range seen {
		assert.Equal(t, 2, n, "index %d drawn %d times", idx, n)
	}
}

func avg(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
