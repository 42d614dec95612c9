// Package pipeline wires configuration, data access and model construction
// for the command-line tools.
package pipeline

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/mapapi"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/raster"
	"github.com/avstack-dev/drivekit/internal/sample"
	"github.com/avstack-dev/drivekit/internal/vector"
)

// Env bundles everything a tool needs to touch datasets.
type Env struct {
	Cfg *config.Config
	DM  *data.LocalDataManager
	SM  *mapapi.Map // nil when the config does not name a semantic map
}

// Setup loads the config and data manager. dataRoot overrides the
// DRIVEKIT_DATA_FOLDER environment variable when non-empty. The semantic map
// is loaded when the config names one.
func Setup(configPath, dataRoot string) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	dm, err := data.NewLocalDataManager(dataRoot)
	if err != nil {
		return nil, err
	}
	env := &Env{Cfg: cfg, DM: dm}
	if key := cfg.RasterParams.SemanticMapKey; key != "" {
		path, err := dm.Require(key)
		if err != nil {
			return nil, err
		}
		env.SM, err = mapapi.Load(path)
		if err != nil {
			return nil, err
		}
	}
	return env, nil
}

// OpenDataset opens the chunked dataset behind a loader key.
func (e *Env) OpenDataset(key string) (*data.ChunkedDataset, error) {
	if key == "" {
		return nil, fmt.Errorf("loader key is empty")
	}
	path, err := e.DM.Require(key)
	if err != nil {
		return nil, err
	}
	return data.OpenChunked(path)
}

// EgoDataset builds an ego dataset over a loader key. withRaster controls
// whether samples carry BEV tensors; vector features are always attached.
func (e *Env) EgoDataset(key string, withRaster bool) (*sample.EgoDataset, *data.ChunkedDataset, error) {
	ds, err := e.OpenDataset(key)
	if err != nil {
		return nil, nil, err
	}
	var rast raster.Rasterizer
	if withRaster {
		rast, err = raster.Build(e.Cfg, e.SM)
		if err != nil {
			ds.Close()
			return nil, nil, err
		}
	}
	vec := vector.New(e.Cfg.ModelParams, e.SM)
	ego, err := sample.NewEgoDataset(e.Cfg, ds, rast, vec)
	if err != nil {
		ds.Close()
		return nil, nil, err
	}
	return ego, ds, nil
}

// NewPlanner builds the raster planner sized to the configured rasterizer.
func (e *Env) NewPlanner(rng *rand.Rand) (*model.Planner, raster.Rasterizer, error) {
	rast, err := raster.Build(e.Cfg, e.SM)
	if err != nil {
		return nil, nil, err
	}
	inDim := rast.NumChannels() * e.Cfg.RasterParams.RasterSize[1] * e.Cfg.RasterParams.RasterSize[0]
	p := model.NewPlanner(rng, inDim, e.Cfg.ModelParams.HiddenSize, e.Cfg.ModelParams.FutureNumFrames)
	return p, rast, nil
}

// NewUrbanPolicy builds the polyline policy over the configured vectorizer
// shape. Embed is the per-point encoder width.
func (e *Env) NewUrbanPolicy(rng *rand.Rand, embed int) (*model.UrbanPolicy, *vector.Vectorizer) {
	vec := vector.New(e.Cfg.ModelParams, e.SM)
	return model.NewUrbanPolicy(rng, vec, embed, e.Cfg.ModelParams.HiddenSize, e.Cfg.ModelParams.FutureNumFrames), vec
}

// CheckpointPath returns the checkpoint file path for a step, creating the
// checkpoint directory if needed.
func (e *Env) CheckpointPath(step int) (string, error) {
	dir := e.Cfg.TrainParams.CheckpointDir
	if dir == "" {
		dir = "checkpoints"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("step_%06d.ckpt", step)), nil
}

// ConfigYAML reads the raw config file for run records; missing files yield
// an empty string.
func ConfigYAML(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(raw)
}
