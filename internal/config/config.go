// Package config loads and validates YAML pipeline configurations covering
// rasterization, data loading, training and simulation parameters.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Map types selectable through raster_params.map_type.
const (
	MapTypeBoxDebug      = "box_debug"
	MapTypeSemanticDebug = "semantic_debug"
	MapTypeSemantic      = "py_semantic" // kept for config compatibility, same as semantic_debug
)

// RasterParams configures BEV rasterization.
type RasterParams struct {
	RasterSize            [2]int     `yaml:"raster_size"`             // width, height in pixels
	PixelSize             [2]float64 `yaml:"pixel_size"`              // meters per pixel
	EgoCenter             [2]float64 `yaml:"ego_center"`              // fraction of raster where ego sits
	MapType               string     `yaml:"map_type"`                // box_debug | semantic_debug
	FilterAgentsThreshold float64    `yaml:"filter_agents_threshold"` // min class probability to keep an agent
	SemanticMapKey        string     `yaml:"semantic_map_key"`        // dataset key for the semantic map JSON
}

// ModelParams configures sample windows and model shape.
type ModelParams struct {
	HistoryNumFrames int     `yaml:"history_num_frames"`
	FutureNumFrames  int     `yaml:"future_num_frames"`
	StepTime         float64 `yaml:"step_time"` // seconds between frames
	HiddenSize       int     `yaml:"hidden_size"`

	// Vectorizer limits. Agents beyond MaxAgentsDistance of the ego are
	// dropped; at most MaxAgents are kept per sample.
	MaxAgents           int     `yaml:"max_agents"`
	MaxAgentsDistance   float64 `yaml:"max_agents_distance"`
	MaxMapDistance      float64 `yaml:"max_retrieval_distance_m"`
	MaxMapElements      int     `yaml:"max_map_elements"`
	PointsPerElement    int     `yaml:"points_per_element"`
	RenderEgoHistory    bool    `yaml:"render_ego_history"`
	PerturbProbability  float64 `yaml:"perturb_probability"` // closed-loop training perturbation
	PerturbTransStdDev  float64 `yaml:"perturb_trans_std"`
	PerturbYawStdDevDeg float64 `yaml:"perturb_yaw_std_deg"`
}

// LoaderParams configures one dataset loader (train or validation).
type LoaderParams struct {
	Key        string `yaml:"key"` // dataset key under the data folder
	BatchSize  int    `yaml:"batch_size"`
	Shuffle    bool   `yaml:"shuffle"`
	NumWorkers int    `yaml:"num_workers"`
}

// TrainParams configures the fixed-iteration training loop.
type TrainParams struct {
	MaxNumSteps       int     `yaml:"max_num_steps"`
	LearningRate      float64 `yaml:"learning_rate"`
	EvalEverySteps    int     `yaml:"eval_every_n_steps"`
	CheckpointEvery   int     `yaml:"checkpoint_every_n_steps"`
	CheckpointDir     string  `yaml:"checkpoint_dir"`
	Seed              int64   `yaml:"seed"`
	LogEverySteps     int     `yaml:"log_every_n_steps"`
	MaxGradNorm       float64 `yaml:"max_grad_norm"`
	WeightDecay       float64 `yaml:"weight_decay"`
	ValidationBatches int     `yaml:"validation_batches"`
}

// SimParams configures closed-loop rollout.
type SimParams struct {
	UseEgoGT           bool    `yaml:"use_ego_gt"`
	UseAgentsGT        bool    `yaml:"use_agents_gt"`
	DisableNewAgents   bool    `yaml:"disable_new_agents"`
	DistanceThFar      float64 `yaml:"distance_th_far"`
	DistanceThClose    float64 `yaml:"distance_th_close"`
	NumSimulationSteps int     `yaml:"num_simulation_steps"`
	StartFrameIndex    int     `yaml:"start_frame_index"`
	ShowInfo           bool    `yaml:"show_info"`
}

// Config is the root pipeline configuration.
type Config struct {
	RasterParams    RasterParams `yaml:"raster_params"`
	ModelParams     ModelParams  `yaml:"model_params"`
	TrainDataLoader LoaderParams `yaml:"train_data_loader"`
	ValDataLoader   LoaderParams `yaml:"val_data_loader"`
	TrainParams     TrainParams  `yaml:"train_params"`
	SimParams       SimParams    `yaml:"sim_params"`
}

// Default returns a config with workable defaults for every section.
// Load overlays the YAML file on top of these, so partial configs are safe.
func Default() *Config {
	return &Config{
		RasterParams: RasterParams{
			RasterSize:            [2]int{224, 224},
			PixelSize:             [2]float64{0.5, 0.5},
			EgoCenter:             [2]float64{0.25, 0.5},
			MapType:               MapTypeBoxDebug,
			FilterAgentsThreshold: 0.5,
		},
		ModelParams: ModelParams{
			HistoryNumFrames:    3,
			FutureNumFrames:     12,
			StepTime:            0.1,
			HiddenSize:          128,
			MaxAgents:           8,
			MaxAgentsDistance:   30,
			MaxMapDistance:      40,
			MaxMapElements:      32,
			PointsPerElement:    16,
			RenderEgoHistory:    true,
			PerturbProbability:  0,
			PerturbTransStdDev:  0.5,
			PerturbYawStdDevDeg: 2.0,
		},
		TrainDataLoader: LoaderParams{BatchSize: 32, Shuffle: true, NumWorkers: 4},
		ValDataLoader:   LoaderParams{BatchSize: 32, NumWorkers: 2},
		TrainParams: TrainParams{
			MaxNumSteps:       1000,
			LearningRate:      1e-3,
			EvalEverySteps:    200,
			CheckpointEvery:   500,
			CheckpointDir:     "checkpoints",
			LogEverySteps:     50,
			MaxGradNorm:       10,
			ValidationBatches: 8,
		},
		SimParams: SimParams{
			UseEgoGT:           false,
			UseAgentsGT:        true,
			DisableNewAgents:   false,
			DistanceThFar:      50,
			DistanceThClose:    30,
			NumSimulationSteps: 50,
			StartFrameIndex:    1,
		},
	}
}

// Load reads a YAML config file, overlaying it on Default and validating the
// result. The file must have a .yaml or .yml extension.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", cleanPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Validate checks parameter ranges across all sections.
func (c *Config) Validate() error {
	rp := c.RasterParams
	if rp.RasterSize[0] <= 0 || rp.RasterSize[1] <= 0 {
		return fmt.Errorf("raster_size must be positive, got %v", rp.RasterSize)
	}
	if rp.PixelSize[0] <= 0 || rp.PixelSize[1] <= 0 {
		return fmt.Errorf("pixel_size must be positive, got %v", rp.PixelSize)
	}
	if rp.EgoCenter[0] < 0 || rp.EgoCenter[0] > 1 || rp.EgoCenter[1] < 0 || rp.EgoCenter[1] > 1 {
		return fmt.Errorf("ego_center must be in [0,1], got %v", rp.EgoCenter)
	}
	switch rp.MapType {
	case MapTypeBoxDebug, MapTypeSemanticDebug, MapTypeSemantic:
	default:
		return fmt.Errorf("unknown map_type %q", rp.MapType)
	}
	if rp.FilterAgentsThreshold < 0 || rp.FilterAgentsThreshold > 1 {
		return fmt.Errorf("filter_agents_threshold must be in [0,1], got %f", rp.FilterAgentsThreshold)
	}

	mp := c.ModelParams
	if mp.HistoryNumFrames < 0 {
		return fmt.Errorf("history_num_frames must be non-negative, got %d", mp.HistoryNumFrames)
	}
	if mp.FutureNumFrames <= 0 {
		return fmt.Errorf("future_num_frames must be positive, got %d", mp.FutureNumFrames)
	}
	if mp.StepTime <= 0 {
		return fmt.Errorf("step_time must be positive, got %f", mp.StepTime)
	}
	if mp.MaxAgents <= 0 {
		return fmt.Errorf("max_agents must be positive, got %d", mp.MaxAgents)
	}
	if mp.PerturbProbability < 0 || mp.PerturbProbability > 1 {
		return fmt.Errorf("perturb_probability must be in [0,1], got %f", mp.PerturbProbability)
	}

	tp := c.TrainParams
	if tp.MaxNumSteps <= 0 {
		return fmt.Errorf("max_num_steps must be positive, got %d", tp.MaxNumSteps)
	}
	if tp.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", tp.LearningRate)
	}

	sp := c.SimParams
	if sp.NumSimulationSteps <= 0 {
		return fmt.Errorf("num_simulation_steps must be positive, got %d", sp.NumSimulationSteps)
	}
	if sp.StartFrameIndex < 0 {
		return fmt.Errorf("start_frame_index must be non-negative, got %d", sp.StartFrameIndex)
	}
	if sp.DistanceThClose > sp.DistanceThFar {
		return fmt.Errorf("distance_th_close (%f) must not exceed distance_th_far (%f)",
			sp.DistanceThClose, sp.DistanceThFar)
	}

	for _, loader := range []struct {
		name string
		lp   LoaderParams
	}{{"train_data_loader", c.TrainDataLoader}, {"val_data_loader", c.ValDataLoader}} {
		if loader.lp.BatchSize <= 0 {
			return fmt.Errorf("%s.batch_size must be positive, got %d", loader.name, loader.lp.BatchSize)
		}
		if loader.lp.NumWorkers < 0 {
			return fmt.Errorf("%s.num_workers must be non-negative, got %d", loader.name, loader.lp.NumWorkers)
		}
	}
	return nil
}
