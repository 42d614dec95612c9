// Command train-rl optimizes a Gaussian driving policy with PPO over
// recorded scenes replayed as environments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/pipeline"
	"github.com/avstack-dev/drivekit/internal/rl"
	"github.com/avstack-dev/drivekit/internal/rundb"
	"github.com/avstack-dev/drivekit/internal/sim"
	"github.com/avstack-dev/drivekit/internal/vector"
	"github.com/avstack-dev/drivekit/internal/version"
	"github.com/avstack-dev/drivekit/internal/viz"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "pipeline config file")
		dataRoot   = flag.String("data", "", "data folder (defaults to $DRIVEKIT_DATA_FOLDER)")
		runDBPath  = flag.String("run-db", "runs.db", "run tracking database, empty to disable")
		numEnvs    = flag.Int("envs", 4, "parallel environments")
		updates    = flag.Int("updates", 50, "PPO updates")
		horizon    = flag.Int("horizon", 0, "episode length, 0 uses num_simulation_steps")
		curvePath  = flag.String("reward-curve", "", "write a reward curve PNG after training")
		ckptOut    = flag.String("checkpoint-out", "", "save the final policy checkpoint here")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Print(version.String())

	env, err := pipeline.Setup(*configPath, *dataRoot)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	cfg := env.Cfg

	ds, err := env.OpenDataset(cfg.TrainDataLoader.Key)
	if err != nil {
		log.Fatalf("open dataset: %v", err)
	}
	defer ds.Close()

	episodeLen := *horizon
	if episodeLen <= 0 {
		episodeLen = cfg.SimParams.NumSimulationSteps
	}

	vec := vector.New(cfg.ModelParams, env.SM)
	envs, err := buildEnvs(ds, vec, rl.DefaultRewardParams(), *numEnvs,
		cfg.SimParams.StartFrameIndex, episodeLen, cfg.RasterParams.FilterAgentsThreshold)
	if err != nil {
		log.Fatalf("build envs: %v", err)
	}
	vecEnv, err := rl.NewVecEnv(envs)
	if err != nil {
		log.Fatalf("build vec env: %v", err)
	}

	pp := rl.DefaultPPOParams()
	pp.Updates = *updates
	pp.Seed = cfg.TrainParams.Seed

	rng := rand.New(rand.NewSource(pp.Seed))
	policy := model.NewGaussianPolicy(rng, vecEnv.ObsDim(), cfg.ModelParams.HiddenSize, vecEnv.ActDim())
	value := model.NewValueNet(rng, vecEnv.ObsDim(), cfg.ModelParams.HiddenSize)
	log.Printf("ppo: %d envs, obs %d, horizon %d, %d updates",
		vecEnv.Num(), vecEnv.ObsDim(), episodeLen, pp.Updates)

	var db *rundb.DB
	var runID string
	if *runDBPath != "" {
		db, err = rundb.Open(*runDBPath)
		if err != nil {
			log.Fatalf("open run database: %v", err)
		}
		defer db.Close()
		runID, err = db.CreateRun("train_rl", pipeline.ConfigYAML(*configPath))
		if err != nil {
			log.Fatalf("create run: %v", err)
		}
		log.Printf("run %s", runID)
	}

	ppo := rl.NewPPO(pp, policy, value, vecEnv)
	stats, err := ppo.Run(ctx)
	if err != nil {
		if db != nil {
			_ = db.FinishRun(runID, rundb.StatusFailed)
		}
		log.Fatalf("ppo: %v", err)
	}

	if db != nil {
		for _, st := range stats {
			step := int64(st.Update)
			if err := db.LogMetric(runID, step, "mean_reward", st.MeanReward); err != nil {
				log.Fatalf("log metric: %v", err)
			}
			if err := db.LogMetric(runID, step, "value_loss", st.ValueLoss); err != nil {
				log.Fatalf("log metric: %v", err)
			}
		}
		if err := db.FinishRun(runID, rundb.StatusFinished); err != nil {
			log.Fatalf("finish run: %v", err)
		}
	}
	if *ckptOut != "" {
		meta := model.Meta{Kind: "ppo_policy", Step: pp.Updates, Shape: map[string]int{
			"obs":    vecEnv.ObsDim(),
			"hidden": cfg.ModelParams.HiddenSize,
			"act":    vecEnv.ActDim(),
		}}
		if err := model.SaveCheckpoint(*ckptOut, meta, policy.Params()); err != nil {
			log.Fatalf("save checkpoint: %v", err)
		}
		log.Printf("wrote %s", *ckptOut)
	}
	if *curvePath != "" {
		if err := viz.SaveRewardCurve(*curvePath, stats); err != nil {
			log.Fatalf("save reward curve: %v", err)
		}
	}
	last := stats[len(stats)-1]
	log.Printf("done: mean reward %.4f after %d updates", last.MeanReward, last.Update)
}

// buildEnvs replays dataset scenes round-robin as n parallel environments.
func buildEnvs(ds *data.ChunkedDataset, vec *vector.Vectorizer, reward rl.RewardParams, n, startFrame, horizon int, threshold float64) ([]rl.Env, error) {
	numScenes := int(ds.NumScenes())
	if numScenes == 0 {
		return nil, fmt.Errorf("dataset has no scenes")
	}
	envs := make([]rl.Env, 0, n)
	for i := 0; i < n; i++ {
		sc, err := sim.LoadScene(ds, i%numScenes, threshold)
		if err != nil {
			return nil, fmt.Errorf("load scene %d: %w", i%numScenes, err)
		}
		drive, err := rl.NewDriveEnv(sc, vec, reward, startFrame, horizon)
		if err != nil {
			return nil, fmt.Errorf("build env %d: %w", i, err)
		}
		envs = append(envs, drive)
	}
	return envs, nil
}
