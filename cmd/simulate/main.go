// Command simulate unrolls trained models closed-loop over recorded scenes,
// scores them against the log and renders the rollouts.
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

	"github.com/avstack-dev/drivekit/internal/metrics"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/pipeline"
	"github.com/avstack-dev/drivekit/internal/sim"
	"github.com/avstack-dev/drivekit/internal/version"
	"github.com/avstack-dev/drivekit/internal/viz"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "pipeline config file")
		dataRoot   = flag.String("data", "", "data folder (defaults to $DRIVEKIT_DATA_FOLDER)")
		ckptPath   = flag.String("checkpoint", "", "model checkpoint; empty unrolls ground truth")
		numScenes  = flag.Int("scenes", 4, "number of scenes to unroll")
		htmlPath   = flag.String("html", "rollouts.html", "rollout page output, empty to disable")
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

	ds, err := env.OpenDataset(cfg.ValDataLoader.Key)
	if err != nil {
		ds, err = env.OpenDataset(cfg.TrainDataLoader.Key)
	}
	if err != nil {
		log.Fatalf("open dataset: %v", err)
	}
	defer ds.Close()

	simulator := &sim.Simulator{Params: cfg.SimParams}
	if *ckptPath != "" {
		ego, err := loadEgoPolicy(env, *ckptPath)
		if err != nil {
			log.Fatalf("load checkpoint: %v", err)
		}
		simulator.Ego = ego
	} else if !cfg.SimParams.UseEgoGT {
		log.Printf("no checkpoint given, falling back to ground-truth ego")
		simulator.Params.UseEgoGT = true
	}
	if !simulator.Params.UseAgentsGT && simulator.Agents == nil {
		simulator.Agents = sim.ConstantVelocityAgents{}
	}

	total := int(ds.NumScenes())
	if *numScenes < total {
		total = *numScenes
	}

	var outs []*sim.SceneOutput
	var scores []metrics.SceneScore
	for i := 0; i < total; i++ {
		sc, err := sim.LoadScene(ds, i, cfg.RasterParams.FilterAgentsThreshold)
		if err != nil {
			log.Fatalf("load scene %d: %v", i, err)
		}
		out, err := simulator.Unroll(ctx, sc)
		if err != nil {
			log.Fatalf("unroll scene %d: %v", i, err)
		}
		score, err := metrics.ScoreScene(out)
		if err != nil {
			log.Fatalf("score scene %d: %v", i, err)
		}
		log.Printf("scene %d: ADE %.3fm FDE %.3fm yaw %.3frad collisions %d",
			i, score.ADE, score.FDE, score.YawError, len(score.Collisions))
		outs = append(outs, out)
		scores = append(scores, score)
	}

	agg := metrics.Summarise(scores)
	log.Printf("%d scenes: mean ADE %.3fm, mean FDE %.3fm (std %.3f), collision rate %.2f",
		agg.NumScenes, agg.MeanADE, agg.MeanFDE, agg.StdFDE, agg.CollisionRate)

	if *htmlPath != "" {
		if err := viz.WriteRolloutPage(*htmlPath, outs); err != nil {
			log.Fatalf("write rollout page: %v", err)
		}
		log.Printf("wrote %s", *htmlPath)
	}
}

// loadEgoPolicy restores a planner or polyline policy from a checkpoint and
// wraps it for the simulator.
func loadEgoPolicy(env *pipeline.Env, path string) (sim.EgoPolicy, error) {
	meta, err := model.ReadCheckpointMeta(path)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(0))
	switch meta.Kind {
	case "planner":
		planner, rast, err := env.NewPlanner(rng)
		if err != nil {
			return nil, err
		}
		if _, err := model.LoadCheckpoint(path, planner.Params()); err != nil {
			return nil, err
		}
		return sim.PlannerPolicy{Planner: planner, Rast: rast}, nil
	case "urban_policy":
		embed := meta.Shape["embed"]
		policy, vec := env.NewUrbanPolicy(rng, embed)
		if _, err := model.LoadCheckpoint(path, policy.Params()); err != nil {
			return nil, err
		}
		return sim.UrbanPolicy{Policy: policy, Vec: vec}, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint kind %q", meta.Kind)
	}
}
