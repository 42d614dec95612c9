// Command train-policy fits the polyline driving policy with optional
// trajectory perturbation for closed-loop robustness.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/pipeline"
	"github.com/avstack-dev/drivekit/internal/rundb"
	"github.com/avstack-dev/drivekit/internal/train"
	"github.com/avstack-dev/drivekit/internal/version"
	"github.com/avstack-dev/drivekit/internal/viz"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "pipeline config file")
		dataRoot   = flag.String("data", "", "data folder (defaults to $DRIVEKIT_DATA_FOLDER)")
		runDBPath  = flag.String("run-db", "runs.db", "run tracking database, empty to disable")
		curvePath  = flag.String("loss-curve", "", "write a loss curve PNG after training")
		embed      = flag.Int("embed", 64, "per-point encoder width")
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

	// vector features only; the policy never sees rasters
	ego, ds, err := env.EgoDataset(cfg.TrainDataLoader.Key, false)
	if err != nil {
		log.Fatalf("open training dataset: %v", err)
	}
	defer ds.Close()

	var trainSet train.Dataset = ego
	if cfg.ModelParams.PerturbProbability > 0 {
		trainSet = train.NewPerturbedDataset(ego, cfg.TrainParams.Seed+1)
		log.Printf("perturbation enabled: p=%.2f trans=%.2fm yaw=%.1fdeg",
			cfg.ModelParams.PerturbProbability,
			cfg.ModelParams.PerturbTransStdDev,
			cfg.ModelParams.PerturbYawStdDevDeg)
	}

	rng := rand.New(rand.NewSource(cfg.TrainParams.Seed))
	policy, vec := env.NewUrbanPolicy(rng, *embed)
	log.Printf("policy: %d polylines, embed %d, %d future steps",
		policy.NumPolylines(), *embed, cfg.ModelParams.FutureNumFrames)

	var db *rundb.DB
	var runID string
	if *runDBPath != "" {
		db, err = rundb.Open(*runDBPath)
		if err != nil {
			log.Fatalf("open run database: %v", err)
		}
		defer db.Close()
		runID, err = db.CreateRun("train_policy", pipeline.ConfigYAML(*configPath))
		if err != nil {
			log.Fatalf("create run: %v", err)
		}
		log.Printf("run %s", runID)
	}

	tr := &train.Trainer{
		Cfg:   cfg,
		Model: train.PolicyModel{UrbanPolicy: policy},
		Opt:   model.NewAdam(cfg.TrainParams.LearningRate),
		Train: trainSet,
		Val:   ego,
		CheckpointFn: func(step int) error {
			path, err := env.CheckpointPath(step)
			if err != nil {
				return err
			}
			meta := model.Meta{Kind: "urban_policy", Step: step, Shape: map[string]int{
				"embed":  *embed,
				"hidden": cfg.ModelParams.HiddenSize,
				"future": cfg.ModelParams.FutureNumFrames,
				"dim":    vec.FeatureDim(),
			}}
			if err := model.SaveCheckpoint(path, meta, policy.Params()); err != nil {
				return err
			}
			if db != nil {
				return db.RecordCheckpoint(runID, int64(step), path)
			}
			return nil
		},
	}

	report, err := tr.Run(ctx)
	if err != nil {
		if db != nil {
			_ = db.FinishRun(runID, rundb.StatusFailed)
		}
		log.Fatalf("training: %v", err)
	}

	if db != nil {
		for i, loss := range report.TrainLosses {
			if err := db.LogMetric(runID, int64(i+1), "train_loss", loss); err != nil {
				log.Fatalf("log metric: %v", err)
			}
		}
		for _, v := range report.ValLosses {
			if err := db.LogMetric(runID, int64(v.Step), "val_loss", v.Loss); err != nil {
				log.Fatalf("log metric: %v", err)
			}
		}
		if err := db.FinishRun(runID, rundb.StatusFinished); err != nil {
			log.Fatalf("finish run: %v", err)
		}
	}
	if *curvePath != "" {
		if err := viz.SaveLossCurves(*curvePath, report); err != nil {
			log.Fatalf("save loss curve: %v", err)
		}
	}
	log.Printf("done: %d steps, final train loss %.6f",
		report.Steps, report.TrainLosses[len(report.TrainLosses)-1])
}
