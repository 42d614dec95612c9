// Command train-planner fits the raster behavioral-cloning planner on an
// ego dataset and records the run.
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

	ego, ds, err := env.EgoDataset(cfg.TrainDataLoader.Key, true)
	if err != nil {
		log.Fatalf("open training dataset: %v", err)
	}
	defer ds.Close()

	val := ego
	if key := cfg.ValDataLoader.Key; key != "" && key != cfg.TrainDataLoader.Key {
		v, vds, err := env.EgoDataset(key, true)
		if err != nil {
			log.Fatalf("open validation dataset: %v", err)
		}
		defer vds.Close()
		val = v
	}

	rng := rand.New(rand.NewSource(cfg.TrainParams.Seed))
	planner, rast, err := env.NewPlanner(rng)
	if err != nil {
		log.Fatalf("build planner: %v", err)
	}
	log.Printf("planner: %d input values (%d channels), %d future steps",
		planner.Net.InDim(), rast.NumChannels(), cfg.ModelParams.FutureNumFrames)

	var db *rundb.DB
	var runID string
	if *runDBPath != "" {
		db, err = rundb.Open(*runDBPath)
		if err != nil {
			log.Fatalf("open run database: %v", err)
		}
		defer db.Close()
		runID, err = db.CreateRun("train_planner", pipeline.ConfigYAML(*configPath))
		if err != nil {
			log.Fatalf("create run: %v", err)
		}
		log.Printf("run %s", runID)
	}

	tr := &train.Trainer{
		Cfg:   cfg,
		Model: train.PlannerModel{Planner: planner},
		Opt:   model.NewAdam(cfg.TrainParams.LearningRate),
		Train: ego,
		Val:   val,
		CheckpointFn: func(step int) error {
			path, err := env.CheckpointPath(step)
			if err != nil {
				return err
			}
			meta := model.Meta{Kind: "planner", Step: step, Shape: map[string]int{
				"in":     planner.Net.InDim(),
				"hidden": cfg.ModelParams.HiddenSize,
				"future": cfg.ModelParams.FutureNumFrames,
			}}
			if err := model.SaveCheckpoint(path, meta, planner.Params()); err != nil {
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
		log.Printf("wrote loss curve to %s", *curvePath)
	}
	log.Printf("done: %d steps, final train loss %.6f",
		report.Steps, report.TrainLosses[len(report.TrainLosses)-1])
}
