// Command visualise renders dataset frames as interactive HTML charts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/avstack-dev/drivekit/internal/pipeline"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/viz"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "pipeline config file")
		dataRoot   = flag.String("data", "", "data folder (defaults to $DRIVEKIT_DATA_FOLDER)")
		sceneIdx   = flag.Int64("scene", 0, "scene index")
		frameIdx   = flag.Int("frame", 0, "frame index within the scene")
		outPath    = flag.String("out", "frame.html", "output HTML file")
	)
	flag.Parse()

	env, err := pipeline.Setup(*configPath, *dataRoot)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	cfg := env.Cfg

	key := cfg.TrainDataLoader.Key
	if key == "" {
		key = cfg.ValDataLoader.Key
	}
	ds, err := env.OpenDataset(key)
	if err != nil {
		log.Fatalf("open dataset: %v", err)
	}
	defer ds.Close()

	rec, err := ds.Scene(*sceneIdx)
	if err != nil {
		log.Fatalf("scene %d: %v", *sceneIdx, err)
	}
	frames, err := ds.SceneFrames(rec)
	if err != nil {
		log.Fatalf("scene frames: %v", err)
	}
	if *frameIdx < 0 || *frameIdx >= len(frames) {
		log.Fatalf("frame %d out of range, scene has %d frames", *frameIdx, len(frames))
	}
	agents, err := ds.FrameAgents(frames[*frameIdx])
	if err != nil {
		log.Fatalf("frame agents: %v", err)
	}
	snap := scene.FromFrame(frames[*frameIdx], agents, cfg.RasterParams.FilterAgentsThreshold)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	title := fmt.Sprintf("scene %d frame %d", *sceneIdx, *frameIdx)
	if err := viz.RenderSnapshot(f, snap, env.SM, title); err != nil {
		log.Fatalf("render: %v", err)
	}
	log.Printf("wrote %s (%d agents)", *outPath, len(snap.Agents))
}
