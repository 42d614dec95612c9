// Command export-scenarios filters recorded scenes down to interaction
// scenarios and writes a compressed pack plus a JSON sidecar.
package main

import (
	"flag"
	"log"

	"github.com/avstack-dev/drivekit/internal/pipeline"
	"github.com/avstack-dev/drivekit/internal/scenario"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "pipeline config file")
		dataRoot   = flag.String("data", "", "data folder (defaults to $DRIVEKIT_DATA_FOLDER)")
		outPath    = flag.String("out", "scenarios.bin.zst", "scenario pack output")
		infoPath   = flag.String("info", "scenarios.json", "JSON sidecar output, empty to skip")
		minAgents  = flag.Int("min-agents", 2, "minimum qualifying agents per scene")
		maxAgents  = flag.Int("max-agents", 8, "maximum qualifying agents per scene")
		numFrames  = flag.Int("frames", 0, "trajectory length cap, 0 for full scenes")
	)
	flag.Parse()

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

	p := scenario.DefaultParams()
	p.MinAgents = *minAgents
	p.MaxAgents = *maxAgents
	p.NumFrames = *numFrames
	p.MaxAgentDistance = cfg.ModelParams.MaxAgentsDistance
	p.StartFrame = cfg.SimParams.StartFrameIndex
	p.FilterAgentsThreshold = cfg.RasterParams.FilterAgentsThreshold

	scns, err := scenario.ExtractAll(ds, p)
	if err != nil {
		log.Fatalf("extract scenarios: %v", err)
	}
	log.Printf("%d of %d scenes qualified", len(scns), ds.NumScenes())

	if err := scenario.Write(*outPath, scns); err != nil {
		log.Fatalf("write pack: %v", err)
	}
	log.Printf("wrote %s", *outPath)

	if *infoPath != "" {
		if err := scenario.WriteInfo(*infoPath, scns); err != nil {
			log.Fatalf("write info: %v", err)
		}
		log.Printf("wrote %s", *infoPath)
	}
}
