// Command datagen writes a synthetic chunked dataset for local development
// and tests.
package main

import (
	"flag"
	"log"

	"github.com/avstack-dev/drivekit/internal/datagen"
)

func main() {
	var (
		out    = flag.String("out", "sample.chunked", "output dataset directory")
		scenes = flag.Int("scenes", 4, "number of scenes")
		frames = flag.Int("frames", 60, "frames per scene")
		agents = flag.Int("agents", 6, "agents per scene")
		seed   = flag.Int64("seed", 1, "random seed")
	)
	flag.Parse()

	p := datagen.DefaultParams()
	p.NumScenes = *scenes
	p.FramesPerScene = *frames
	p.AgentsPerScene = *agents
	p.Seed = *seed

	if err := datagen.Generate(*out, p); err != nil {
		log.Fatalf("generate dataset: %v", err)
	}
	log.Printf("wrote %d scenes (%d frames each) to %s", p.NumScenes, p.FramesPerScene, *out)
}
