// Package datagen writes synthetic chunked datasets: a handful of scenes
// with the ego driving a gentle arc and a few agents tracking parallel
// lanes. Used by tests and the example commands when no recorded data is
// available.
package datagen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/avstack-dev/drivekit/internal/data"
)

// Params controls synthetic dataset generation.
type Params struct {
	NumScenes      int
	FramesPerScene int
	AgentsPerScene int
	StepTimeNs     int64
	EgoSpeed       float64 // m/s
	Curvature      float64 // 1/m, 0 for straight driving
	Seed           int64
}

// DefaultParams returns a small but non-trivial dataset shape.
func DefaultParams() Params {
	return Params{
		NumScenes:      4,
		FramesPerScene: 60,
		AgentsPerScene: 6,
		StepTimeNs:     1e8, // 10 Hz
		EgoSpeed:       8,
		Curvature:      0.005,
		Seed:           1,
	}
}

// Generate writes a synthetic dataset to path.
func Generate(path string, p Params) error {
	if p.NumScenes <= 0 || p.FramesPerScene <= 0 {
		return fmt.Errorf("datagen: need positive scene and frame counts, got %d/%d",
			p.NumScenes, p.FramesPerScene)
	}
	w, err := data.NewWriter(path, 0)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(p.Seed))

	var frameIdx, agentIdx int64
	dt := float64(p.StepTimeNs) / 1e9

	for si := 0; si < p.NumScenes; si++ {
		start := frameIdx
		startNs := int64(si) * int64(p.FramesPerScene) * p.StepTimeNs

		// per-scene layout: ego starts at a random offset, agents hold
		// lateral lanes around it with small speed differences
		egoX := rng.Float64() * 50
		egoY := rng.Float64() * 50
		egoYaw := rng.Float64() * 2 * math.Pi
		type agentTrack struct {
			id      int64
			lateral float64
			ahead   float64
			speed   float64
		}
		tracks := make([]agentTrack, p.AgentsPerScene)
		for i := range tracks {
			tracks[i] = agentTrack{
				id:      int64(si*1000 + i + 1),
				lateral: (rng.Float64() - 0.5) * 12,
				ahead:   5 + rng.Float64()*25,
				speed:   p.EgoSpeed * (0.7 + rng.Float64()*0.6),
			}
		}

		x, y, yaw := egoX, egoY, egoYaw
		for fi := 0; fi < p.FramesPerScene; fi++ {
			ts := startNs + int64(fi)*p.StepTimeNs
			aStart := agentIdx

			for _, tr := range tracks {
				dist := tr.ahead + (tr.speed-p.EgoSpeed)*dt*float64(fi)
				c, s := math.Cos(yaw), math.Sin(yaw)
				ax := x + c*dist - s*tr.lateral
				ay := y + s*dist + c*tr.lateral
				if err := w.AppendAgent(data.Agent{
					CX: ax, CY: ay,
					ExtentL: 4.4, ExtentW: 1.9,
					Yaw: yaw,
					VX:  c * tr.speed, VY: s * tr.speed,
					TrackID:     tr.id,
					Label:       data.LabelCar,
					Probability: 1,
				}); err != nil {
					return err
				}
				agentIdx++
			}

			if err := w.AppendFrame(data.Frame{
				TimestampNs:   ts,
				AgentInterval: [2]int64{aStart, agentIdx},
				EgoX:          x, EgoY: y, EgoYaw: yaw,
			}); err != nil {
				return err
			}
			frameIdx++

			// advance the ego along its arc
			x += math.Cos(yaw) * p.EgoSpeed * dt
			y += math.Sin(yaw) * p.EgoSpeed * dt
			yaw += p.Curvature * p.EgoSpeed * dt
		}

		if err := w.AppendScene(data.Scene{
			FrameInterval: [2]int64{start, frameIdx},
			Host:          fmt.Sprintf("host-%03d", si),
			StartTimeNs:   startNs,
			EndTimeNs:     startNs + int64(p.FramesPerScene)*p.StepTimeNs,
		}); err != nil {
			return err
		}
	}
	return w.Close()
}
