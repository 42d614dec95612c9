package sample

import (
	"fmt"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/raster"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/vector"
)

// AgentDataset yields one sample per (frame, agent) pair whose classifier
// probability clears the filter threshold. Samples are centred on the agent:
// the agent takes the ego channel and is removed from the agent channels.
type AgentDataset struct {
	ego *EgoDataset
	// index maps sample position to (frame, agent track)
	frames []int64
	tracks []int64
}

// NewAgentDataset scans the agent array once to build the sample index.
func NewAgentDataset(cfg *config.Config, ds *data.ChunkedDataset, rast raster.Rasterizer, vec *vector.Vectorizer) (*AgentDataset, error) {
	ego, err := NewEgoDataset(cfg, ds, rast, vec)
	if err != nil {
		return nil, err
	}
	a := &AgentDataset{ego: ego}

	threshold := cfg.RasterParams.FilterAgentsThreshold
	for fi := int64(0); fi < ds.NumFrames(); fi++ {
		f, err := ds.Frame(fi)
		if err != nil {
			return nil, fmt.Errorf("index frame %d: %w", fi, err)
		}
		agents, err := ds.FrameAgents(f)
		if err != nil {
			return nil, fmt.Errorf("index frame %d agents: %w", fi, err)
		}
		for _, ag := range agents {
			if float64(ag.Probability) >= threshold {
				a.frames = append(a.frames, fi)
				a.tracks = append(a.tracks, ag.TrackID)
			}
		}
	}
	return a, nil
}

// Len returns the number of agent samples.
func (a *AgentDataset) Len() int64 { return int64(len(a.frames)) }

// Get builds the agent-centred sample at index i.
func (a *AgentDataset) Get(i int64) (*Sample, error) {
	if i < 0 || i >= a.Len() {
		return nil, fmt.Errorf("agent sample index %d out of range [0,%d)", i, a.Len())
	}
	frameIdx, trackID := a.frames[i], a.tracks[i]
	e := a.ego
	mp := e.cfg.ModelParams
	sceneIdx := e.sceneOfFrame[frameIdx]
	bounds := e.scenes[sceneIdx].FrameInterval

	history, err := e.snapshots(frameIdx, bounds, mp.HistoryNumFrames)
	if err != nil {
		return nil, err
	}

	// recentre every snapshot on the selected agent
	recentred := make([]scene.Snapshot, 0, len(history))
	var center geometry.Pose
	for step, snap := range history {
		st, ok := snap.FindAgent(trackID)
		if !ok {
			if step == 0 {
				return nil, fmt.Errorf("track %d missing from its own frame %d", trackID, frameIdx)
			}
			break // history ends where the track appears
		}
		pose := geometry.Pose{X: st.CX, Y: st.CY, Yaw: st.Yaw}
		if step == 0 {
			center = pose
		}
		others := make([]scene.AgentState, 0, len(snap.Agents))
		for _, o := range snap.Agents {
			if o.TrackID != trackID {
				others = append(others, o)
			}
		}
		recentred = append(recentred, scene.Snapshot{
			TimestampNs: snap.TimestampNs,
			Ego:         pose,
			Agents:      others,
		})
	}

	target, avail, err := e.futureTargets(frameIdx, bounds, mp.FutureNumFrames, center, trackID)
	if err != nil {
		return nil, err
	}

	s := &Sample{
		SceneIndex:  sceneIdx,
		FrameIndex:  frameIdx,
		TrackID:     trackID,
		Centroid:    center,
		History:     recentred,
		Target:      target,
		TargetAvail: avail,
	}
	if e.rast != nil {
		if s.Raster, err = e.rast.Rasterize(recentred); err != nil {
			return nil, fmt.Errorf("rasterize agent sample %d: %w", i, err)
		}
	}
	if e.vec != nil {
		s.Vector = e.vec.Vectorize(recentred)
	}
	return s, nil
}
