// Package scene defines the in-memory view of a driving scene timestep shared
// by the rasterizer, vectorizer and simulator.
package scene

import (
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/geometry"
)

// AgentState is one road user at a single timestep.
type AgentState struct {
	TrackID int64
	CX      float64
	CY      float64
	Yaw     float64
	Length  float64
	Width   float64
	VX      float64
	VY      float64
	Label   uint8
}

// Snapshot is the full observable state at one timestep.
type Snapshot struct {
	TimestampNs int64
	Ego         geometry.Pose
	Agents      []AgentState
}

// Box returns the oriented bounding box of an agent.
func (a AgentState) Box() geometry.Box {
	return geometry.Box{CX: a.CX, CY: a.CY, Yaw: a.Yaw, Length: a.Length, Width: a.Width}
}

// EgoBox returns the ego bounding box using standard vehicle dimensions.
func (s Snapshot) EgoBox() geometry.Box {
	return geometry.Box{CX: s.Ego.X, CY: s.Ego.Y, Yaw: s.Ego.Yaw, Length: EgoLength, Width: EgoWidth}
}

// Ego vehicle dimensions in meters.
const (
	EgoLength = 4.87
	EgoWidth  = 1.85
)

// FromAgent converts a dataset agent record, dropping ones below the
// probability threshold.
func FromAgent(a data.Agent, threshold float64) (AgentState, bool) {
	if float64(a.Probability) < threshold {
		return AgentState{}, false
	}
	return AgentState{
		TrackID: a.TrackID,
		CX:      a.CX,
		CY:      a.CY,
		Yaw:     a.Yaw,
		Length:  a.ExtentL,
		Width:   a.ExtentW,
		VX:      a.VX,
		VY:      a.VY,
		Label:   a.Label,
	}, true
}

// FromFrame builds a snapshot from a frame and its agents, filtering agents
// by probability threshold.
func FromFrame(f data.Frame, agents []data.Agent, threshold float64) Snapshot {
	s := Snapshot{
		TimestampNs: f.TimestampNs,
		Ego:         geometry.Pose{X: f.EgoX, Y: f.EgoY, Yaw: f.EgoYaw},
	}
	for _, a := range agents {
		if st, ok := FromAgent(a, threshold); ok {
			s.Agents = append(s.Agents, st)
		}
	}
	return s
}

// FindAgent returns the agent with the given track ID, if present.
func (s Snapshot) FindAgent(trackID int64) (AgentState, bool) {
	for _, a := range s.Agents {
		if a.TrackID == trackID {
			return a, true
		}
	}
	return AgentState{}, false
}
