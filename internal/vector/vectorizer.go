// Package vector converts scene history and map elements into fixed-shape
// point-set features for polyline-based policies.
package vector

import (
	"math"
	"sort"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/mapapi"
	"github.com/avstack-dev/drivekit/internal/scene"
)

// Agents below these extents are discarded: parked debris, noise returns and
// partial detections are not useful polyline context.
const (
	MinAgentLength = 3.0 // meters
	MinAgentWidth  = 1.0 // meters
)

// PointDim is the per-point feature width: x, y, yaw, availability.
const PointDim = 4

// Point is one polyline vertex in the ego frame.
type Point struct {
	X     float64
	Y     float64
	Yaw   float64
	Avail bool
}

// Features is the fixed-shape vectorized view of one sample. Slices always
// have their configured lengths; masks mark which entries carry data.
type Features struct {
	// Ego history polyline, current first, length historySteps.
	Ego []Point
	// Agents holds MaxAgents polylines of historySteps points each.
	Agents    [][]Point
	AgentMask []bool
	// Map holds MaxMapElements polylines of PointsPerElement points each.
	Map     [][]Point
	MapMask []bool
}

// NumPolylines returns the total polyline count including the ego polyline.
func (f *Features) NumPolylines() int { return 1 + len(f.Agents) + len(f.Map) }

// Vectorizer produces Features from snapshot history and the semantic map.
// The map may be nil, in which case map polylines stay masked out.
type Vectorizer struct {
	maxAgents        int
	maxAgentDistance float64
	maxMapDistance   float64
	maxMapElements   int
	pointsPerElement int
	historySteps     int
	sm               *mapapi.Map
}

// New builds a vectorizer from model params.
func New(mp config.ModelParams, sm *mapapi.Map) *Vectorizer {
	return &Vectorizer{
		maxAgents:        mp.MaxAgents,
		maxAgentDistance: mp.MaxAgentsDistance,
		maxMapDistance:   mp.MaxMapDistance,
		maxMapElements:   mp.MaxMapElements,
		pointsPerElement: mp.PointsPerElement,
		historySteps:     mp.HistoryNumFrames + 1,
		sm:               sm,
	}
}

// HistorySteps returns the number of history points per agent polyline.
func (v *Vectorizer) HistorySteps() int { return v.historySteps }

// MaxAgents returns the agent polyline capacity.
func (v *Vectorizer) MaxAgents() int { return v.maxAgents }

// MaxMapElements returns the map polyline capacity.
func (v *Vectorizer) MaxMapElements() int { return v.maxMapElements }

// PointsPerElement returns the point count per map polyline.
func (v *Vectorizer) PointsPerElement() int { return v.pointsPerElement }

// FeatureDim returns the length of the Flatten output for this shape.
func (v *Vectorizer) FeatureDim() int {
	return PointDim * (v.historySteps*(1+v.maxAgents) + v.maxMapElements*v.pointsPerElement)
}

// Vectorize builds features for history[0] as the current frame. Agents are
// matched across history by track ID; steps where a track is absent yield
// unavailable points.
func (v *Vectorizer) Vectorize(history []scene.Snapshot) *Features {
	f := &Features{
		Ego:       make([]Point, v.historySteps),
		Agents:    make([][]Point, v.maxAgents),
		AgentMask: make([]bool, v.maxAgents),
		Map:       make([][]Point, v.maxMapElements),
		MapMask:   make([]bool, v.maxMapElements),
	}
	for i := range f.Agents {
		f.Agents[i] = make([]Point, v.historySteps)
	}
	for i := range f.Map {
		f.Map[i] = make([]Point, v.pointsPerElement)
	}
	if len(history) == 0 {
		return f
	}

	cur := history[0]
	egoFromWorld := geometry.FromPose(cur.Ego).Inverse()

	// ego history
	for step := 0; step < v.historySteps && step < len(history); step++ {
		pose := history[step].Ego
		x, y := egoFromWorld.Apply(pose.X, pose.Y)
		f.Ego[step] = Point{X: x, Y: y, Yaw: geometry.YawDiff(pose.Yaw, cur.Ego.Yaw), Avail: true}
	}

	// agents: pick the closest valid tracks in the current frame
	type candidate struct {
		state scene.AgentState
		dist  float64
	}
	var cands []candidate
	for _, a := range cur.Agents {
		if a.Length < MinAgentLength || a.Width < MinAgentWidth {
			continue
		}
		d := math.Hypot(a.CX-cur.Ego.X, a.CY-cur.Ego.Y)
		if d > v.maxAgentDistance {
			continue
		}
		cands = append(cands, candidate{state: a, dist: d})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > v.maxAgents {
		cands = cands[:v.maxAgents]
	}

	for slot, c := range cands {
		f.AgentMask[slot] = true
		for step := 0; step < v.historySteps && step < len(history); step++ {
			st, ok := history[step].FindAgent(c.state.TrackID)
			if !ok {
				continue
			}
			x, y := egoFromWorld.Apply(st.CX, st.CY)
			f.Agents[slot][step] = Point{
				X:     x,
				Y:     y,
				Yaw:   geometry.YawDiff(st.Yaw, cur.Ego.Yaw),
				Avail: true,
			}
		}
	}

	// map elements
	if v.sm != nil {
		lanes := v.sm.LanesWithin(cur.Ego.X, cur.Ego.Y, v.maxMapDistance)
		if len(lanes) > v.maxMapElements {
			lanes = lanes[:v.maxMapElements]
		}
		for slot, lane := range lanes {
			f.MapMask[slot] = true
			pts := mapapi.ResamplePolyline(lane.Centerline, v.pointsPerElement)
			for i := 0; i < v.pointsPerElement && i < len(pts); i++ {
				x, y := egoFromWorld.Apply(pts[i][0], pts[i][1])
				f.Map[slot][i] = Point{X: x, Y: y, Avail: true}
			}
		}
	}
	return f
}

// Flatten lays features out as a flat vector: ego polyline first, then agent
// polylines, then map polylines, PointDim values per point. Unavailable
// points contribute zeros.
func (f *Features) Flatten() []float64 {
	put := func(dst []float64, p Point) {
		dst[0] = p.X
		dst[1] = p.Y
		dst[2] = p.Yaw
		if p.Avail {
			dst[3] = 1
		}
	}
	total := len(f.Ego)
	for _, pl := range f.Agents {
		total += len(pl)
	}
	for _, pl := range f.Map {
		total += len(pl)
	}
	out := make([]float64, total*PointDim)
	off := 0
	for _, p := range f.Ego {
		put(out[off:off+PointDim], p)
		off += PointDim
	}
	for _, pl := range f.Agents {
		for _, p := range pl {
			put(out[off:off+PointDim], p)
			off += PointDim
		}
	}
	for _, pl := range f.Map {
		for _, p := range pl {
			put(out[off:off+PointDim], p)
			off += PointDim
		}
	}
	return out
}
