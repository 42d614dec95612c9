// Package mapapi provides a minimal semantic map: lane polylines and
// crosswalk polygons loaded from a JSON fixture, with radius queries used by
// the rasterizer and vectorizer.
package mapapi

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Lane is a drivable lane described by its centerline and boundaries.
// Polylines are ordered along the driving direction.
type Lane struct {
	ID         int64        `json:"id"`
	Centerline [][2]float64 `json:"centerline"`
	LeftBound  [][2]float64 `json:"left_bound,omitempty"`
	RightBound [][2]float64 `json:"right_bound,omitempty"`
	// TLIDs lists traffic lights controlling this lane, if any.
	TLIDs []int64 `json:"tl_ids,omitempty"`
}

// Crosswalk is a pedestrian crossing polygon.
type Crosswalk struct {
	ID      int64        `json:"id"`
	Polygon [][2]float64 `json:"polygon"`
}

// Map is an in-memory semantic map.
type Map struct {
	Lanes      []Lane      `json:"lanes"`
	Crosswalks []Crosswalk `json:"crosswalks"`
}

// Load reads a semantic map JSON file.
func Load(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read semantic map: %w", err)
	}
	var m Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse semantic map %s: %w", path, err)
	}
	for i, lane := range m.Lanes {
		if len(lane.Centerline) < 2 {
			return nil, fmt.Errorf("lane %d (index %d) has %d centerline points, need at least 2",
				lane.ID, i, len(lane.Centerline))
		}
	}
	for i, cw := range m.Crosswalks {
		if len(cw.Polygon) < 3 {
			return nil, fmt.Errorf("crosswalk %d (index %d) has %d polygon points, need at least 3",
				cw.ID, i, len(cw.Polygon))
		}
	}
	return &m, nil
}

func polylineWithinRadius(pts [][2]float64, cx, cy, radius float64) bool {
	r2 := radius * radius
	for _, p := range pts {
		dx, dy := p[0]-cx, p[1]-cy
		if dx*dx+dy*dy <= r2 {
			return true
		}
	}
	return false
}

// LanesWithin returns lanes with any centerline point inside radius of (cx, cy).
func (m *Map) LanesWithin(cx, cy, radius float64) []Lane {
	var out []Lane
	for _, lane := range m.Lanes {
		if polylineWithinRadius(lane.Centerline, cx, cy, radius) {
			out = append(out, lane)
		}
	}
	return out
}

// CrosswalksWithin returns crosswalks with any polygon point inside radius of (cx, cy).
func (m *Map) CrosswalksWithin(cx, cy, radius float64) []Crosswalk {
	var out []Crosswalk
	for _, cw := range m.Crosswalks {
		if polylineWithinRadius(cw.Polygon, cx, cy, radius) {
			out = append(out, cw)
		}
	}
	return out
}

// NearestLane returns the lane whose centerline passes closest to (cx, cy)
// along with the distance. ok is false when the map has no lanes.
func (m *Map) NearestLane(cx, cy float64) (lane Lane, dist float64, ok bool) {
	best := math.Inf(1)
	for _, l := range m.Lanes {
		for i := 0; i+1 < len(l.Centerline); i++ {
			d := pointSegmentDistance(cx, cy, l.Centerline[i], l.Centerline[i+1])
			if d < best {
				best = d
				lane = l
				ok = true
			}
		}
	}
	return lane, best, ok
}

func pointSegmentDistance(px, py float64, a, b [2]float64) float64 {
	abx, aby := b[0]-a[0], b[1]-a[1]
	apx, apy := px-a[0], py-a[1]
	ab2 := abx*abx + aby*aby
	t := 0.0
	if ab2 > 0 {
		t = (apx*abx + apy*aby) / ab2
		t = math.Max(0, math.Min(1, t))
	}
	dx := px - (a[0] + t*abx)
	dy := py - (a[1] + t*aby)
	return math.Hypot(dx, dy)
}

// ResamplePolyline returns n points evenly spaced by arc length along pts.
// With fewer than 2 input points the input is returned unchanged.
func ResamplePolyline(pts [][2]float64, n int) [][2]float64 {
	if len(pts) < 2 || n < 2 {
		return pts
	}
	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		dx := pts[i][0] - pts[i-1][0]
		dy := pts[i][1] - pts[i-1][1]
		cum[i] = cum[i-1] + math.Hypot(dx, dy)
	}
	total := cum[len(cum)-1]
	out := make([][2]float64, n)
	seg := 0
	for i := 0; i < n; i++ {
		target := total * float64(i) / float64(n-1)
		for seg+1 < len(cum)-1 && cum[seg+1] < target {
			seg++
		}
		span := cum[seg+1] - cum[seg]
		t := 0.0
		if span > 0 {
			t = (target - cum[seg]) / span
		}
		out[i] = [2]float64{
			pts[seg][0] + t*(pts[seg+1][0]-pts[seg][0]),
			pts[seg][1] + t*(pts[seg+1][1]-pts[seg][1]),
		}
	}
	return out
}
