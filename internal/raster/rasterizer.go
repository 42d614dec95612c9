package raster

import (
	"fmt"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/mapapi"
	"github.com/avstack-dev/drivekit/internal/scene"
)

// Rasterizer renders a history of snapshots (current first, oldest last)
// into a CHW tensor centred on the current ego pose.
type Rasterizer interface {
	Rasterize(history []scene.Snapshot) (*Tensor, error)
	NumChannels() int
}

// BoxRasterizer draws agents and the ego as filled oriented boxes, one agent
// channel and one ego channel per history step.
type BoxRasterizer struct {
	rc      RenderContext
	history int // number of history steps including the current frame
}

// NewBoxRasterizer creates a box rasterizer keeping historySteps snapshots
// (the current frame plus historySteps-1 older ones).
func NewBoxRasterizer(rc RenderContext, historySteps int) *BoxRasterizer {
	if historySteps < 1 {
		historySteps = 1
	}
	return &BoxRasterizer{rc: rc, history: historySteps}
}

// NumChannels returns 2 channels (agents, ego) per history step.
func (r *BoxRasterizer) NumChannels() int { return 2 * r.history }

// Rasterize renders the snapshots. history[0] must be the current frame; the
// current ego pose defines the raster frame. Missing older snapshots leave
// their channels empty.
func (r *BoxRasterizer) Rasterize(history []scene.Snapshot) (*Tensor, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("rasterize: empty history")
	}
	out := NewTensor(r.NumChannels(), r.rc.Height, r.rc.Width)
	toPixels := r.rc.RasterFromWorld(history[0].Ego)

	for step := 0; step < r.history && step < len(history); step++ {
		snap := history[step]
		agentCh := out.Channel(2 * step)
		egoCh := out.Channel(2*step + 1)

		for _, a := range snap.Agents {
			corners := a.Box().Corners()
			pix := make([][2]float64, 4)
			for i, c := range corners {
				x, y := toPixels.Apply(c[0], c[1])
				pix[i] = [2]float64{x, y}
			}
			fillPolygon(agentCh, r.rc.Width, r.rc.Height, pix, 1)
		}

		corners := snap.EgoBox().Corners()
		pix := make([][2]float64, 4)
		for i, c := range corners {
			x, y := toPixels.Apply(c[0], c[1])
			pix[i] = [2]float64{x, y}
		}
		fillPolygon(egoCh, r.rc.Width, r.rc.Height, pix, 1)
	}
	return out, nil
}

// SemanticRasterizer draws lane centerlines, lane boundaries and crosswalks
// from the semantic map into three channels.
type SemanticRasterizer struct {
	rc RenderContext
	sm *mapapi.Map
}

// Semantic channel layout.
const (
	ChannelLaneCenter = iota
	ChannelLaneBound
	ChannelCrosswalk
	numSemanticChannels
)

// NewSemanticRasterizer creates a semantic map rasterizer.
func NewSemanticRasterizer(rc RenderContext, sm *mapapi.Map) *SemanticRasterizer {
	return &SemanticRasterizer{rc: rc, sm: sm}
}

// NumChannels returns the semantic channel count.
func (r *SemanticRasterizer) NumChannels() int { return numSemanticChannels }

// Rasterize renders map elements around the current ego pose. Only the
// current snapshot is consulted.
func (r *SemanticRasterizer) Rasterize(history []scene.Snapshot) (*Tensor, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("rasterize: empty history")
	}
	ego := history[0].Ego
	out := NewTensor(numSemanticChannels, r.rc.Height, r.rc.Width)
	toPixels := r.rc.RasterFromWorld(ego)
	radius := r.rc.VisibleRadius()

	for _, lane := range r.sm.LanesWithin(ego.X, ego.Y, radius) {
		drawPolyline(out.Channel(ChannelLaneCenter), r.rc.Width, r.rc.Height,
			toPixels.ApplyAll(lane.Centerline), 1)
		if len(lane.LeftBound) > 1 {
			drawPolyline(out.Channel(ChannelLaneBound), r.rc.Width, r.rc.Height,
				toPixels.ApplyAll(lane.LeftBound), 1)
		}
		if len(lane.RightBound) > 1 {
			drawPolyline(out.Channel(ChannelLaneBound), r.rc.Width, r.rc.Height,
				toPixels.ApplyAll(lane.RightBound), 1)
		}
	}
	for _, cw := range r.sm.CrosswalksWithin(ego.X, ego.Y, radius) {
		fillPolygon(out.Channel(ChannelCrosswalk), r.rc.Width, r.rc.Height,
			toPixels.ApplyAll(cw.Polygon), 1)
	}
	return out, nil
}

// HybridRasterizer stacks several rasterizers along the channel axis.
type HybridRasterizer struct {
	parts []Rasterizer
}

// NewHybridRasterizer composes rasterizers in order.
func NewHybridRasterizer(parts ...Rasterizer) *HybridRasterizer {
	return &HybridRasterizer{parts: parts}
}

// NumChannels sums the component channel counts.
func (r *HybridRasterizer) NumChannels() int {
	n := 0
	for _, p := range r.parts {
		n += p.NumChannels()
	}
	return n
}

// Rasterize renders each component and stacks the results.
func (r *HybridRasterizer) Rasterize(history []scene.Snapshot) (*Tensor, error) {
	tensors := make([]*Tensor, 0, len(r.parts))
	for _, p := range r.parts {
		t, err := p.Rasterize(history)
		if err != nil {
			return nil, err
		}
		tensors = append(tensors, t)
	}
	return Stack(tensors...)
}

// Build constructs the rasterizer selected by raster_params.map_type.
// Semantic map types require a non-nil map.
func Build(cfg *config.Config, sm *mapapi.Map) (Rasterizer, error) {
	rc := NewRenderContext(cfg.RasterParams)
	historySteps := cfg.ModelParams.HistoryNumFrames + 1

	switch cfg.RasterParams.MapType {
	case config.MapTypeBoxDebug:
		return NewBoxRasterizer(rc, historySteps), nil
	case config.MapTypeSemanticDebug, config.MapTypeSemantic:
		if sm == nil {
			return nil, fmt.Errorf("map_type %q requires a semantic map", cfg.RasterParams.MapType)
		}
		return NewHybridRasterizer(
			NewBoxRasterizer(rc, historySteps),
			NewSemanticRasterizer(rc, sm),
		), nil
	default:
		return nil, fmt.Errorf("unknown map_type %q", cfg.RasterParams.MapType)
	}
}
