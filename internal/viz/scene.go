// Package viz renders scenes and rollouts as self-contained ECharts HTML
// pages and training curves as PNG plots.
package viz

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/avstack-dev/drivekit/internal/mapapi"
	"github.com/avstack-dev/drivekit/internal/scene"
	"github.com/avstack-dev/drivekit/internal/sim"
)

// SnapshotChart draws one frame top-down: lane centerlines, agent boxes and
// the ego box, all in world coordinates.
func SnapshotChart(snap scene.Snapshot, sm *mapapi.Map, title string) *charts.Scatter {
	sc := charts.NewScatter()

	var pts []opts.ScatterData
	minX, minY := snap.Ego.X, snap.Ego.Y
	maxX, maxY := snap.Ego.X, snap.Ego.Y
	grow := func(x, y float64) {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}

	addBox := func(series *[]opts.ScatterData, b [4][2]float64) {
		for _, c := range b {
			grow(c[0], c[1])
			*series = append(*series, opts.ScatterData{Value: []interface{}{c[0], c[1]}})
		}
	}

	var agentPts []opts.ScatterData
	for _, a := range snap.Agents {
		addBox(&agentPts, a.Box().Corners())
	}
	var egoPts []opts.ScatterData
	addBox(&egoPts, snap.EgoBox().Corners())

	if sm != nil {
		radius := 0.5 * (maxX - minX + maxY - minY)
		if radius < 50 {
			radius = 50
		}
		for _, lane := range sm.LanesWithin(snap.Ego.X, snap.Ego.Y, radius) {
			for _, p := range lane.Centerline {
				grow(p[0], p[1])
				pts = append(pts, opts.ScatterData{Value: []interface{}{p[0], p[1]}})
			}
		}
	}

	pad := 5.0
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("agents=%d t=%dns", len(snap.Agents), snap.TimestampNs)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: minX - pad, Max: maxX + pad, Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: minY - pad, Max: maxY + pad, Name: "Y (m)"}),
	)

	if len(pts) > 0 {
		sc.AddSeries("lanes", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	}
	if len(agentPts) > 0 {
		sc.AddSeries("agents", agentPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}
	sc.AddSeries("ego", egoPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 7}))
	return sc
}

// RolloutChart draws the simulated ego path against the logged one, with the
// final agent positions for context.
func RolloutChart(out *sim.SceneOutput, title string) *charts.Line {
	line := charts.NewLine()

	var simPath, gtPath []opts.LineData
	for i := range out.Frames {
		simPath = append(simPath, opts.LineData{Value: []interface{}{out.Frames[i].Ego.X, out.Frames[i].Ego.Y}})
		gtPath = append(gtPath, opts.LineData{Value: []interface{}{out.GT[i].Ego.X, out.GT[i].Ego.Y}})
	}

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("scene %d, %d steps", out.SceneIndex, len(out.Steps))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.AddSeries("simulated", simPath)
	line.AddSeries("log", gtPath)

	if n := len(out.Frames); n > 0 {
		var agentPts []opts.ScatterData
		for _, a := range out.Frames[n-1].Agents {
			agentPts = append(agentPts, opts.ScatterData{Value: []interface{}{a.CX, a.CY}})
		}
		if len(agentPts) > 0 {
			scatter := charts.NewScatter()
			scatter.AddSeries("agents (final)", agentPts,
				charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
			line.Overlap(scatter)
		}
	}
	return line
}

// RenderSnapshot writes a single-frame chart as HTML.
func RenderSnapshot(w io.Writer, snap scene.Snapshot, sm *mapapi.Map, title string) error {
	return SnapshotChart(snap, sm, title).Render(w)
}

// WriteRolloutPage writes one HTML page holding a chart per rollout.
func WriteRolloutPage(path string, outs []*sim.SceneOutput) error {
	if len(outs) == 0 {
		return fmt.Errorf("viz: no rollouts to render")
	}
	page := components.NewPage()
	page.SetPageTitle("closed-loop rollouts")
	for _, out := range outs {
		page.AddCharts(RolloutChart(out, fmt.Sprintf("scene %d", out.SceneIndex)))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rollout page: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render rollout page: %w", err)
	}
	return nil
}
