package viz

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/avstack-dev/drivekit/internal/rl"
	"github.com/avstack-dev/drivekit/internal/train"
)

// SaveLossCurves writes a PNG with per-step training loss and the validation
// measurements overlaid.
func SaveLossCurves(path string, report *train.Report) error {
	if len(report.TrainLosses) == 0 {
		return fmt.Errorf("viz: empty training report")
	}

	p := plot.New()
	p.Title.Text = "Training Loss"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Loss"

	trainPts := make(plotter.XYs, len(report.TrainLosses))
	for i, l := range report.TrainLosses {
		trainPts[i] = plotter.XY{X: float64(i + 1), Y: l}
	}
	trainLine, err := plotter.NewLine(trainPts)
	if err != nil {
		return err
	}
	trainLine.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	trainLine.Width = vg.Points(1)
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if len(report.ValLosses) > 0 {
		valPts := make(plotter.XYs, len(report.ValLosses))
		for i, v := range report.ValLosses {
			valPts[i] = plotter.XY{X: float64(v.Step), Y: v.Loss}
		}
		valScatter, err := plotter.NewScatter(valPts)
		if err != nil {
			return err
		}
		valScatter.Color = color.RGBA{R: 220, G: 60, B: 60, A: 255}
		p.Add(valScatter)
		p.Legend.Add("validation", valScatter)
	}

	p.Legend.Top = true
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save loss curves: %w", err)
	}
	return nil
}

// SaveRewardCurve writes a PNG of the mean rollout reward per PPO update.
func SaveRewardCurve(path string, stats []rl.UpdateStats) error {
	if len(stats) == 0 {
		return fmt.Errorf("viz: no update stats")
	}

	p := plot.New()
	p.Title.Text = "Mean Rollout Reward"
	p.X.Label.Text = "Update"
	p.Y.Label.Text = "Reward"

	pts := make(plotter.XYs, len(stats))
	for i, s := range stats {
		pts[i] = plotter.XY{X: float64(s.Update), Y: s.MeanReward}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 60, G: 160, B: 90, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save reward curve: %w", err)
	}
	return nil
}
