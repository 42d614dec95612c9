package raster

import "math"

// fillPolygon rasterizes a filled polygon into one channel using even-odd
// scanline filling. Coordinates are in pixels.
func fillPolygon(ch []float32, w, h int, pts [][2]float64, value float32) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	y0 := int(math.Max(0, math.Floor(minY)))
	y1 := int(math.Min(float64(h-1), math.Ceil(maxY)))

	for y := y0; y <= y1; y++ {
		cy := float64(y) + 0.5
		var xs []float64
		for i := 0; i < len(pts); i++ {
			a := pts[i]
			b := pts[(i+1)%len(pts)]
			if (a[1] <= cy && b[1] > cy) || (b[1] <= cy && a[1] > cy) {
				t := (cy - a[1]) / (b[1] - a[1])
				xs = append(xs, a[0]+t*(b[0]-a[0]))
			}
		}
		if len(xs) < 2 {
			continue
		}
		// insertion sort; crossing counts are tiny
		for i := 1; i < len(xs); i++ {
			for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
				xs[j], xs[j-1] = xs[j-1], xs[j]
			}
		}
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Max(0, math.Ceil(xs[i]-0.5)))
			x1 := int(math.Min(float64(w-1), math.Floor(xs[i+1]-0.5)))
			for x := x0; x <= x1; x++ {
				ch[y*w+x] = value
			}
		}
	}
}

// drawPolyline rasterizes a polyline into one channel with single-pixel
// strokes using DDA stepping.
func drawPolyline(ch []float32, w, h int, pts [][2]float64, value float32) {
	for i := 0; i+1 < len(pts); i++ {
		drawSegment(ch, w, h, pts[i], pts[i+1], value)
	}
}

func drawSegment(ch []float32, w, h int, a, b [2]float64, value float32) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	steps := int(math.Max(math.Abs(dx), math.Abs(dy))) + 1
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		x := int(math.Round(a[0] + t*dx))
		y := int(math.Round(a[1] + t*dy))
		if x >= 0 && x < w && y >= 0 && y < h {
			ch[y*w+x] = value
		}
	}
}
