package geometry

import "math"

// Box is an oriented bounding box in world coordinates. Length runs along the
// heading (Yaw) axis, Width across it.
type Box struct {
	CX     float64
	CY     float64
	Yaw    float64
	Length float64
	Width  float64
}

// Corners returns the four box corners in counter-clockwise order.
func (b Box) Corners() [4][2]float64 {
	c, s := math.Cos(b.Yaw), math.Sin(b.Yaw)
	hl, hw := b.Length/2, b.Width/2

	local := [4][2]float64{
		{hl, hw},
		{-hl, hw},
		{-hl, -hw},
		{hl, -hw},
	}
	var out [4][2]float64
	for i, p := range local {
		out[i] = [2]float64{
			b.CX + c*p[0] - s*p[1],
			b.CY + s*p[0] + c*p[1],
		}
	}
	return out
}

// Intersects reports whether two oriented boxes overlap, using the
// separating-axis test over the four unique edge normals.
func (b Box) Intersects(o Box) bool {
	ca, cb := b.Corners(), o.Corners()
	axes := [4][2]float64{
		{math.Cos(b.Yaw), math.Sin(b.Yaw)},
		{-math.Sin(b.Yaw), math.Cos(b.Yaw)},
		{math.Cos(o.Yaw), math.Sin(o.Yaw)},
		{-math.Sin(o.Yaw), math.Cos(o.Yaw)},
	}
	for _, ax := range axes {
		minA, maxA := project(ca, ax)
		minB, maxB := project(cb, ax)
		if maxA < minB || maxB < minA {
			return false
		}
	}
	return true
}

func project(corners [4][2]float64, axis [2]float64) (min, max float64) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, c := range corners {
		d := c[0]*axis[0] + c[1]*axis[1]
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
