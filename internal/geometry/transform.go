// Package geometry provides planar (SE2) transforms and oriented-box helpers
// shared by the rasterizer, vectorizer and simulator.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose is a planar pose in world coordinates.
// Yaw is measured counter-clockwise from the world X axis, in radians.
type Pose struct {
	X   float64
	Y   float64
	Yaw float64
}

// Translation returns the position component as a point.
func (p Pose) Translation() [2]float64 { return [2]float64{p.X, p.Y} }

// Transform is a 3x3 homogeneous planar transform.
type Transform struct {
	m *mat.Dense
}

// Identity returns the identity transform.
func Identity() *Transform {
	return &Transform{m: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})}
}

// FromPose builds the transform mapping agent-frame coordinates into the
// world frame: rotation by Yaw followed by translation to (X, Y).
func FromPose(p Pose) *Transform {
	c, s := math.Cos(p.Yaw), math.Sin(p.Yaw)
	return &Transform{m: mat.NewDense(3, 3, []float64{
		c, -s, p.X,
		s, c, p.Y,
		0, 0, 1,
	})}
}

// NewTransform wraps a raw 3x3 row-major matrix.
func NewTransform(data []float64) *Transform {
	if len(data) != 9 {
		panic("geometry: transform requires 9 elements")
	}
	return &Transform{m: mat.NewDense(3, 3, data)}
}

// Compose returns t∘u, the transform that applies u first and then t.
func (t *Transform) Compose(u *Transform) *Transform {
	var out mat.Dense
	out.Mul(t.m, u.m)
	return &Transform{m: &out}
}

// Inverse returns the inverse transform.
// Panics if the matrix is singular, which cannot happen for SE(2) transforms
// built through FromPose.
func (t *Transform) Inverse() *Transform {
	var inv mat.Dense
	if err := inv.Inverse(t.m); err != nil {
		panic("geometry: singular transform")
	}
	return &Transform{m: &inv}
}

// Apply maps a single point through the transform.
func (t *Transform) Apply(x, y float64) (float64, float64) {
	px := t.m.At(0, 0)*x + t.m.At(0, 1)*y + t.m.At(0, 2)
	py := t.m.At(1, 0)*x + t.m.At(1, 1)*y + t.m.At(1, 2)
	return px, py
}

// ApplyAll maps a point slice through the transform, returning a new slice.
func (t *Transform) ApplyAll(pts [][2]float64) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		x, y := t.Apply(p[0], p[1])
		out[i] = [2]float64{x, y}
	}
	return out
}

// RotateOnly maps a direction vector through the rotation part of the
// transform, ignoring translation.
func (t *Transform) RotateOnly(x, y float64) (float64, float64) {
	return t.m.At(0, 0)*x + t.m.At(0, 1)*y, t.m.At(1, 0)*x + t.m.At(1, 1)*y
}

// Yaw extracts the rotation angle of the transform.
func (t *Transform) Yaw() float64 {
	return math.Atan2(t.m.At(1, 0), t.m.At(0, 0))
}

// WrapYaw normalises an angle into (-pi, pi].
func WrapYaw(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// YawDiff returns the signed smallest difference a-b, wrapped into (-pi, pi].
func YawDiff(a, b float64) float64 {
	return WrapYaw(a - b)
}
