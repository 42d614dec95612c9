package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFromPoseApply(t *testing.T) {
	// agent at (10, 5) facing +Y: agent-frame +X maps to world +Y
	tr := FromPose(Pose{X: 10, Y: 5, Yaw: math.Pi / 2})

	x, y := tr.Apply(1, 0)
	if !almostEqual(x, 10) || !almostEqual(y, 6) {
		t.Fatalf("expected (10,6), got (%v,%v)", x, y)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	tr := FromPose(Pose{X: -3, Y: 7, Yaw: 0.8})
	inv := tr.Inverse()

	x, y := tr.Apply(2.5, -1.25)
	bx, by := inv.Apply(x, y)
	if !almostEqual(bx, 2.5) || !almostEqual(by, -1.25) {
		t.Fatalf("round trip failed: got (%v,%v)", bx, by)
	}
}

func TestComposeOrder(t *testing.T) {
	// translate then rotate vs rotate then translate must differ
	rot := FromPose(Pose{Yaw: math.Pi / 2})
	trans := FromPose(Pose{X: 1})

	x1, y1 := rot.Compose(trans).Apply(0, 0) // rotate(translate(p))
	if !almostEqual(x1, 0) || !almostEqual(y1, 1) {
		t.Fatalf("rot∘trans origin: got (%v,%v)", x1, y1)
	}
	x2, y2 := trans.Compose(rot).Apply(0, 0)
	if !almostEqual(x2, 1) || !almostEqual(y2, 0) {
		t.Fatalf("trans∘rot origin: got (%v,%v)", x2, y2)
	}
}

func TestWrapYaw(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi, math.Pi},
		{-math.Pi / 2, -math.Pi / 2},
		{2 * math.Pi, 0},
	}
	for _, c := range cases {
		if got := WrapYaw(c.in); !almostEqual(got, c.want) {
			t.Errorf("WrapYaw(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestYawExtraction(t *testing.T) {
	for _, yaw := range []float64{0, 0.3, -1.2, 3.0} {
		tr := FromPose(Pose{X: 5, Y: -2, Yaw: yaw})
		if got := tr.Yaw(); !almostEqual(WrapYaw(got-yaw), 0) {
			t.Errorf("Yaw() = %v, want %v", got, yaw)
		}
	}
}

func TestBoxCornersAxisAligned(t *testing.T) {
	b := Box{CX: 0, CY: 0, Yaw: 0, Length: 4, Width: 2}
	corners := b.Corners()

	want := [4][2]float64{{2, 1}, {-2, 1}, {-2, -1}, {2, -1}}
	for i := range want {
		if !almostEqual(corners[i][0], want[i][0]) || !almostEqual(corners[i][1], want[i][1]) {
			t.Fatalf("corner %d = %v, want %v", i, corners[i], want[i])
		}
	}
}

func TestBoxIntersects(t *testing.T) {
	a := Box{CX: 0, CY: 0, Yaw: 0, Length: 4, Width: 2}

	if !a.Intersects(Box{CX: 3, CY: 0, Yaw: 0, Length: 4, Width: 2}) {
		t.Error("overlapping boxes reported as separate")
	}
	if a.Intersects(Box{CX: 10, CY: 0, Yaw: 0, Length: 4, Width: 2}) {
		t.Error("distant boxes reported as overlapping")
	}
	// rotated box whose axis-aligned bounds overlap but body does not
	if a.Intersects(Box{CX: 3.8, CY: 2.6, Yaw: math.Pi / 4, Length: 4, Width: 0.5}) {
		t.Error("SAT failed to separate rotated box")
	}
}
