package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/avstack-dev/drivekit/internal/vector"
)

// UrbanPolicy predicts ego trajectories from vectorized polylines: a shared
// per-point encoder, max-pooling per polyline, and an MLP head over the
// concatenated pooled embeddings.
type UrbanPolicy struct {
	Embed  int
	Future int

	enc  *Linear // shared point encoder, driven manually below
	head *MLP

	// caches from the latest Forward for the backward pass
	points  [][][]float64 // polyline -> point -> features
	preacts [][][]float64 // polyline -> point -> encoder pre-activation
	argmax  [][]int       // polyline -> embed dim -> winning point, -1 if none
}

// NewUrbanPolicy builds a policy for the vectorizer's fixed polyline layout.
func NewUrbanPolicy(rng *rand.Rand, v *vector.Vectorizer, embed, hidden, future int) *UrbanPolicy {
	numPolylines := 1 + v.MaxAgents() + v.MaxMapElements()
	return &UrbanPolicy{
		Embed:  embed,
		Future: future,
		enc:    NewLinear(vector.PointDim, embed, rng),
		head:   NewMLP(rng, numPolylines*embed, hidden, future*valuesPerStep),
	}
}

// NumPolylines returns the polyline capacity the head was built for.
func (u *UrbanPolicy) NumPolylines() int { return u.head.InDim() / u.Embed }

func pointFeatures(p vector.Point) []float64 {
	avail := 0.0
	if p.Avail {
		avail = 1
	}
	return []float64{p.X, p.Y, p.Yaw, avail}
}

// Forward encodes the features and predicts a trajectory.
func (u *UrbanPolicy) Forward(f *vector.Features) (Trajectory, error) {
	polylines := make([][]vector.Point, 0, u.NumPolylines())
	polylines = append(polylines, f.Ego)
	polylines = append(polylines, f.Agents...)
	polylines = append(polylines, f.Map...)
	if len(polylines) != u.NumPolylines() {
		return nil, fmt.Errorf("got %d polylines, policy expects %d", len(polylines), u.NumPolylines())
	}

	u.points = make([][][]float64, len(polylines))
	u.preacts = make([][][]float64, len(polylines))
	u.argmax = make([][]int, len(polylines))

	pooled := make([]float64, len(polylines)*u.Embed)
	for pi, pl := range polylines {
		u.argmax[pi] = make([]int, u.Embed)
		for d := range u.argmax[pi] {
			u.argmax[pi][d] = -1
		}
		for qi, pt := range pl {
			if !pt.Avail {
				u.points[pi] = append(u.points[pi], nil)
				u.preacts[pi] = append(u.preacts[pi], nil)
				continue
			}
			feats := pointFeatures(pt)
			pre := u.encodePoint(feats)
			u.points[pi] = append(u.points[pi], feats)
			u.preacts[pi] = append(u.preacts[pi], pre)
			for d := 0; d < u.Embed; d++ {
				act := pre[d]
				if act < 0 {
					act = 0
				}
				slot := pi*u.Embed + d
				if u.argmax[pi][d] == -1 || act > pooled[slot] {
					pooled[slot] = act
					u.argmax[pi][d] = qi
				}
			}
		}
	}
	return decodeTrajectory(u.head.Forward(pooled), u.Future), nil
}

func (u *UrbanPolicy) encodePoint(feats []float64) []float64 {
	x := mat.NewVecDense(len(feats), feats)
	out := mat.NewVecDense(u.Embed, nil)
	out.MulVec(u.enc.W, x)
	out.AddVec(out, u.enc.B)
	pre := make([]float64, u.Embed)
	copy(pre, out.RawVector().Data)
	return pre
}

// TrainStep runs forward and backward for one sample and returns the masked
// MSE loss against the target trajectory.
func (u *UrbanPolicy) TrainStep(f *vector.Features, target Trajectory, avail []float64) (float64, error) {
	traj, err := u.Forward(f)
	if err != nil {
		return 0, err
	}
	out := make([]float64, len(traj)*valuesPerStep)
	for i, s := range traj {
		out[i*valuesPerStep] = s.X
		out[i*valuesPerStep+1] = s.Y
		out[i*valuesPerStep+2] = s.Yaw
	}
	loss, grad := trajectoryLoss(out, target, avail)
	u.backward(grad)
	return loss, nil
}

// backward routes head gradients through the max-pool to the winning points
// and accumulates encoder gradients.
func (u *UrbanPolicy) backward(gradOut []float64) {
	gradPooled := u.head.Backward(gradOut)

	encW := u.enc.dW
	encB := u.enc.dB
	for pi := range u.argmax {
		for d, qi := range u.argmax[pi] {
			if qi < 0 {
				continue
			}
			g := gradPooled[pi*u.Embed+d]
			if g == 0 {
				continue
			}
			pre := u.preacts[pi][qi]
			if pre == nil || pre[d] <= 0 {
				continue // ReLU gate closed
			}
			feats := u.points[pi][qi]
			for k, x := range feats {
				encW.Set(d, k, encW.At(d, k)+g*x)
			}
			encB.SetVec(d, encB.AtVec(d)+g)
		}
	}
}

// Params exposes encoder and head parameters.
func (u *UrbanPolicy) Params() []Parameter {
	return append(u.enc.Params(), u.head.Params()...)
}

// ZeroGrad clears gradient accumulators.
func (u *UrbanPolicy) ZeroGrad() {
	u.enc.ZeroGrad()
	u.head.ZeroGrad()
}
