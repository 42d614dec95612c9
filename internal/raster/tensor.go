package raster

import "fmt"

// Tensor is a dense CHW float32 image tensor.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) *Tensor {
	return &Tensor{C: c, H: h, W: w, Data: make([]float32, c*h*w)}
}

// At returns the value at channel c, row y, column x.
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Set writes the value at channel c, row y, column x.
func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Channel returns the backing slice for one channel.
func (t *Tensor) Channel(c int) []float32 {
	return t.Data[c*t.H*t.W : (c+1)*t.H*t.W]
}

// Stack concatenates tensors along the channel axis. All inputs must share
// height and width.
func Stack(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack of zero tensors")
	}
	h, w := ts[0].H, ts[0].W
	c := 0
	for _, t := range ts {
		if t.H != h || t.W != w {
			return nil, fmt.Errorf("stack shape mismatch: %dx%d vs %dx%d", t.H, t.W, h, w)
		}
		c += t.C
	}
	out := NewTensor(c, h, w)
	off := 0
	for _, t := range ts {
		copy(out.Data[off:], t.Data)
		off += len(t.Data)
	}
	return out, nil
}
