// Package raster renders bird's-eye-view tensors of driving scenes: agent
// boxes over frame history and semantic map elements, in an ego-centred
// raster frame.
package raster

import (
	"math"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/geometry"
)

// RenderContext fixes the raster geometry: image size, meters per pixel and
// where in the image the ego sits.
type RenderContext struct {
	Width     int
	Height    int
	PixelSize [2]float64
	EgoCenter [2]float64 // fraction of width/height
}

// NewRenderContext builds a context from raster params.
func NewRenderContext(rp config.RasterParams) RenderContext {
	return RenderContext{
		Width:     rp.RasterSize[0],
		Height:    rp.RasterSize[1],
		PixelSize: rp.PixelSize,
		EgoCenter: rp.EgoCenter,
	}
}

// RasterFromWorld returns the transform mapping world coordinates into pixel
// coordinates, with the ego pose placed at EgoCenter facing +X in the image.
func (rc RenderContext) RasterFromWorld(ego geometry.Pose) *geometry.Transform {
	// world -> ego frame
	egoFromWorld := geometry.FromPose(ego).Inverse()
	// ego frame -> pixels: scale and shift to the configured center
	cx := rc.EgoCenter[0] * float64(rc.Width)
	cy := rc.EgoCenter[1] * float64(rc.Height)
	scale := geometry.NewTransform([]float64{
		1 / rc.PixelSize[0], 0, cx,
		0, 1 / rc.PixelSize[1], cy,
		0, 0, 1,
	})
	return scale.Compose(egoFromWorld)
}

// WorldFromRaster returns the inverse of RasterFromWorld.
func (rc RenderContext) WorldFromRaster(ego geometry.Pose) *geometry.Transform {
	return rc.RasterFromWorld(ego).Inverse()
}

// VisibleRadius returns a conservative radius in meters covering every pixel
// of the raster from the ego position.
func (rc RenderContext) VisibleRadius() float64 {
	w := float64(rc.Width) * rc.PixelSize[0]
	h := float64(rc.Height) * rc.PixelSize[1]
	return math.Hypot(w, h)
}
