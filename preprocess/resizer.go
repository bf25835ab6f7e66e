// Package preprocess prepares images for a classification model's input
// tensor.
package preprocess

import (
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"math"
)

// LetterboxOptions control how an image is fitted into the model input
type LetterboxOptions struct {
	// ScaleUp allows images smaller than the input to be enlarged, otherwise
	// they are only padded
	ScaleUp bool
	// Auto pads to the smallest multiple of Stride instead of the full input
	// size
	Auto bool
	// Stride of the model, only used with Auto
	Stride int
}

// DefaultLetterboxOptions are the settings the classifier was trained with
func DefaultLetterboxOptions() LetterboxOptions {
	return LetterboxOptions{
		ScaleUp: false,
		Auto:    false,
		Stride:  32,
	}
}

// Geometry is the result of fitting a source image into the input size
type Geometry struct {
	Scale   float32
	ResizeW int
	ResizeH int
	Top     int
	Bottom  int
	Left    int
	Right   int
}

// Width of the letterboxed image
func (g Geometry) Width() int {
	return g.Left + g.ResizeW + g.Right
}

// Height of the letterboxed image
func (g Geometry) Height() int {
	return g.Top + g.ResizeH + g.Bottom
}

// Compute the letterbox geometry for a srcW x srcH image fitted into
// destW x destH. The scaled size is rounded to the nearest pixel and the
// padding is split evenly, any odd pixel goes to the bottom or right edge.
func Compute(srcW, srcH, destW, destH int, opts LetterboxOptions) Geometry {

	r := math.Min(float64(destW)/float64(srcW), float64(destH)/float64(srcH))

	if !opts.ScaleUp {
		r = math.Min(r, 1.0)
	}

	g := Geometry{
		Scale:   float32(r),
		ResizeW: int(math.Round(float64(srcW) * r)),
		ResizeH: int(math.Round(float64(srcH) * r)),
	}

	dw := destW - g.ResizeW
	dh := destH - g.ResizeH

	if opts.Auto && opts.Stride > 0 {
		dw %= opts.Stride
		dh %= opts.Stride
	}

	g.Left = dw / 2
	g.Right = dw - g.Left
	g.Top = dh / 2
	g.Bottom = dh - g.Top

	return g
}

// Resizer letterboxes images of one source size into the model input size
type Resizer struct {
	geom Geometry
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions for input tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int, opts LetterboxOptions) *Resizer {
	return &Resizer{
		geom:    Compute(srcWidth, srcHeight, destWidth, destHeight, opts),
		tempMat: gocv.NewMat(),
	}
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// Geometry returns the precalculated letterbox geometry
func (r *Resizer) Geometry() Geometry {
	return r.geom
}

// LetterBoxResize resizes src keeping its aspect ratio and pads the border
// with the given color
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, pad color.RGBA) {

	g := r.geom

	gocv.Resize(src, &r.tempMat, image.Pt(g.ResizeW, g.ResizeH),
		0, 0, gocv.InterpolationLinear)

	gocv.CopyMakeBorder(r.tempMat, dest, g.Top, g.Bottom, g.Left, g.Right,
		gocv.BorderConstant, pad)
}
