// Package classify runs an exported classification model on the NPU against
// a single image to check the conversion produced sensible results.
package classify

import (
	"errors"
	"fmt"
	"github.com/swdee/go-rknnconvert/npu"
	"github.com/swdee/go-rknnconvert/postprocess"
	"github.com/swdee/go-rknnconvert/preprocess"
	"gocv.io/x/gocv"
	"image/color"
	"time"
)

// Result of classifying one image
type Result struct {
	Width   int
	Height  int
	Classes postprocess.Classification
	// Elapsed is the time spent setting inputs, running the model and
	// fetching outputs
	Elapsed time.Duration
}

// Classifier runs images through a loaded model
type Classifier struct {
	rt      *npu.Runtime
	width   int
	height  int
	opts    preprocess.LetterboxOptions
	pad     color.RGBA
	rgb     gocv.Mat
	resized gocv.Mat
}

// New returns a Classifier for a model with a single 3 channel image input
func New(rt *npu.Runtime, opts preprocess.LetterboxOptions) (*Classifier, error) {

	if len(rt.Inputs()) != 1 {
		return nil, fmt.Errorf("model has %d inputs, expected 1", len(rt.Inputs()))
	}

	w, h, c, err := rt.Inputs()[0].ImageSize()

	if err != nil {
		return nil, err
	}

	if c != 3 {
		return nil, fmt.Errorf("model input has %d channels, expected 3", c)
	}

	return &Classifier{
		rt:      rt,
		width:   w,
		height:  h,
		opts:    opts,
		pad:     color.RGBA{R: 0, G: 0, B: 0, A: 255},
		rgb:     gocv.NewMat(),
		resized: gocv.NewMat(),
	}, nil
}

// Close frees the image buffers, the runtime is owned by the caller
func (c *Classifier) Close() error {
	return errors.Join(c.rgb.Close(), c.resized.Close())
}

// File reads an image from disk and classifies it
func (c *Classifier) File(file string) (*Result, error) {

	img := gocv.IMRead(file, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("error reading image from: %s", file)
	}

	return c.Mat(img)
}

// Mat classifies a BGR image as returned by gocv.IMRead
func (c *Classifier) Mat(img gocv.Mat) (*Result, error) {

	gocv.CvtColor(img, &c.rgb, gocv.ColorBGRToRGB)

	input := c.rgb

	if img.Cols() != c.width || img.Rows() != c.height {
		resizer := preprocess.NewResizer(img.Cols(), img.Rows(), c.width, c.height, c.opts)
		resizer.LetterBoxResize(c.rgb, &c.resized, c.pad)
		resizer.Close()

		input = c.resized
	}

	if input.Cols() != c.width || input.Rows() != c.height {
		return nil, fmt.Errorf("letterboxed image is %dx%d, model expects %dx%d",
			input.Cols(), input.Rows(), c.width, c.height)
	}

	start := time.Now()
	outputs, err := c.rt.Run(input, false)
	elapsed := time.Since(start)

	if err != nil {
		return nil, err
	}

	logits := c.logits(outputs[0])

	return &Result{
		Width:   img.Cols(),
		Height:  img.Rows(),
		Classes: postprocess.NewClassification(logits),
		Elapsed: elapsed,
	}, nil
}

// logits returns the first output as floats, dequantizing int8 tensors with
// their zero point and scale
func (c *Classifier) logits(out npu.Output) []float64 {

	if out.Int8 == nil {
		return postprocess.Widen(out.Float32)
	}

	attr := c.rt.Outputs()[out.Index]

	if attr.QntType != npu.TensorQntAffine {
		return postprocess.Dequantize(out.Int8, 0, 0)
	}

	return postprocess.Dequantize(out.Int8, attr.ZP, attr.Scale)
}
