// Package postprocess turns classification model outputs into class
// probabilities.
package postprocess

import (
	"gonum.org/v1/gonum/floats"
	"math"
)

// deqntAffineToF64 converts a quantized int8 value back to a float using
// the provided zero point and scale
func deqntAffineToF64(qnt int8, zp int32, scale float32) float64 {
	return (float64(qnt) - float64(zp)) * float64(scale)
}

// Dequantize converts an int8 affine quantized tensor to floats. A zero
// scale is treated as an unquantized tensor holding raw values.
func Dequantize(data []int8, zp int32, scale float32) []float64 {

	out := make([]float64, len(data))

	if scale == 0 {
		zp, scale = 0, 1
	}

	for i, q := range data {
		out[i] = deqntAffineToF64(q, zp, scale)
	}

	return out
}

// Widen copies float32 outputs to float64
func Widen(data []float32) []float64 {

	out := make([]float64, len(data))

	for i, v := range data {
		out[i] = float64(v)
	}

	return out
}

// Softmax returns the normalized exponentials of logits. The maximum is
// subtracted first so large logits do not overflow.
func Softmax(logits []float64) []float64 {

	if len(logits) == 0 {
		return nil
	}

	out := make([]float64, len(logits))
	peak := floats.Max(logits)

	for i, v := range logits {
		out[i] = math.Exp(v - peak)
	}

	floats.Scale(1/floats.Sum(out), out)

	return out
}
