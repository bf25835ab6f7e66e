package rknnconvert

import (
	"context"
)

// ModelConfig holds the parameters applied to the engine before the source
// model is loaded
type ModelConfig struct {
	// MeanValues is one list of per-channel means for each model input
	MeanValues [][]float32
	// StdValues is one list of per-channel standard deviations for each
	// model input
	StdValues      [][]float32
	TargetPlatform Platform
	Quantization   QuantizationConfig
}

// BuildOptions holds the parameters of the build step
type BuildOptions struct {
	// DoQuantization enables int8 quantization of the model
	DoQuantization bool
	// Dataset is the calibration manifest, only used when DoQuantization is
	// set
	Dataset string
}

// Engine is an external model conversion engine such as the rknn-toolkit2
// RKNN object. Operations that complete with a non-zero toolkit status must
// return a *StatusError carrying that status verbatim. An Engine is used by a
// single Session and need not be safe for concurrent use.
type Engine interface {
	// Init acquires the engine handle
	Init(ctx context.Context) error
	// Config applies normalization and target platform parameters
	Config(ctx context.Context, cfg ModelConfig) error
	// LoadONNX loads the source ONNX model
	LoadONNX(ctx context.Context, modelFile string) error
	// Build compiles, and optionally quantizes, the loaded model
	Build(ctx context.Context, opts BuildOptions) error
	// ExportRKNN writes the built model to the given file
	ExportRKNN(ctx context.Context, file string) error
	// LoadRKNN loads a pre-built RKNN model
	LoadRKNN(ctx context.Context, file string) error
	// Release frees the engine handle
	Release() error
}
