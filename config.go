package rknnconvert

import (
	"bytes"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path/filepath"
)

// Mode selects which path of the workflow the Pipeline executes
type Mode string

const (
	// ModeBuild configures, loads the ONNX model, builds and exports the
	// RKNN artifact
	ModeBuild Mode = "build"
	// ModeLoad skips building and loads a pre-built RKNN artifact
	ModeLoad Mode = "load"
	// ModeAuto loads the artifact if it already exists, otherwise builds it
	ModeAuto Mode = "auto"
)

// Valid reports whether the mode is known
func (m Mode) Valid() bool {
	switch m {
	case ModeBuild, ModeLoad, ModeAuto:
		return true
	}

	return false
}

// QuantizationConfig holds optional rknn.config() tuning parameters. Zero
// values are not passed to the toolkit so its own defaults apply.
type QuantizationConfig struct {
	// Dtype is the quantized data type, eg: asymmetric_quantized-8
	Dtype string `yaml:"quantized_dtype,omitempty"`
	// Algorithm is one of normal, mmse or kl_divergence
	Algorithm string `yaml:"quantized_algorithm,omitempty"`
	// Method is one of channel or layer
	Method string `yaml:"quantized_method,omitempty"`
	// OptimizationLevel is 0 to 3, zero means toolkit default
	OptimizationLevel int `yaml:"optimization_level,omitempty"`
}

// Config is the full set of parameters for one conversion run. Treat it as
// immutable once handed to a Pipeline.
type Config struct {
	Platform   Platform `yaml:"platform"`
	Experiment string   `yaml:"experiment"`
	// Width and Height are the model input resolution, used only for
	// naming the artifact
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// ModelPath is the source ONNX model
	ModelPath string `yaml:"model"`
	// Dataset is the calibration manifest, one image path per line
	Dataset string `yaml:"dataset"`
	// OutDir is created if missing before export
	OutDir   string `yaml:"out_dir"`
	Mode     Mode   `yaml:"mode"`
	Quantize bool   `yaml:"quantize"`
	// MeanValues and StdValues hold one per-channel list for each model input
	MeanValues   [][]float32        `yaml:"mean_values"`
	StdValues    [][]float32        `yaml:"std_values"`
	Quantization QuantizationConfig `yaml:"quantization,omitempty"`
	// Publish is an optional destination URL (eg: s3://bucket/models/) the
	// exported artifact is copied to
	Publish string `yaml:"publish,omitempty"`
}

// DefaultConfig returns the configuration of the reference conversion,
// a 640x640 classification model quantized for the rk3588
func DefaultConfig() Config {
	return Config{
		Platform:   RK3588,
		Experiment: "5s_cls",
		Width:      640,
		Height:     640,
		ModelPath:  "./best.onnx",
		Dataset:    "./dataset.txt",
		OutDir:     "rknn_models",
		Mode:       ModeBuild,
		Quantize:   true,
		MeanValues: [][]float32{{0.485, 0.456, 0.406}},
		StdValues:  [][]float32{{0.229, 0.224, 0.225}},
	}
}

// LoadConfig reads a YAML config file, any field not present keeps the value
// from DefaultConfig()
func LoadConfig(file string) (Config, error) {

	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Clean(file))

	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("error parsing config file %s: %w", file, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the config for values the toolkit would reject or that
// would produce an unusable artifact name
func (c Config) Validate() error {

	var errs []error

	if !c.Platform.Valid() {
		errs = append(errs, fmt.Errorf("unknown platform: %q", c.Platform))
	}

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("unknown mode: %q", c.Mode))
	}

	if c.Experiment == "" {
		errs = append(errs, errors.New("experiment label is empty"))
	}

	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("input size %dx%d must be positive", c.Width, c.Height))
	}

	if c.OutDir == "" {
		errs = append(errs, errors.New("output directory is empty"))
	}

	if c.Mode != ModeLoad {
		if c.ModelPath == "" {
			errs = append(errs, errors.New("model path is empty"))
		}

		if c.Quantize && c.Dataset == "" {
			errs = append(errs, errors.New("quantization requires a dataset"))
		}
	}

	if len(c.MeanValues) != len(c.StdValues) {
		errs = append(errs, fmt.Errorf("mean_values has %d inputs but std_values has %d",
			len(c.MeanValues), len(c.StdValues)))
	} else {
		for i := range c.MeanValues {
			if len(c.MeanValues[i]) != len(c.StdValues[i]) {
				errs = append(errs, fmt.Errorf("input %d: %d mean values but %d std values",
					i, len(c.MeanValues[i]), len(c.StdValues[i])))
			}

			for _, v := range c.StdValues[i] {
				if v == 0 {
					errs = append(errs, fmt.Errorf("input %d: std value of zero", i))
					break
				}
			}
		}
	}

	if q := c.Quantization.OptimizationLevel; q < 0 || q > 3 {
		errs = append(errs, fmt.Errorf("optimization level %d out of range [0-3]", q))
	}

	return errors.Join(errs...)
}

// ArtifactName returns the file name of the RKNN artifact in the form
// <experiment>-<width>-<height>_rm_transpose_<platform>.rknn
func (c Config) ArtifactName() string {
	return fmt.Sprintf("%s-%d-%d_rm_transpose_%s.rknn",
		c.Experiment, c.Width, c.Height, c.Platform)
}

// ArtifactPath returns the path the RKNN artifact is exported to and loaded
// from
func (c Config) ArtifactPath() string {
	return filepath.Join(c.OutDir, c.ArtifactName())
}

// ModelConfig returns the parameters passed to the engine's configure step
func (c Config) ModelConfig() ModelConfig {
	return ModelConfig{
		MeanValues:     cloneValues(c.MeanValues),
		StdValues:      cloneValues(c.StdValues),
		TargetPlatform: c.Platform,
		Quantization:   c.Quantization,
	}
}

// BuildOptions returns the parameters passed to the engine's build step
func (c Config) BuildOptions() BuildOptions {

	opts := BuildOptions{
		DoQuantization: c.Quantize,
	}

	if c.Quantize {
		opts.Dataset = c.Dataset
	}

	return opts
}

// clone returns a deep copy so slices cannot be mutated by the caller after
// the Pipeline is created
func (c Config) clone() Config {
	c.MeanValues = cloneValues(c.MeanValues)
	c.StdValues = cloneValues(c.StdValues)
	return c
}

func cloneValues(in [][]float32) [][]float32 {

	if in == nil {
		return nil
	}

	out := make([][]float32, len(in))

	for i, v := range in {
		out[i] = append([]float32(nil), v...)
	}

	return out
}
