package rknnconvert

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {

	file := filepath.Join(t.TempDir(), "convert.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	return file
}

func TestDefaultConfig(t *testing.T) {

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "5s_cls-640-640_rm_transpose_rk3588.rknn", cfg.ArtifactName())
	assert.Equal(t, filepath.Join("rknn_models", "5s_cls-640-640_rm_transpose_rk3588.rknn"), cfg.ArtifactPath())
}

func TestArtifactNameDeterministic(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Experiment = "mobilenet"
	cfg.Width = 224
	cfg.Height = 320
	cfg.Platform = RK3566

	for i := 0; i < 3; i++ {
		assert.Equal(t, "mobilenet-224-320_rm_transpose_rk3566.rknn", cfg.ArtifactName())
	}

	other := cfg
	other.Height = 224
	assert.NotEqual(t, cfg.ArtifactName(), other.ArtifactName())
}

func TestLoadConfig(t *testing.T) {

	file := writeConfig(t, `
platform: RK3576
experiment: resnet
width: 224
height: 224
model: /models/resnet.onnx
quantize: false
mean_values: [[0, 0, 0]]
std_values: [[255, 255, 255]]
quantization:
  quantized_algorithm: mmse
  optimization_level: 2
publish: s3://models/rknn/
`)

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, RK3576, cfg.Platform)
	assert.Equal(t, "resnet", cfg.Experiment)
	assert.Equal(t, "/models/resnet.onnx", cfg.ModelPath)
	assert.False(t, cfg.Quantize)
	assert.Equal(t, "mmse", cfg.Quantization.Algorithm)
	assert.Equal(t, 2, cfg.Quantization.OptimizationLevel)
	assert.Equal(t, "s3://models/rknn/", cfg.Publish)

	// fields missing from the file keep their defaults
	assert.Equal(t, "rknn_models", cfg.OutDir)
	assert.Equal(t, ModeBuild, cfg.Mode)
}

func TestLoadConfigEmpty(t *testing.T) {

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {

	_, err := LoadConfig(writeConfig(t, "platfrom: rk3588\n"))
	assert.ErrorContains(t, err, "platfrom")

	_, err = LoadConfig(writeConfig(t, "platform: rk1808\n"))
	assert.ErrorContains(t, err, "unknown platform")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Experiment = ""
	cfg.Width = 0
	cfg.Mode = "sideways"
	cfg.StdValues = [][]float32{{0.229, 0, 0.225}}

	err := cfg.Validate()
	require.Error(t, err)

	for _, msg := range []string{"experiment label is empty", "must be positive", "unknown mode", "std value of zero"} {
		assert.ErrorContains(t, err, msg)
	}

	// the load path needs neither a model nor a dataset
	cfg = DefaultConfig()
	cfg.Mode = ModeLoad
	cfg.ModelPath = ""
	cfg.Dataset = ""
	assert.NoError(t, cfg.Validate())

	cfg.Mode = ModeBuild
	assert.Error(t, cfg.Validate())
}

func TestBuildOptions(t *testing.T) {

	cfg := DefaultConfig()
	assert.Equal(t, BuildOptions{DoQuantization: true, Dataset: "./dataset.txt"}, cfg.BuildOptions())

	cfg.Quantize = false
	assert.Equal(t, BuildOptions{}, cfg.BuildOptions())
}
