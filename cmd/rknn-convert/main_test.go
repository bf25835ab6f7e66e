package main

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-rknnconvert"
	"github.com/urfave/cli/v2"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// runApp runs the cli with args and returns what commands wrote
func runApp(t *testing.T, args ...string) (string, error) {

	t.Cleanup(func() {
		configFile = ""
		logFile = ""
		verbose = false
	})

	var buf bytes.Buffer

	app := newApp()
	app.Writer = &buf

	err := app.Run(append([]string{"rknn-convert"}, args...))

	return buf.String(), err
}

func TestParseValues(t *testing.T) {

	values, err := parseValues("0.485,0.456, 0.406;1,2,3")
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{0.485, 0.456, 0.406}, {1, 2, 3}}, values)

	_, err = parseValues("0.1,abc")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {

	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, -1, exitCode(errors.New("boom")))
	assert.Equal(t, 3, exitCode(cli.Exit("usage", 3)))

	err := &rknnconvert.StageError{
		Stage: rknnconvert.StageLoadModel,
		Code:  rknnconvert.StatusModelInvalid,
		Err:   errors.New("load_onnx failed"),
	}
	assert.Equal(t, -6, exitCode(err))
}

func TestLoadConfigFlags(t *testing.T) {

	dir := t.TempDir()
	file := filepath.Join(dir, "convert.yaml")

	require.NoError(t, os.WriteFile(file, []byte("experiment: from_file\nwidth: 320\nheight: 320\n"), 0o644))

	var cfg rknnconvert.Config

	commands := []*cli.Command{{
		Name:  "show",
		Flags: append([]cli.Flag{&cli.StringFlag{Name: "mode"}}, pipelineFlags...),
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c, "")
			return err
		},
	}}

	app := newApp()
	app.Commands = commands

	t.Cleanup(func() { configFile = "" })

	err := app.Run([]string{"rknn-convert", "--config", file, "show",
		"--platform", " RK3566 ", "--height", "480", "--quantize=false",
		"--mean", "0,0,0", "--std", "255,255,255", "--mode", "AUTO"})
	require.NoError(t, err)

	assert.Equal(t, rknnconvert.RK3566, cfg.Platform)
	assert.Equal(t, "from_file", cfg.Experiment)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.False(t, cfg.Quantize)
	assert.Equal(t, rknnconvert.ModeAuto, cfg.Mode)
	assert.Equal(t, [][]float32{{0, 0, 0}}, cfg.MeanValues)
	assert.Equal(t, [][]float32{{255, 255, 255}}, cfg.StdValues)
	assert.Equal(t, "from_file-320-480_rm_transpose_rk3566.rknn", cfg.ArtifactName())
}

func TestConvertInitFailure(t *testing.T) {

	dir := t.TempDir()
	outDir := filepath.Join(dir, "rknn_models")

	_, err := runApp(t, "convert",
		"--python", filepath.Join(dir, "no-such-python"),
		"--model", filepath.Join(dir, "best.onnx"),
		"--out-dir", outDir)

	require.Error(t, err)
	assert.Equal(t, int(rknnconvert.StatusFail), exitCode(err))

	var stageErr *rknnconvert.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, rknnconvert.StageInit, stageErr.Stage)

	assert.NoDirExists(t, outDir)
}

func TestConvertUnknownEngine(t *testing.T) {

	_, err := runApp(t, "convert", "--engine", "gpu")
	assert.ErrorContains(t, err, "unknown engine")
}

func TestRunLogsErrorToFile(t *testing.T) {

	t.Cleanup(func() {
		logFile = ""
	})

	base := filepath.Join(t.TempDir(), "convert.log")

	code := run(context.Background(), []string{"rknn-convert", "--log-file", base,
		"convert", "--engine", "gpu"})

	assert.Equal(t, int(rknnconvert.StatusFail), code)
	assert.Nil(t, logCloser)

	files, err := filepath.Glob(base + "-*")
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `unknown engine "gpu"`)
}

func TestLoadSkipsBuildValidation(t *testing.T) {

	dir := t.TempDir()

	// an empty model is only rejected when building, so load reaches the
	// engine and fails there
	_, err := runApp(t, "load",
		"--python", filepath.Join(dir, "no-such-python"),
		"--model", "",
		"--out-dir", filepath.Join(dir, "rknn_models"))

	var stageErr *rknnconvert.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, rknnconvert.StageInit, stageErr.Stage)

	_, err = runApp(t, "convert",
		"--python", filepath.Join(dir, "no-such-python"),
		"--model", "",
		"--out-dir", filepath.Join(dir, "rknn_models"))

	assert.ErrorContains(t, err, "model path is empty")
	assert.False(t, errors.As(err, &stageErr))
}

func TestInspectMissingModel(t *testing.T) {

	_, err := runApp(t, "inspect", filepath.Join(t.TempDir(), "missing.onnx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDatasetCommand(t *testing.T) {

	dir := t.TempDir()

	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{R: 200, G: 100, B: 0, A: 255})
	writePNG(t, filepath.Join(dir, "b.png"), color.RGBA{R: 0, G: 100, B: 200, A: 255})

	manifest := filepath.Join(dir, "dataset.txt")
	require.NoError(t, os.WriteFile(manifest, []byte("a.png\n# comment\nb.png\n"), 0o644))

	out, err := runApp(t, "dataset", manifest)
	require.NoError(t, err)

	assert.Contains(t, out, "2 entries")
	assert.Contains(t, out, "4x4 png: 2")
	assert.Contains(t, out, "mean_values: [100.000, 100.000, 100.000]")
	assert.Contains(t, out, "std_values:  [100.000, 0.000, 100.000]")

	require.NoError(t, os.WriteFile(manifest, []byte("a.png\nmissing.png\n"), 0o644))

	_, err = runApp(t, "dataset", manifest)
	assert.ErrorContains(t, err, "line 2")
}

func writePNG(t *testing.T, file string, c color.RGBA) {

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(file)
	require.NoError(t, err)

	defer f.Close()

	require.NoError(t, png.Encode(f, img))
}
