package main

import (
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"github.com/swdee/go-rknnconvert/toolkit"
	"github.com/urfave/cli/v2"
	"log"
	"strconv"
	"strings"
)

// engineFactory creates the Engine a pipeline runs against
type engineFactory func(c *cli.Context, cfg rknnconvert.Config, l *log.Logger) (rknnconvert.Engine, error)

// engines by --engine name, device.go registers npu
var engines = map[string]engineFactory{
	"toolkit": newToolkitEngine,
}

func newToolkitEngine(c *cli.Context, cfg rknnconvert.Config, l *log.Logger) (rknnconvert.Engine, error) {

	opts := []toolkit.Option{
		toolkit.WithVerbose(c.Bool("toolkit-verbose")),
		toolkit.WithStderr(l.Writer()),
	}

	if python := c.String("python"); python != "" {
		opts = append(opts, toolkit.WithPython(python))
	}

	return toolkit.New(opts...), nil
}

// pipelineFlags are shared by convert and load
var pipelineFlags = []cli.Flag{
	&cli.StringFlag{Name: "platform", Usage: "Target platform, eg: rk3588"},
	&cli.StringFlag{Name: "experiment", Usage: "Experiment name used in the artifact file name"},
	&cli.IntFlag{Name: "width", Usage: "Model input width"},
	&cli.IntFlag{Name: "height", Usage: "Model input height"},
	&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Path to the ONNX model"},
	&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "Calibration dataset manifest"},
	&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "Directory the RKNN artifact is written to"},
	&cli.BoolFlag{Name: "quantize", Usage: "Quantize the model, use --quantize=false to disable", Value: true},
	&cli.StringFlag{Name: "mean", Usage: "Per channel mean values, eg: 0.485,0.456,0.406 with inputs separated by ;"},
	&cli.StringFlag{Name: "std", Usage: "Per channel std values, same format as --mean"},
	&cli.StringFlag{Name: "quantized-dtype", Usage: "Quantized data type"},
	&cli.StringFlag{Name: "quantized-algorithm", Usage: "Quantization algorithm: normal, mmse or kl_divergence"},
	&cli.StringFlag{Name: "quantized-method", Usage: "Quantization method: channel or layer"},
	&cli.IntFlag{Name: "optimization-level", Usage: "Optimization level 0 to 3"},
	&cli.StringFlag{Name: "publish", Usage: "URL the artifact is copied to after export, eg: s3://bucket/models/"},
	&cli.StringFlag{Name: "engine", Usage: "Engine to run: toolkit or npu", Value: "toolkit"},
	&cli.StringFlag{Name: "python", Usage: "Python interpreter with rknn-toolkit2 installed", EnvVars: []string{"RKNN_PYTHON"}},
	&cli.BoolFlag{Name: "toolkit-verbose", Usage: "Enable rknn-toolkit2 verbose output"},
	&cli.BoolFlag{Name: "no-inspect", Usage: "Do not read the ONNX model's tensors before loading"},
}

var convertCommand = &cli.Command{
	Name:  "convert",
	Usage: "Convert an ONNX model to an RKNN artifact",
	Description: `Configures the toolkit, loads the ONNX model, builds it (quantizing with
the calibration dataset unless --quantize=false) and exports the artifact
to <out-dir>/<experiment>-<width>-<height>_rm_transpose_<platform>.rknn.
With --mode=load the pre-built artifact is loaded instead, with --mode=auto
it is loaded only if it already exists.`,
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "mode", Usage: "build, load or auto"},
	}, pipelineFlags...),
	Action: func(c *cli.Context) error {
		return runPipeline(c, "")
	},
}

var loadCommand = &cli.Command{
	Name:  "load",
	Usage: "Load a pre-built RKNN artifact instead of converting",
	Flags: pipelineFlags,
	Action: func(c *cli.Context) error {
		return runPipeline(c, rknnconvert.ModeLoad)
	},
}

// runPipeline builds the config from the config file and flags and runs the
// pipeline, mode overrides the configured mode when set
func runPipeline(c *cli.Context, mode rknnconvert.Mode) error {

	cfg, err := loadConfig(c, mode)

	if err != nil {
		return err
	}

	factory, ok := engines[c.String("engine")]

	if !ok {
		return fmt.Errorf("unknown engine %q", c.String("engine"))
	}

	engine, err := factory(c, cfg, logger)

	if err != nil {
		return err
	}

	p, err := rknnconvert.NewPipeline(cfg, engine,
		rknnconvert.WithLogger(logger),
		rknnconvert.WithInspection(!c.Bool("no-inspect")),
	)

	if err != nil {
		return err
	}

	res, err := p.Run(c.Context)

	if res != nil && verbose {
		logger.Printf("states: %v", res.States)
	}

	return err
}

// loadConfig returns the defaults, overlaid by the config file if given and
// then by any flags set on the command line. A non empty mode overrides both
// and is applied before validation.
func loadConfig(c *cli.Context, mode rknnconvert.Mode) (rknnconvert.Config, error) {

	cfg := rknnconvert.DefaultConfig()

	if configFile != "" {
		var err error
		cfg, err = rknnconvert.LoadConfig(configFile)

		if err != nil {
			return cfg, err
		}
	}

	if err := applyFlags(c, &cfg); err != nil {
		return cfg, err
	}

	if mode != "" {
		cfg.Mode = mode
	}

	return cfg, cfg.Validate()
}

// applyFlags overrides cfg with the flags explicitly set on c
func applyFlags(c *cli.Context, cfg *rknnconvert.Config) error {

	if c.IsSet("platform") {
		p, err := rknnconvert.ParsePlatform(c.String("platform"))

		if err != nil {
			return err
		}

		cfg.Platform = p
	}

	setString(c, "experiment", &cfg.Experiment)
	setString(c, "model", &cfg.ModelPath)
	setString(c, "dataset", &cfg.Dataset)
	setString(c, "out-dir", &cfg.OutDir)
	setString(c, "publish", &cfg.Publish)
	setString(c, "quantized-dtype", &cfg.Quantization.Dtype)
	setString(c, "quantized-algorithm", &cfg.Quantization.Algorithm)
	setString(c, "quantized-method", &cfg.Quantization.Method)
	setInt(c, "width", &cfg.Width)
	setInt(c, "height", &cfg.Height)
	setInt(c, "optimization-level", &cfg.Quantization.OptimizationLevel)

	if c.IsSet("mode") {
		cfg.Mode = rknnconvert.Mode(strings.ToLower(c.String("mode")))
	}

	if c.IsSet("quantize") {
		cfg.Quantize = c.Bool("quantize")
	}

	for name, dest := range map[string]*[][]float32{"mean": &cfg.MeanValues, "std": &cfg.StdValues} {
		if !c.IsSet(name) {
			continue
		}

		values, err := parseValues(c.String(name))

		if err != nil {
			return fmt.Errorf("invalid --%s: %w", name, err)
		}

		*dest = values
	}

	return nil
}

func setString(c *cli.Context, name string, dest *string) {
	if c.IsSet(name) {
		*dest = c.String(name)
	}
}

func setInt(c *cli.Context, name string, dest *int) {
	if c.IsSet(name) {
		*dest = c.Int(name)
	}
}

// parseValues parses "a,b,c;d,e,f" into one list of floats per model input
func parseValues(s string) ([][]float32, error) {

	var out [][]float32

	for _, group := range strings.Split(s, ";") {
		var values []float32

		for _, field := range strings.Split(group, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)

			if err != nil {
				return nil, err
			}

			values = append(values, float32(v))
		}

		out = append(out, values)
	}

	return out, nil
}
