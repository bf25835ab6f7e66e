//go:build npu

package main

import (
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"github.com/swdee/go-rknnconvert/classify"
	"github.com/swdee/go-rknnconvert/npu"
	"github.com/swdee/go-rknnconvert/postprocess"
	"github.com/swdee/go-rknnconvert/preprocess"
	"github.com/urfave/cli/v2"
	"log"
)

func init() {
	engines["npu"] = func(c *cli.Context, cfg rknnconvert.Config, l *log.Logger) (rknnconvert.Engine, error) {
		return npu.NewEngine(cfg.Platform, l), nil
	}

	commands = append(commands, queryCommand, classifyCommand)
}

var deviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "platform",
		Usage: "Platform the model runs on, eg: rk3588",
	},
}

// openModel loads the artifact given as the first argument, or the artifact
// named by the config
func openModel(c *cli.Context) (*npu.Runtime, rknnconvert.Platform, error) {

	cfg, err := loadConfig(c, "")

	if err != nil {
		return nil, "", err
	}

	file := c.Args().First()

	if file == "" {
		file = cfg.ArtifactPath()
	}

	rt, err := npu.Open(file, npu.CoreMaskFor(cfg.Platform))

	return rt, cfg.Platform, err
}

var queryCommand = &cli.Command{
	Name:      "query",
	Usage:     "Print the SDK version and tensors of an RKNN model on the device",
	ArgsUsage: "[model.rknn]",
	Flags:     deviceFlags,
	Action: func(c *cli.Context) error {

		rt, _, err := openModel(c)

		if err != nil {
			return err
		}

		defer rt.Close()

		return npu.Describe(rt, c.App.Writer)
	},
}

var classifyCommand = &cli.Command{
	Name:      "classify",
	Usage:     "Run an RKNN classification model on an image",
	ArgsUsage: "[model.rknn]",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "Image file to classify", Required: true},
		&cli.StringFlag{Name: "labels", Aliases: []string{"l"}, Usage: "Class labels file, one per line"},
		&cli.IntFlag{Name: "top", Usage: "Number of classes to print", Value: 5},
		&cli.BoolFlag{Name: "scale-up", Usage: "Enlarge images smaller than the model input"},
		&cli.BoolFlag{Name: "fast-cores", Usage: "Pin to the fast CPU cores of the platform"},
	}, deviceFlags...),
	Action: func(c *cli.Context) error {

		var labels postprocess.Labels

		if file := c.String("labels"); file != "" {
			var err error
			labels, err = postprocess.LoadLabels(file)

			if err != nil {
				return err
			}
		}

		rt, platform, err := openModel(c)

		if err != nil {
			return err
		}

		defer rt.Close()

		if c.Bool("fast-cores") {
			if err := npu.SetCPUAffinityByPlatform(platform, npu.FastCores); err != nil {
				logger.Printf("unable to set cpu affinity: %v", err)
			}
		}

		opts := preprocess.DefaultLetterboxOptions()
		opts.ScaleUp = c.Bool("scale-up")

		classifier, err := classify.New(rt, opts)

		if err != nil {
			return err
		}

		defer classifier.Close()

		res, err := classifier.File(c.String("image"))

		if err != nil {
			return err
		}

		w := c.App.Writer
		fmt.Fprintf(w, "img width = %d, img height = %d\n", res.Width, res.Height)
		fmt.Fprintf(w, "once run use %.3f ms\n", float64(res.Elapsed.Microseconds())/1000)

		for _, p := range res.Classes.Top(c.Int("top")) {
			fmt.Fprintf(w, "  %s: %.6f\n", labels.Name(p.LabelIndex), p.Probability)
		}

		best := res.Classes.Best()
		fmt.Fprintf(w, "Predicted Class: %s\n", labels.Name(best.LabelIndex))

		return nil
	},
}
