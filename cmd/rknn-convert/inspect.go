package main

import (
	"errors"
	"fmt"
	"github.com/swdee/go-rknnconvert/dataset"
	"github.com/swdee/go-rknnconvert/onnxinfo"
	"github.com/urfave/cli/v2"
	"sort"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Print the inputs and outputs of an ONNX model",
	ArgsUsage: "[model.onnx]",
	Action: func(c *cli.Context) error {

		file := c.Args().First()

		if file == "" {
			cfg, err := loadConfig(c, "")

			if err != nil {
				return err
			}

			file = cfg.ModelPath
		}

		model, err := onnxinfo.Read(file)

		if err != nil {
			return err
		}

		w := c.App.Writer
		fmt.Fprintf(w, "Model: %s\n", file)

		for _, t := range model.Inputs {
			fmt.Fprintf(w, "  input  %s\n", t)
		}

		for _, t := range model.Outputs {
			fmt.Fprintf(w, "  output %s\n", t)
		}

		if width, height, ok := model.InputSize(); ok {
			fmt.Fprintf(w, "Input size: %dx%d\n", width, height)
		}

		return nil
	},
}

var datasetCommand = &cli.Command{
	Name:      "dataset",
	Usage:     "Validate a calibration dataset and print its channel statistics",
	ArgsUsage: "[dataset.txt]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "normalize",
			Usage: "Report statistics for pixel values scaled to 0-1 instead of 0-255",
		},
		&cli.BoolFlag{
			Name:  "no-stats",
			Usage: "Only validate the dataset",
		},
	},
	Action: func(c *cli.Context) error {

		file := c.Args().First()

		if file == "" {
			cfg, err := loadConfig(c, "")

			if err != nil {
				return err
			}

			file = cfg.Dataset
		}

		m, err := dataset.Load(file)

		if err != nil {
			return err
		}

		w := c.App.Writer
		fmt.Fprintf(w, "Dataset: %s, %d entries\n", file, m.Len())

		if err := m.CheckExists(); err != nil {
			return err
		}

		infos, err := m.Check()

		if err != nil {
			return err
		}

		sizes := make(map[string]int)

		for _, info := range infos {
			sizes[fmt.Sprintf("%dx%d %s", info.Width, info.Height, info.Format)]++
		}

		keys := make([]string, 0, len(sizes))

		for size := range sizes {
			keys = append(keys, size)
		}

		sort.Strings(keys)

		for _, size := range keys {
			fmt.Fprintf(w, "  %s: %d\n", size, sizes[size])
		}

		if c.Bool("no-stats") {
			return nil
		}

		stats, err := m.ChannelStats(c.Bool("normalize"))

		if errors.Is(err, dataset.ErrNoImages) {
			fmt.Fprintln(w, "No decodable images for statistics")
			return nil
		}

		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Images: %d, pixels per channel: %d\n", stats.Images, stats.Pixels)
		fmt.Fprintf(w, "mean_values: [%.3f, %.3f, %.3f]\n", stats.Mean[0], stats.Mean[1], stats.Mean[2])
		fmt.Fprintf(w, "std_values:  [%.3f, %.3f, %.3f]\n", stats.Std[0], stats.Std[1], stats.Std[2])

		return nil
	},
}
