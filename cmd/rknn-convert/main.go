// rknn-convert converts an ONNX model into an RKNN artifact for a Rockchip
// NPU using rknn-toolkit2, or loads a previously converted artifact.
//
// The exit code is 0 on success, otherwise the status code of the stage that
// failed, eg: -6 when the model is invalid.
package main

import (
	"context"
	"errors"
	"github.com/swdee/go-rknnconvert"
	"github.com/urfave/cli/v2"
	_ "github.com/viant/afsc/s3"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var configFile string
var logFile string
var verbose bool

// logger is set up by the app's Before hook and closed by run once the
// final error has been logged
var logger = log.New(os.Stderr, "", 0)
var logCloser io.Closer

// commands available in every build, device only commands are appended by
// device.go
var commands = []*cli.Command{
	convertCommand,
	loadCommand,
	inspectCommand,
	datasetCommand,
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "rknn-convert",
		Usage:    "Convert ONNX models to RKNN for Rockchip NPUs",
		Commands: commands,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "YAML config file, flags override its values",
				Aliases:     []string{"c"},
				Destination: &configFile,
				EnvVars:     []string{"RKNN_CONVERT_CONFIG"},
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "Also log to this file, rotated daily",
				Destination: &logFile,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "Verbose logging",
				Aliases:     []string{"v"},
				Destination: &verbose,
			},
		},
		Before: func(c *cli.Context) error {

			l, closer, err := rknnconvert.NewLogger(os.Stderr, rknnconvert.LogOptions{
				File:    logFile,
				Verbose: verbose,
			})

			if err != nil {
				return err
			}

			logger = l
			logCloser = closer
			return nil
		},
		// errors are turned into exit codes by main
		ExitErrHandler: func(c *cli.Context, err error) {},
	}
}

// exitCode maps a command error to the process exit code, a failed stage
// exits with its status code verbatim
func exitCode(err error) int {

	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder

	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return int(rknnconvert.StatusCode(err))
}

// run executes the app and returns the exit code. The log file stays open
// until the command's error has been written to it.
func run(ctx context.Context, args []string) int {

	err := newApp().RunContext(ctx, args)

	if err != nil {
		logger.Println(err)
	}

	if logCloser != nil {
		if cerr := logCloser.Close(); cerr != nil {
			log.Println(cerr)
		}

		logCloser = nil
		logger = log.New(os.Stderr, "", 0)
	}

	return exitCode(err)
}

func main() {

	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args)
	stop()

	os.Exit(code)
}
