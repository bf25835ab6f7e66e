// Package toolkit drives the Rockchip rknn-toolkit2 Python API from Go. A
// single long lived Python process holds the RKNN object for the lifetime of
// an Engine and executes one toolkit call per request.
package toolkit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"io"
	"os"
	"os/exec"
	"time"
)

//go:embed bridge.py
var bridgeScript string

// DefaultReleaseTimeout is how long Release waits for the toolkit to free
// the RKNN object before the process is killed
const DefaultReleaseTimeout = 30 * time.Second

var _ rknnconvert.Engine = (*Engine)(nil)

// Engine implements rknnconvert.Engine on top of rknn-toolkit2. It is not
// safe for concurrent use.
type Engine struct {
	python         string
	verbose        bool
	stderr         io.Writer
	env            []string
	releaseTimeout time.Duration
	cmd            *exec.Cmd
	conn           *conn
}

// Option configures an Engine
type Option func(*Engine)

// WithPython sets the Python interpreter that has rknn-toolkit2 installed,
// defaults to python3 on the PATH
func WithPython(path string) Option {
	return func(e *Engine) {
		e.python = path
	}
}

// WithVerbose enables the toolkit's verbose logging
func WithVerbose(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// WithStderr sets where the toolkit's own log output is written, defaults to
// os.Stderr
func WithStderr(w io.Writer) Option {
	return func(e *Engine) {
		e.stderr = w
	}
}

// WithEnv adds KEY=value environment variables to the toolkit process
func WithEnv(env ...string) Option {
	return func(e *Engine) {
		e.env = append(e.env, env...)
	}
}

// New returns an Engine, the toolkit process is started by Init
func New(opts ...Option) *Engine {

	e := &Engine{
		python:         "python3",
		stderr:         os.Stderr,
		releaseTimeout: DefaultReleaseTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Init starts the toolkit process and creates the RKNN object
func (e *Engine) Init(ctx context.Context) error {

	if e.conn != nil {
		return errors.New("toolkit engine already initialized")
	}

	cmd := exec.CommandContext(ctx, e.python, "-u", "-c", bridgeScript)
	cmd.Stderr = e.stderr
	cmd.Env = append(os.Environ(), e.env...)

	stdin, err := cmd.StdinPipe()

	if err != nil {
		return fmt.Errorf("error creating toolkit stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()

	if err != nil {
		return fmt.Errorf("error creating toolkit stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting %s: %w", e.python, err)
	}

	e.cmd = cmd
	e.conn = newConn(stdout, stdin)

	if err := e.do(ctx, "init", map[string]any{"verbose": e.verbose}); err != nil {
		_ = e.shutdown(true)
		return err
	}

	return nil
}

// Config wraps RKNN.config()
func (e *Engine) Config(ctx context.Context, cfg rknnconvert.ModelConfig) error {

	args := map[string]any{
		"mean_values":     cfg.MeanValues,
		"std_values":      cfg.StdValues,
		"target_platform": cfg.TargetPlatform.String(),
	}

	q := cfg.Quantization

	if q.Dtype != "" {
		args["quantized_dtype"] = q.Dtype
	}

	if q.Algorithm != "" {
		args["quantized_algorithm"] = q.Algorithm
	}

	if q.Method != "" {
		args["quantized_method"] = q.Method
	}

	if q.OptimizationLevel != 0 {
		args["optimization_level"] = q.OptimizationLevel
	}

	return e.do(ctx, "config", args)
}

// LoadONNX wraps RKNN.load_onnx()
func (e *Engine) LoadONNX(ctx context.Context, modelFile string) error {
	return e.do(ctx, "load_onnx", map[string]any{"model": modelFile})
}

// Build wraps RKNN.build()
func (e *Engine) Build(ctx context.Context, opts rknnconvert.BuildOptions) error {

	args := map[string]any{"do_quantization": opts.DoQuantization}

	if opts.DoQuantization {
		args["dataset"] = opts.Dataset
	}

	return e.do(ctx, "build", args)
}

// ExportRKNN wraps RKNN.export_rknn()
func (e *Engine) ExportRKNN(ctx context.Context, file string) error {
	return e.do(ctx, "export_rknn", map[string]any{"export_path": file})
}

// LoadRKNN wraps RKNN.load_rknn()
func (e *Engine) LoadRKNN(ctx context.Context, file string) error {
	return e.do(ctx, "load_rknn", map[string]any{"path": file})
}

// Release wraps RKNN.release() and stops the toolkit process. Calling it on
// an Engine that was never initialized is a no-op.
func (e *Engine) Release() error {

	if e.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.releaseTimeout)
	defer cancel()

	err := e.do(ctx, "release", nil)

	return errors.Join(err, e.shutdown(err != nil))
}

// do sends op to the toolkit, a non-zero return becomes a StatusError
func (e *Engine) do(ctx context.Context, op string, args map[string]any) error {

	if e.conn == nil {
		return fmt.Errorf("toolkit %s called before init", op)
	}

	resp, err := e.conn.call(ctx, op, args)

	if err != nil {
		return err
	}

	if resp.Ret != 0 {
		return &rknnconvert.StatusError{
			Op:   op,
			Code: rknnconvert.Status(resp.Ret),
			Msg:  resp.Error,
		}
	}

	return nil
}

// shutdown closes the connection and waits for the process to exit, killing
// it first when it may not respond
func (e *Engine) shutdown(kill bool) error {

	closeErr := e.conn.close()
	e.conn = nil

	if e.cmd == nil {
		return closeErr
	}

	if kill && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}

	waitErr := e.cmd.Wait()
	e.cmd = nil

	if kill {
		// exit status of a killed process is expected
		return nil
	}

	if waitErr != nil {
		return fmt.Errorf("toolkit process exited: %w", waitErr)
	}

	return nil
}
