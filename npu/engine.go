package npu

import (
	"context"
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"log"
)

var _ rknnconvert.Engine = (*Engine)(nil)

// Engine implements rknnconvert.Engine on a Rockchip board where only the
// NPU runtime is installed. It can load a pre-built RKNN model but cannot
// build one, those operations return rknnconvert.ErrUnsupported.
type Engine struct {
	core CoreMask
	rt   *Runtime
	log  *log.Logger
}

// NewEngine returns an Engine for the given platform. When logger is not nil
// the loaded model's SDK version and tensors are written to it.
func NewEngine(platform rknnconvert.Platform, logger *log.Logger) *Engine {
	return &Engine{
		core: CoreMaskFor(platform),
		log:  logger,
	}
}

// Init has nothing to acquire until a model is loaded
func (e *Engine) Init(ctx context.Context) error {
	return nil
}

func (e *Engine) Config(ctx context.Context, cfg rknnconvert.ModelConfig) error {
	return unsupported("config")
}

func (e *Engine) LoadONNX(ctx context.Context, modelFile string) error {
	return unsupported("load_onnx")
}

func (e *Engine) Build(ctx context.Context, opts rknnconvert.BuildOptions) error {
	return unsupported("build")
}

func (e *Engine) ExportRKNN(ctx context.Context, file string) error {
	return unsupported("export_rknn")
}

// LoadRKNN loads the model onto the NPU
func (e *Engine) LoadRKNN(ctx context.Context, file string) error {

	if e.rt != nil {
		return fmt.Errorf("a model is already loaded")
	}

	rt, err := Open(file, e.core)

	if err != nil {
		return err
	}

	e.rt = rt

	if e.log != nil {
		if err := Describe(rt, e.log.Writer()); err != nil {
			e.log.Printf("unable to query model: %v", err)
		}
	}

	return nil
}

// Runtime returns the loaded model, or nil before LoadRKNN succeeds
func (e *Engine) Runtime() *Runtime {
	return e.rt
}

// Release destroys the loaded model, if any
func (e *Engine) Release() error {

	if e.rt == nil {
		return nil
	}

	err := e.rt.Close()
	e.rt = nil

	return err
}

func unsupported(op string) error {
	return fmt.Errorf("%s requires rknn-toolkit2 on the host: %w", op, rknnconvert.ErrUnsupported)
}
