package rknnconvert

import (
	"context"
	"os"
	"testing"
)

// fakeEngine records the calls made to it. Errors listed in fail are
// returned from the named operation.
type fakeEngine struct {
	t        *testing.T
	calls    []string
	fail     map[string]error
	released bool
	releases int
	// modelCheck makes load_onnx and load_rknn fail like the toolkit does
	// when the file is missing
	modelCheck bool
	config     ModelConfig
	build      BuildOptions
}

func newFakeEngine(t *testing.T) *fakeEngine {
	return &fakeEngine{t: t, fail: make(map[string]error), modelCheck: true}
}

func (f *fakeEngine) call(op string) error {

	if f.released {
		f.t.Errorf("%s called after release", op)
	}

	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeEngine) Init(ctx context.Context) error {
	return f.call("init")
}

func (f *fakeEngine) Config(ctx context.Context, cfg ModelConfig) error {
	f.config = cfg
	return f.call("config")
}

func (f *fakeEngine) LoadONNX(ctx context.Context, modelFile string) error {

	if err := f.call("load_onnx"); err != nil {
		return err
	}

	return f.checkFile("load_onnx", modelFile)
}

func (f *fakeEngine) Build(ctx context.Context, opts BuildOptions) error {
	f.build = opts
	return f.call("build")
}

func (f *fakeEngine) ExportRKNN(ctx context.Context, file string) error {

	if err := f.call("export_rknn"); err != nil {
		return err
	}

	return os.WriteFile(file, []byte("rknn"), 0o644)
}

func (f *fakeEngine) LoadRKNN(ctx context.Context, file string) error {

	if err := f.call("load_rknn"); err != nil {
		return err
	}

	return f.checkFile("load_rknn", file)
}

func (f *fakeEngine) Release() error {

	f.releases++
	err := f.call("release")
	f.released = true

	return err
}

func (f *fakeEngine) checkFile(op, file string) error {

	if !f.modelCheck {
		return nil
	}

	if _, err := os.Stat(file); err != nil {
		return &StatusError{Op: op, Code: StatusFail, Msg: err.Error()}
	}

	return nil
}
