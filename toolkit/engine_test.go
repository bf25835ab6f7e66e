package toolkit

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-rknnconvert"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// fakeBridge stands in for the Python bridge process, answering each op with
// a scripted response
type fakeBridge struct {
	mu       sync.Mutex
	requests []request
	replies  map[string]response
	// silent ops are read but never answered
	silent map[string]bool
}

func (f *fakeBridge) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ops := make([]string, len(f.requests))

	for i, r := range f.requests {
		ops[i] = r.Op
	}

	return ops
}

func (f *fakeBridge) request(op string) request {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.requests {
		if r.Op == op {
			return r
		}
	}

	return request{}
}

// newFakeEngine returns an Engine connected to a fakeBridge through pipes
func newFakeEngine(t *testing.T, f *fakeBridge) *Engine {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		dec := json.NewDecoder(reqR)
		enc := json.NewEncoder(respW)

		for {
			var req request

			if err := dec.Decode(&req); err != nil {
				respW.Close()
				return
			}

			f.mu.Lock()
			f.requests = append(f.requests, req)
			resp := f.replies[req.Op]
			silent := f.silent[req.Op]
			f.mu.Unlock()

			if silent {
				continue
			}

			resp.ID = req.ID

			if err := enc.Encode(resp); err != nil {
				return
			}
		}
	}()

	e := New()
	e.conn = newConn(respR, reqW)

	return e
}

func TestEngineWorkflow(t *testing.T) {

	f := &fakeBridge{}
	e := newFakeEngine(t, f)
	ctx := context.Background()

	cfg := rknnconvert.DefaultConfig()
	cfg.Quantization.Algorithm = "mmse"

	require.NoError(t, e.Config(ctx, cfg.ModelConfig()))
	require.NoError(t, e.LoadONNX(ctx, "./best.onnx"))
	require.NoError(t, e.Build(ctx, cfg.BuildOptions()))
	require.NoError(t, e.ExportRKNN(ctx, cfg.ArtifactPath()))
	require.NoError(t, e.Release())

	assert.Equal(t, []string{"config", "load_onnx", "build", "export_rknn", "release"}, f.ops())

	conf := f.request("config").Args
	assert.Equal(t, "rk3588", conf["target_platform"])
	assert.Equal(t, "mmse", conf["quantized_algorithm"])
	assert.NotContains(t, conf, "quantized_dtype")
	assert.NotContains(t, conf, "optimization_level")

	means := conf["mean_values"].([]any)
	require.Len(t, means, 1)
	assert.InDeltaSlice(t, []float64{0.485, 0.456, 0.406}, toFloats(means[0].([]any)), 1e-6)

	assert.Equal(t, "./best.onnx", f.request("load_onnx").Args["model"])
	assert.Equal(t, map[string]any{"do_quantization": true, "dataset": "./dataset.txt"},
		f.request("build").Args)
	assert.Equal(t, filepath.Join("rknn_models", "5s_cls-640-640_rm_transpose_rk3588.rknn"),
		f.request("export_rknn").Args["export_path"])

	// released engines are a no-op
	require.NoError(t, e.Release())
}

func TestEngineBuildWithoutQuantization(t *testing.T) {

	f := &fakeBridge{}
	e := newFakeEngine(t, f)

	require.NoError(t, e.Build(context.Background(), rknnconvert.BuildOptions{Dataset: "ignored.txt"}))
	assert.Equal(t, map[string]any{"do_quantization": false}, f.request("build").Args)
	require.NoError(t, e.Release())
}

func TestEngineStatusError(t *testing.T) {

	f := &fakeBridge{
		replies: map[string]response{
			"load_onnx": {Ret: -6, Error: "FileNotFoundError: best.onnx"},
		},
	}
	e := newFakeEngine(t, f)

	err := e.LoadONNX(context.Background(), "best.onnx")
	require.Error(t, err)

	var statusErr *rknnconvert.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "load_onnx", statusErr.Op)
	assert.Equal(t, rknnconvert.StatusModelInvalid, statusErr.Code)
	assert.Contains(t, err.Error(), "FileNotFoundError")
	assert.Equal(t, rknnconvert.StatusModelInvalid, rknnconvert.StatusCode(err))

	require.NoError(t, e.Release())
}

func TestEngineContextCancelled(t *testing.T) {

	f := &fakeBridge{silent: map[string]bool{"build": true}}
	e := newFakeEngine(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Build(ctx, rknnconvert.BuildOptions{})
	require.ErrorIs(t, err, context.Canceled)

	// the stream is no longer usable
	err = e.ExportRKNN(context.Background(), "out.rknn")
	require.ErrorIs(t, err, context.Canceled)

	// release still closes the connection
	require.Error(t, e.Release())
	assert.Nil(t, e.conn)
}

func TestEngineNotInitialized(t *testing.T) {

	e := New()

	require.NoError(t, e.Release())
	require.Error(t, e.LoadRKNN(context.Background(), "model.rknn"))
}

func TestEngineInitMissingPython(t *testing.T) {

	e := New(WithPython(filepath.Join(t.TempDir(), "python3")), WithStderr(io.Discard))

	err := e.Init(context.Background())
	require.Error(t, err)
	assert.Nil(t, e.conn)
	require.NoError(t, e.Release())
}

// stubToolkit is an rknn.api module whose native side writes straight to
// file descriptor 1, as the toolkit's compiled libraries do
const stubToolkit = `import os


def _native(msg):
    os.write(1, (msg + "\n").encode())


class RKNN:
    def __init__(self, verbose=False):
        _native("I rknn-toolkit2 version: 1.6.0")

    def config(self, **kwargs):
        _native("I config done")
        return 0

    def load_onnx(self, model):
        print("W load_onnx: python level output")
        return 0

    def build(self, do_quantization=False, dataset=None):
        _native("I build done")
        return -3 if do_quantization else 0

    def export_rknn(self, export_path):
        return 0

    def release(self):
        _native("I release done")
`

func TestBridgeNativeStdout(t *testing.T) {

	python, err := exec.LookPath("python3")

	if err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	pkg := filepath.Join(dir, "rknn", "api")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rknn", "__init__.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "__init__.py"), []byte(stubToolkit), 0o644))

	var stderr bytes.Buffer
	e := New(WithPython(python), WithEnv("PYTHONPATH="+dir), WithStderr(&stderr))
	ctx := context.Background()

	require.NoError(t, e.Init(ctx))

	cfg := rknnconvert.DefaultConfig()
	require.NoError(t, e.Config(ctx, cfg.ModelConfig()))
	require.NoError(t, e.LoadONNX(ctx, "./best.onnx"))
	require.NoError(t, e.Build(ctx, rknnconvert.BuildOptions{}))

	err = e.Build(ctx, rknnconvert.BuildOptions{DoQuantization: true, Dataset: "./dataset.txt"})
	require.Error(t, err)
	assert.Equal(t, rknnconvert.StatusDeviceUnavailable, rknnconvert.StatusCode(err))

	require.NoError(t, e.ExportRKNN(ctx, "out.rknn"))
	require.NoError(t, e.Release())

	out := stderr.String()
	assert.Contains(t, out, "I rknn-toolkit2 version: 1.6.0")
	assert.Contains(t, out, "I build done")
	assert.Contains(t, out, "W load_onnx: python level output")
	assert.Contains(t, out, "I release done")
}

func TestBridgeScriptEmbedded(t *testing.T) {
	assert.Contains(t, bridgeScript, "from rknn.api import RKNN")
	assert.Contains(t, bridgeScript, "export_rknn")
}

func toFloats(in []any) []float64 {

	out := make([]float64, len(in))

	for i, v := range in {
		out[i] = v.(float64)
	}

	return out
}
