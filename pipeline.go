package rknnconvert

import (
	"context"
	"fmt"
	"github.com/swdee/go-rknnconvert/dataset"
	"github.com/swdee/go-rknnconvert/onnxinfo"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"log"
	"os"
)

// Result describes a completed, or failed, Pipeline run
type Result struct {
	// Mode is the path that was executed, either ModeBuild or ModeLoad
	Mode Mode
	// Artifact is the RKNN file exported or loaded
	Artifact string
	// Published is the URL the artifact was copied to, if any
	Published string
	// Model holds the ONNX input and output tensors when they could be read
	Model *onnxinfo.Model
	// States is the session state history ending in StateReleased
	States []State
}

// Pipeline drives an Engine through the conversion workflow for a single
// Config. It executes exactly one of the build/export path or the load
// artifact path and always releases the engine.
type Pipeline struct {
	cfg    Config
	engine Engine
	fs     afs.Service
	log    *log.Logger
	// inspect enables reading the ONNX model before it is loaded
	inspect bool
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the logger progress messages are written to
func WithLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithFileSystem sets the file system used to create the output directory,
// check for existing artifacts and publish them
func WithFileSystem(fs afs.Service) PipelineOption {
	return func(p *Pipeline) {
		p.fs = fs
	}
}

// WithInspection enables or disables reading the ONNX model's tensors before
// loading, it is enabled by default
func WithInspection(enable bool) PipelineOption {
	return func(p *Pipeline) {
		p.inspect = enable
	}
}

// NewPipeline validates cfg and returns a Pipeline for it. The config is
// copied so later changes by the caller have no effect.
func NewPipeline(cfg Config, engine Engine, opts ...PipelineOption) (*Pipeline, error) {

	if engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg.clone(),
		engine:  engine,
		fs:      afs.New(),
		log:     log.New(os.Stderr, "", 0),
		inspect: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Config returns a copy of the pipeline's config
func (p *Pipeline) Config() Config {
	return p.cfg.clone()
}

// Run executes the workflow. Stage failures are returned as *StageError
// whose Code should become the process exit code. The Result is returned
// whenever the engine was initialized, including on failure.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {

	sess, err := NewSession(ctx, p.engine)

	if err != nil {
		p.log.Println("init rknn failed!")
		return nil, err
	}

	res = &Result{
		Artifact: p.cfg.ArtifactPath(),
	}

	defer func() {
		relErr := sess.Release()
		res.States = sess.History()

		if relErr != nil {
			p.log.Printf("release rknn failed: %v", relErr)

			if err == nil {
				err = relErr
			}
		}
	}()

	res.Mode, err = p.resolveMode(ctx)

	if err != nil {
		return res, err
	}

	if res.Mode == ModeLoad {
		return res, p.loadArtifact(ctx, sess)
	}

	return res, p.build(ctx, sess, res)
}

// resolveMode turns ModeAuto into ModeBuild or ModeLoad depending on whether
// the artifact already exists
func (p *Pipeline) resolveMode(ctx context.Context) (Mode, error) {

	if p.cfg.Mode != ModeAuto {
		return p.cfg.Mode, nil
	}

	exists, err := p.fs.Exists(ctx, p.cfg.ArtifactPath())

	if err != nil {
		return "", fmt.Errorf("error checking for artifact %s: %w", p.cfg.ArtifactPath(), err)
	}

	if exists {
		p.log.Printf("found existing RKNN model: %s", p.cfg.ArtifactPath())
		return ModeLoad, nil
	}

	return ModeBuild, nil
}

// build runs configure, load, build and export
func (p *Pipeline) build(ctx context.Context, sess *Session, res *Result) error {

	if err := sess.Configure(ctx, p.cfg.ModelConfig()); err != nil {
		p.log.Println("config model failed!")
		return err
	}

	p.log.Println("--> Loading model")

	if p.inspect {
		res.Model = p.inspectModel()
	}

	if err := sess.LoadModel(ctx, p.cfg.ModelPath); err != nil {
		p.log.Println("load model failed!")
		return err
	}

	p.log.Println("done")

	p.log.Println("--> Building model")
	opts := p.cfg.BuildOptions()

	if opts.DoQuantization {
		if err := p.checkDataset(opts.Dataset); err != nil {
			sess.Fail()
			p.log.Println("build model failed.")
			return newStageError(StageBuild, err)
		}
	}

	if err := sess.Build(ctx, opts); err != nil {
		p.log.Println("build model failed.")
		return err
	}

	p.log.Println("done")

	if err := EnsureDir(ctx, p.fs, p.cfg.OutDir); err != nil {
		sess.Fail()
		p.log.Println("Export rknn model failed.")
		return newStageError(StageExport, err)
	}

	artifact := p.cfg.ArtifactPath()
	p.log.Printf("--> Export RKNN model: %s", artifact)

	if err := sess.Export(ctx, artifact); err != nil {
		p.log.Println("Export rknn model failed.")
		return err
	}

	p.log.Println("done")

	if p.cfg.Publish != "" {
		dest := url.Join(p.cfg.Publish, p.cfg.ArtifactName())
		p.log.Printf("--> Publish RKNN model: %s", dest)

		if err := p.fs.Copy(ctx, artifact, dest); err != nil {
			p.log.Println("publish rknn model failed.")
			return newStageError(StagePublish, err)
		}

		res.Published = dest
		p.log.Println("done")
	}

	return nil
}

// loadArtifact runs the alternate path of loading a pre-built artifact
func (p *Pipeline) loadArtifact(ctx context.Context, sess *Session) error {

	artifact := p.cfg.ArtifactPath()
	p.log.Printf("--> Loading RKNN model: %s", artifact)

	if err := sess.LoadArtifact(ctx, artifact); err != nil {
		p.log.Println("load rknn model failed.")
		return err
	}

	p.log.Println("done")
	return nil
}

// checkDataset verifies the calibration manifest can be read and every entry
// it lists exists
func (p *Pipeline) checkDataset(file string) error {

	manifest, err := dataset.Load(file)

	if err != nil {
		return err
	}

	if err := manifest.CheckExists(); err != nil {
		return err
	}

	p.log.Printf("calibration dataset: %d entries", manifest.Len())
	return nil
}

// inspectModel reads the ONNX model's tensors for logging. Problems are only
// logged, the engine remains the authority on whether the model loads.
func (p *Pipeline) inspectModel() *onnxinfo.Model {

	model, err := onnxinfo.Read(p.cfg.ModelPath)

	if err != nil {
		p.log.Printf("unable to inspect ONNX model: %v", err)
		return nil
	}

	for _, in := range model.Inputs {
		p.log.Printf("  input %s", in.String())
	}

	for _, out := range model.Outputs {
		p.log.Printf("  output %s", out.String())
	}

	if w, h, ok := model.InputSize(); ok && (w != p.cfg.Width || h != p.cfg.Height) {
		p.log.Printf("warning: model input is %dx%d but artifact is named for %dx%d",
			w, h, p.cfg.Width, p.cfg.Height)
	}

	return model
}
