package rknnconvert

import (
	"context"
	"fmt"
	"sync"
)

// State is the position of a Session in the conversion workflow
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateModelLoaded
	StateBuilt
	StateExported
	StateArtifactLoaded
	StateFailed
	StateReleased
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateConfigured:
		return "Configured"
	case StateModelLoaded:
		return "ModelLoaded"
	case StateBuilt:
		return "Built"
	case StateExported:
		return "Exported"
	case StateArtifactLoaded:
		return "ArtifactLoaded"
	case StateFailed:
		return "Failed"
	case StateReleased:
		return "Released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one Engine handle and enforces the order of the workflow
// stages. Each stage may only be called from the state the previous stage
// leaves behind, a failed stage moves the session to StateFailed. The engine
// handle is released at most once and never used afterwards.
type Session struct {
	engine  Engine
	state   State
	history []State
	// release guards Engine.Release so it runs at most once
	release    sync.Once
	releaseErr error
}

// NewSession initializes the engine and returns a Session in the
// Uninitialized state
func NewSession(ctx context.Context, engine Engine) (*Session, error) {

	if err := engine.Init(ctx); err != nil {
		return nil, newStageError(StageInit, err)
	}

	return &Session{
		engine:  engine,
		state:   StateUninitialized,
		history: []State{StateUninitialized},
	}, nil
}

// State returns the current state
func (s *Session) State() State {
	return s.state
}

// History returns every state the session has passed through in order
func (s *Session) History() []State {
	return append([]State(nil), s.history...)
}

// Configure applies the model configuration
func (s *Session) Configure(ctx context.Context, cfg ModelConfig) error {
	return s.step(StageConfigure, StateUninitialized, StateConfigured, func() error {
		return s.engine.Config(ctx, cfg)
	})
}

// LoadModel loads the ONNX source model
func (s *Session) LoadModel(ctx context.Context, modelFile string) error {
	return s.step(StageLoadModel, StateConfigured, StateModelLoaded, func() error {
		return s.engine.LoadONNX(ctx, modelFile)
	})
}

// Build builds the loaded model
func (s *Session) Build(ctx context.Context, opts BuildOptions) error {
	return s.step(StageBuild, StateModelLoaded, StateBuilt, func() error {
		return s.engine.Build(ctx, opts)
	})
}

// Export writes the built model to file
func (s *Session) Export(ctx context.Context, file string) error {
	return s.step(StageExport, StateBuilt, StateExported, func() error {
		return s.engine.ExportRKNN(ctx, file)
	})
}

// LoadArtifact loads a pre-built RKNN model, bypassing configure, load, build
// and export
func (s *Session) LoadArtifact(ctx context.Context, file string) error {
	return s.step(StageLoadArtifact, StateUninitialized, StateArtifactLoaded, func() error {
		return s.engine.LoadRKNN(ctx, file)
	})
}

// Fail moves the session to StateFailed for a failure detected outside the
// engine, such as an unusable calibration dataset
func (s *Session) Fail() {
	if s.state != StateReleased {
		s.setState(StateFailed)
	}
}

// Release frees the engine handle. It is safe to call multiple times and
// from any state, only the first call reaches the engine.
func (s *Session) Release() error {

	s.release.Do(func() {
		if err := s.engine.Release(); err != nil {
			s.releaseErr = newStageError(StageRelease, err)
		}

		s.setState(StateReleased)
	})

	return s.releaseErr
}

// step runs call if the session is in state from, moving to state to on
// success or StateFailed on error
func (s *Session) step(stage Stage, from, to State, call func() error) error {

	if s.state == StateReleased {
		return ErrReleased
	}

	if s.state != from {
		return &TransitionError{Op: stage.String(), From: s.state}
	}

	if err := call(); err != nil {
		s.setState(StateFailed)
		return newStageError(stage, err)
	}

	s.setState(to)
	return nil
}

func (s *Session) setState(state State) {
	s.state = state
	s.history = append(s.history, state)
}
