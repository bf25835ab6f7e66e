package rknnconvert

import (
	"errors"
	"fmt"
)

// Status is a return code reported by the RKNN toolkit or runtime. The values
// mirror those of rknn_api.h so codes from the Python toolkit and the C
// runtime can be described the same way.
type Status int

// status code values returned by the RKNN toolkit and runtime
const (
	Success                   Status = 0
	StatusFail                Status = -1
	StatusTimeout             Status = -2
	StatusDeviceUnavailable   Status = -3
	StatusMallocFail          Status = -4
	StatusParamInvalid        Status = -5
	StatusModelInvalid        Status = -6
	StatusCtxInvalid          Status = -7
	StatusInputInvalid        Status = -8
	StatusOutputInvalid       Status = -9
	StatusDeviceMismatch      Status = -10
	StatusPreCompiledModel    Status = -11
	StatusOptimizationVersion Status = -12
	StatusPlatformMismatch    Status = -13
)

// String returns a readable description of the status code
func (s Status) String() string {
	switch s {
	case Success:
		return "execution successful"
	case StatusFail:
		return "execution failed"
	case StatusTimeout:
		return "execution timed out"
	case StatusDeviceUnavailable:
		return "device is unavailable"
	case StatusMallocFail:
		return "memory allocation failed"
	case StatusParamInvalid:
		return "parameter is invalid"
	case StatusModelInvalid:
		return "model file is invalid"
	case StatusCtxInvalid:
		return "context is invalid"
	case StatusInputInvalid:
		return "input is invalid"
	case StatusOutputInvalid:
		return "output is invalid"
	case StatusDeviceMismatch:
		return "device mismatch, please update rknn sdk and npu driver/firmware"
	case StatusPreCompiledModel:
		return "the RKNN model uses pre_compile mode, but is not compatible with current driver"
	case StatusOptimizationVersion:
		return "the RKNN model optimization level is not compatible with current driver"
	case StatusPlatformMismatch:
		return "the RKNN model target platform is not compatible with the current platform"
	default:
		return fmt.Sprintf("unknown status code %d", int(s))
	}
}

var (
	// ErrReleased is returned when a Session is used after Release
	ErrReleased = errors.New("session has been released")
	// ErrUnsupported is returned by engines that cannot perform an operation,
	// such as building a model on a board that only has the NPU runtime
	ErrUnsupported = errors.New("operation not supported by engine")
)

// StatusError is returned by an Engine when the underlying toolkit call
// completed but reported a non-zero status code
type StatusError struct {
	// Op is the toolkit operation called, eg: load_onnx
	Op string
	// Code is the status code returned verbatim
	Code Status
	// Msg is an optional diagnostic reported alongside the code
	Msg string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s failed with code %d: %s", e.Op, int(e.Code), e.Msg)
	}

	return fmt.Sprintf("%s failed with code %d, error: %s", e.Op, int(e.Code), e.Code.String())
}

// Stage identifies a step of the conversion workflow
type Stage int

const (
	StageInit Stage = iota
	StageConfigure
	StageLoadModel
	StageBuild
	StageExport
	StageLoadArtifact
	StagePublish
	StageRelease
)

// String returns the stage name
func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageConfigure:
		return "configure"
	case StageLoadModel:
		return "load model"
	case StageBuild:
		return "build model"
	case StageExport:
		return "export rknn model"
	case StageLoadArtifact:
		return "load rknn model"
	case StagePublish:
		return "publish rknn model"
	case StageRelease:
		return "release"
	default:
		return "unknown"
	}
}

// StageError reports a failed workflow stage together with the status code
// that should become the process exit code
type StageError struct {
	Stage Stage
	Code  Status
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError wraps err for the given stage, taking the status code from a
// StatusError when one is present in the chain
func newStageError(stage Stage, err error) *StageError {
	return &StageError{
		Stage: stage,
		Code:  StatusCode(err),
		Err:   err,
	}
}

// StatusCode returns the status code carried by err. A nil error is Success,
// errors without a code, or a StatusError holding a zero code, map to
// StatusFail so callers never exit zero on failure.
func StatusCode(err error) Status {

	if err == nil {
		return Success
	}

	var stageErr *StageError

	if errors.As(err, &stageErr) && stageErr.Code != Success {
		return stageErr.Code
	}

	var statusErr *StatusError

	if errors.As(err, &statusErr) && statusErr.Code != Success {
		return statusErr.Code
	}

	return StatusFail
}

// TransitionError is returned when a Session operation is called from a state
// that does not permit it
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Op, e.From)
}
