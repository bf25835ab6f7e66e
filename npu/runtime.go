/*
Package npu provides cgo bindings to the RKNN runtime (librknnrt) used to
load compiled .rknn models on a Rockchip board, query their tensors and run
single image inference to check an exported model.

These bindings have been used on the RK3588 and other RK35xx boards with the
runtime library and rknn_api.h installed.
*/
package npu

/*
#cgo LDFLAGS: -lrknnrt
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"github.com/swdee/go-rknnconvert"
	"os"
	"unsafe"
)

// CoreMask wraps C.rknn_core_mask and selects which NPU cores run the model
type CoreMask int

// rknn_core_mask values. Auto picks an idle core, the others pin the model to
// specific cores. Only multi-core NPUs such as the rk3588 support setting a
// mask, use NPUSkipSetCore on the others.
const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUCore01      CoreMask = C.RKNN_NPU_CORE_0_1
	NPUCore012     CoreMask = C.RKNN_NPU_CORE_0_1_2
	NPUSkipSetCore CoreMask = 9999
)

// CoreMaskFor returns the core mask to use for a platform
func CoreMaskFor(p rknnconvert.Platform) CoreMask {

	if p.NPUCores() > 1 {
		return NPUCoreAuto
	}

	return NPUSkipSetCore
}

// Runtime is a loaded RKNN model
type Runtime struct {
	ctx     C.rknn_context
	inputs  []TensorAttr
	outputs []TensorAttr
	closed  bool
}

// Open loads the compiled RKNN model file onto the NPU and caches its tensor
// attributes
func Open(modelFile string, core CoreMask) (*Runtime, error) {

	// check the file in Go first for a clearer error than the C API gives
	info, err := os.Stat(modelFile)

	if err != nil {
		return nil, &rknnconvert.StatusError{
			Op:   "rknn_init",
			Code: rknnconvert.StatusModelInvalid,
			Msg:  err.Error(),
		}
	}

	if info.IsDir() {
		return nil, &rknnconvert.StatusError{
			Op:   "rknn_init",
			Code: rknnconvert.StatusModelInvalid,
			Msg:  fmt.Sprintf("%s is a directory", modelFile),
		}
	}

	r := &Runtime{}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	// a size of zero tells rknn_init the pointer is a file path
	if ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil); ret != C.RKNN_SUCC {
		return nil, statusError("rknn_init", ret)
	}

	if core != NPUSkipSetCore {
		if ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(core)); ret != C.RKNN_SUCC {
			r.Close()
			return nil, statusError("rknn_set_core_mask", ret)
		}
	}

	if err := r.queryTensors(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// Close destroys the RKNN context, it is safe to call more than once
func (r *Runtime) Close() error {

	if r.closed {
		return nil
	}

	r.closed = true

	if ret := C.rknn_destroy(r.ctx); ret != C.RKNN_SUCC {
		return statusError("rknn_destroy", ret)
	}

	return nil
}

// SDKVersion holds the RKNN API and driver versions
type SDKVersion struct {
	DriverVersion string
	APIVersion    string
}

// SDKVersion queries the runtime for its versions
func (r *Runtime) SDKVersion() (SDKVersion, error) {

	var ver C.rknn_sdk_version

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_SDK_VERSION,
		unsafe.Pointer(&ver), C.uint(C.sizeof_rknn_sdk_version))

	if ret != C.RKNN_SUCC {
		return SDKVersion{}, statusError("rknn_query RKNN_QUERY_SDK_VERSION", ret)
	}

	return SDKVersion{
		DriverVersion: C.GoString(&ver.drv_version[0]),
		APIVersion:    C.GoString(&ver.api_version[0]),
	}, nil
}

// Inputs returns the model's input tensor attributes
func (r *Runtime) Inputs() []TensorAttr {
	return r.inputs
}

// Outputs returns the model's output tensor attributes
func (r *Runtime) Outputs() []TensorAttr {
	return r.outputs
}

// queryTensors fetches the input and output tensor attributes
func (r *Runtime) queryTensors() error {

	var num C.rknn_input_output_num

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_IN_OUT_NUM,
		unsafe.Pointer(&num), C.uint(C.sizeof_rknn_input_output_num))

	if ret != C.RKNN_SUCC {
		return statusError("rknn_query RKNN_QUERY_IN_OUT_NUM", ret)
	}

	var err error

	r.inputs, err = r.queryAttrs(C.RKNN_QUERY_INPUT_ATTR, uint32(num.n_input))

	if err != nil {
		return err
	}

	r.outputs, err = r.queryAttrs(C.RKNN_QUERY_OUTPUT_ATTR, uint32(num.n_output))
	return err
}

// queryAttrs queries n tensor attributes of the given kind
func (r *Runtime) queryAttrs(cmd C.rknn_query_cmd, n uint32) ([]TensorAttr, error) {

	attrs := make([]TensorAttr, n)

	for i := uint32(0); i < n; i++ {
		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, cmd, unsafe.Pointer(&cAttr), C.uint(C.sizeof_rknn_tensor_attr))

		if ret != C.RKNN_SUCC {
			return nil, statusError("rknn_query tensor attr", ret)
		}

		attrs[i] = convertTensorAttr(&cAttr)
	}

	return attrs, nil
}

// statusError converts a C return code into a StatusError
func statusError(op string, ret C.int) error {
	return &rknnconvert.StatusError{
		Op:   op,
		Code: rknnconvert.Status(ret),
	}
}
