package npu

/*
#include "rknn_api.h"
#include <string.h>
*/
import "C"
import (
	"fmt"
	"github.com/x448/float16"
	"gocv.io/x/gocv"
	"unsafe"
)

// Output is a model output tensor copied into Go memory. Exactly one of
// Int8 or Float32 is set.
type Output struct {
	Index   uint32
	Int8    []int8
	Float32 []float32
}

// Run performs inference on a single NHWC uint8 image already sized to the
// model input. When wantFloat is set the runtime dequantizes outputs to
// float32, otherwise quantized int8 outputs are returned as is.
func (r *Runtime) Run(img gocv.Mat, wantFloat bool) ([]Output, error) {

	if r.closed {
		return nil, fmt.Errorf("runtime is closed")
	}

	if !img.IsContinuous() {
		img = img.Clone()
		defer img.Close()
	}

	data, err := img.DataPtrUint8()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input image is empty")
	}

	var input C.rknn_input
	input.index = 0
	input.buf = unsafe.Pointer(&data[0])
	input.size = C.uint32_t(len(data))
	input.pass_through = 0
	input._type = C.RKNN_TENSOR_UINT8
	input.fmt = C.RKNN_TENSOR_NHWC

	if ret := C.rknn_inputs_set(r.ctx, 1, &input); ret != C.RKNN_SUCC {
		return nil, statusError("rknn_inputs_set", ret)
	}

	if ret := C.rknn_run(r.ctx, nil); ret < 0 {
		return nil, statusError("rknn_run", ret)
	}

	return r.fetchOutputs(wantFloat)
}

// rawOutput reports whether outputs of type t can be copied without
// conversion by the runtime, all other types are fetched as float32
func rawOutput(t TensorType) bool {
	return t == TensorInt8 || t == TensorFloat16
}

// fetchOutputs gets the inference results, copies them into Go slices and
// releases the C buffers
func (r *Runtime) fetchOutputs(wantFloat bool) ([]Output, error) {

	n := len(r.outputs)

	if n == 0 {
		return nil, fmt.Errorf("model has no outputs")
	}

	cOutputs := make([]C.rknn_output, n)
	floats := make([]bool, n)

	for i := range cOutputs {
		cOutputs[i].index = C.uint32_t(i)
		floats[i] = wantFloat || !rawOutput(r.outputs[i].Type)

		if floats[i] {
			cOutputs[i].want_float = 1
		}
	}

	if ret := C.rknn_outputs_get(r.ctx, C.uint32_t(n), &cOutputs[0], nil); ret < 0 {
		return nil, statusError("rknn_outputs_get", ret)
	}

	outputs := make([]Output, n)

	for i, c := range cOutputs {
		outputs[i] = Output{Index: uint32(c.index)}
		size := int(c.size)

		switch {
		case floats[i]:
			buf := unsafe.Slice((*float32)(c.buf), size/4)
			outputs[i].Float32 = append([]float32(nil), buf...)

		case r.outputs[i].Type == TensorFloat16:
			buf := unsafe.Slice((*uint16)(c.buf), size/2)
			outputs[i].Float32 = make([]float32, len(buf))

			for j, v := range buf {
				outputs[i].Float32[j] = float16.Frombits(v).Float32()
			}

		default:
			buf := unsafe.Slice((*int8)(c.buf), size)
			outputs[i].Int8 = append([]int8(nil), buf...)
		}
	}

	if ret := C.rknn_outputs_release(r.ctx, C.uint32_t(n), &cOutputs[0]); ret != C.RKNN_SUCC {
		return nil, statusError("rknn_outputs_release", ret)
	}

	return outputs, nil
}
