package npu

/*
#include "rknn_api.h"
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// TensorFormat wraps C.rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW      TensorFormat = C.RKNN_TENSOR_NCHW
	TensorNHWC      TensorFormat = C.RKNN_TENSOR_NHWC
	TensorNC1HWC2   TensorFormat = C.RKNN_TENSOR_NC1HWC2
	TensorUndefined TensorFormat = C.RKNN_TENSOR_UNDEFINED
)

var formatNames = map[TensorFormat]string{
	TensorNCHW:      "NCHW",
	TensorNHWC:      "NHWC",
	TensorNC1HWC2:   "NC1HWC2",
	TensorUndefined: "UNDEFINED",
}

func (t TensorFormat) String() string {
	return lookupName(formatNames, t)
}

// TensorType wraps C.rknn_tensor_type
type TensorType int

const (
	TensorFloat32 TensorType = C.RKNN_TENSOR_FLOAT32
	TensorFloat16 TensorType = C.RKNN_TENSOR_FLOAT16
	TensorInt8    TensorType = C.RKNN_TENSOR_INT8
	TensorUint8   TensorType = C.RKNN_TENSOR_UINT8
	TensorInt16   TensorType = C.RKNN_TENSOR_INT16
	TensorUint16  TensorType = C.RKNN_TENSOR_UINT16
	TensorInt32   TensorType = C.RKNN_TENSOR_INT32
	TensorUint32  TensorType = C.RKNN_TENSOR_UINT32
	TensorInt64   TensorType = C.RKNN_TENSOR_INT64
	TensorBool    TensorType = C.RKNN_TENSOR_BOOL
	TensorInt4    TensorType = C.RKNN_TENSOR_INT4
)

var typeNames = map[TensorType]string{
	TensorFloat32: "FP32",
	TensorFloat16: "FP16",
	TensorInt8:    "INT8",
	TensorUint8:   "UINT8",
	TensorInt16:   "INT16",
	TensorUint16:  "UINT16",
	TensorInt32:   "INT32",
	TensorUint32:  "UINT32",
	TensorInt64:   "INT64",
	TensorBool:    "BOOL",
	TensorInt4:    "INT4",
}

func (t TensorType) String() string {
	return lookupName(typeNames, t)
}

// TensorQntType wraps C.rknn_tensor_qnt_type
type TensorQntType int

const (
	TensorQntNone   TensorQntType = C.RKNN_TENSOR_QNT_NONE
	TensorQntDFP    TensorQntType = C.RKNN_TENSOR_QNT_DFP
	TensorQntAffine TensorQntType = C.RKNN_TENSOR_QNT_AFFINE_ASYMMETRIC
)

var qntNames = map[TensorQntType]string{
	TensorQntNone:   "NONE",
	TensorQntDFP:    "DFP",
	TensorQntAffine: "AFFINE",
}

func (t TensorQntType) String() string {
	return lookupName(qntNames, t)
}

func lookupName[K comparable](names map[K]string, k K) string {

	if name, ok := names[k]; ok {
		return name
	}

	return "UNKNOWN"
}

// maxDims is the maximum number of dimensions of a tensor
const maxDims = C.RKNN_MAX_DIMS

// TensorAttr holds the attributes of a model input or output tensor
type TensorAttr struct {
	Index   uint32
	Name    string
	Dims    []uint32
	NElems  uint32
	Size    uint32
	Fmt     TensorFormat
	Type    TensorType
	QntType TensorQntType
	ZP      int32
	Scale   float32
}

// convertTensorAttr copies a C.rknn_tensor_attr into Go memory
func convertTensorAttr(cAttr *C.rknn_tensor_attr) TensorAttr {

	name := C.GoStringN(&cAttr.name[0], C.RKNN_MAX_NAME_LEN)

	// the name is NUL padded
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	nDims := int(cAttr.n_dims)

	if nDims > maxDims {
		nDims = maxDims
	}

	all := (*[maxDims]C.uint32_t)(unsafe.Pointer(&cAttr.dims[0]))
	dims := make([]uint32, nDims)

	for i := range dims {
		dims[i] = uint32(all[i])
	}

	return TensorAttr{
		Index:   uint32(cAttr.index),
		Name:    name,
		Dims:    dims,
		NElems:  uint32(cAttr.n_elems),
		Size:    uint32(cAttr.size),
		Fmt:     TensorFormat(cAttr.fmt),
		Type:    TensorType(cAttr._type),
		QntType: TensorQntType(cAttr.qnt_type),
		ZP:      int32(cAttr.zp),
		Scale:   float32(cAttr.scale),
	}
}

// String formats the attributes the same way the rknn C examples dump them
func (a TensorAttr) String() string {

	dims := make([]string, len(a.Dims))

	for i, d := range a.Dims {
		dims[i] = fmt.Sprintf("%d", d)
	}

	return fmt.Sprintf("index=%d, name=%s, n_dims=%d, dims=[%s], n_elems=%d, "+
		"size=%d, fmt=%s, type=%s, qnt_type=%s, zp=%d, scale=%f",
		a.Index, a.Name, len(a.Dims), strings.Join(dims, ", "), a.NElems,
		a.Size, a.Fmt, a.Type, a.QntType, a.ZP, a.Scale)
}

// ImageSize returns the width, height and channels of a 4 dimensional image
// input tensor taking its layout into account
func (a TensorAttr) ImageSize() (width, height, channels int, err error) {

	if len(a.Dims) != 4 {
		return 0, 0, 0, fmt.Errorf("tensor %s has %d dimensions, expected 4", a.Name, len(a.Dims))
	}

	if a.Fmt == TensorNCHW {
		return int(a.Dims[3]), int(a.Dims[2]), int(a.Dims[1]), nil
	}

	return int(a.Dims[2]), int(a.Dims[1]), int(a.Dims[3]), nil
}
