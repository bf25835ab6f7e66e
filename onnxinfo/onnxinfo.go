// Package onnxinfo reads the input and output tensor descriptions of an ONNX
// model so they can be reported before conversion.
package onnxinfo

import (
	"errors"
	"fmt"
	"github.com/advancedclimatesystems/gonnx"
	"github.com/advancedclimatesystems/gonnx/onnx"
	"os"
	"strings"
)

// Tensor describes a model input or output. Dynamic dimensions are stored
// as -1 with their symbolic name, if any, in DimNames.
type Tensor struct {
	Name     string
	Dims     []int64
	DimNames []string
}

// String returns a readable description such as images [1, 3, 640, 640]
func (t Tensor) String() string {

	dims := make([]string, len(t.Dims))

	for i, d := range t.Dims {
		if d < 0 && i < len(t.DimNames) && t.DimNames[i] != "" {
			dims[i] = t.DimNames[i]
		} else {
			dims[i] = fmt.Sprintf("%d", d)
		}
	}

	return fmt.Sprintf("%s [%s]", t.Name, strings.Join(dims, ", "))
}

// Model is the tensor signature of an ONNX model
type Model struct {
	Inputs  []Tensor
	Outputs []Tensor
}

// Read parses the ONNX model at file
func Read(file string) (*Model, error) {

	data, err := os.ReadFile(file)

	if err != nil {
		return nil, fmt.Errorf("error reading model file: %w", err)
	}

	return FromBytes(data)
}

// FromBytes parses a serialized ONNX model. Only the graph signature is
// read, operators and opset versions are not resolved.
func FromBytes(data []byte) (*Model, error) {

	mp, err := gonnx.ModelProtoFromBytes(data)

	if err != nil {
		return nil, fmt.Errorf("error parsing ONNX model: %w", err)
	}

	if mp.GetGraph() == nil {
		return nil, errors.New("error parsing ONNX model: no graph")
	}

	graph := mp.GetGraph()

	return &Model{
		Inputs:  tensors(graph.InputNames(), graph.InputShapes()),
		Outputs: tensors(graph.OutputNames(), graph.OutputShapes()),
	}, nil
}

func tensors(names []string, shapes onnx.Shapes) []Tensor {

	res := make([]Tensor, 0, len(names))

	for _, name := range names {
		t := Tensor{Name: name}

		for _, d := range shapes[name] {
			t.add(d.Size, d.IsDynamic, d.Name)
		}

		res = append(res, t)
	}

	return res
}

// add appends a dimension, dynamic dimensions are stored as -1
func (t *Tensor) add(size int64, dynamic bool, name string) {

	if dynamic || size <= 0 {
		size = -1
	}

	t.Dims = append(t.Dims, size)
	t.DimNames = append(t.DimNames, name)
}

// InputSize returns the spatial width and height of the first input if it
// has a static NCHW or NHWC image layout
func (m *Model) InputSize() (width, height int, ok bool) {

	if len(m.Inputs) == 0 || len(m.Inputs[0].Dims) != 4 {
		return 0, 0, false
	}

	d := m.Inputs[0].Dims

	switch {
	case d[1] == 1 || d[1] == 3 || d[1] == 4:
		// NCHW
		height, width = int(d[2]), int(d[3])
	case d[3] == 1 || d[3] == 3 || d[3] == 4:
		// NHWC
		height, width = int(d[1]), int(d[2])
	default:
		return 0, 0, false
	}

	if width <= 0 || height <= 0 {
		return 0, 0, false
	}

	return width, height, true
}
