package npu

import (
	"fmt"
	"io"
)

// Describe writes the SDK version and tensor attributes of the loaded model
// in human readable form
func Describe(r *Runtime, w io.Writer) error {

	ver, err := r.SDKVersion()

	if err != nil {
		return fmt.Errorf("error querying SDK version: %w", err)
	}

	fmt.Fprintf(w, "Driver Version: %s, API Version: %s\n", ver.DriverVersion, ver.APIVersion)
	fmt.Fprintf(w, "Model Input Number: %d, Output Number: %d\n", len(r.inputs), len(r.outputs))
	fmt.Fprintf(w, "Input tensors:\n")

	for _, attr := range r.inputs {
		fmt.Fprintf(w, "  %s\n", attr.String())
	}

	fmt.Fprintf(w, "Output tensors:\n")

	for _, attr := range r.outputs {
		fmt.Fprintf(w, "  %s\n", attr.String())
	}

	return nil
}
