/*
go-rknnconvert converts ONNX models into RKNN artifacts for the Rockchip NPU
by driving the rknn-toolkit2 Python API from Go, in the spirit of the
toolkit's onnx2rknn.py conversion scripts.

A Pipeline runs one conversion for a Config: configure the toolkit, load the
ONNX model, build it (quantizing against a calibration dataset) and export
the artifact to <out_dir>/<experiment>-<width>-<height>_rm_transpose_<platform>.rknn.
Alternatively a pre-built artifact is loaded instead. Whichever path runs,
the engine is released exactly once and a failed stage's status code is
reported through StageError so it can become the process exit code.

Engines are provided by the toolkit subpackage, which runs rknn-toolkit2 in
a Python subprocess, and the npu subpackage, which uses the on-device RKNN
runtime to load and check artifacts.

See cmd/rknn-convert for the command line tool.
*/
package rknnconvert
