package gpucamera

import (
	"github.com/edaniels/golog"

	"github.com/edaniels/gpucamera/gpu"
)

// A CameraConfig describes how a Camera is wired. It is only read at construction.
type CameraConfig struct {
	// Name defaults to a random UUID.
	Name    string
	Context *gpu.Context
	Session CaptureSession

	// Preset, Width and Height are passed through to the session.
	Preset string
	Width  int
	Height int

	Orientation gpu.Orientation
	// CaptureAsYUV requests biplanar frames converted on the GPU instead of packed BGRA.
	CaptureAsYUV bool

	RunBenchmark bool
	LogFPS       bool
	OnBenchmark  func(BenchmarkReport)
	OnFPS        func(FPSReport)
	// OnError is called once, on the GPU context, when the pipeline fails.
	OnError func(err error)

	Logger golog.Logger
}

// DefaultCameraConfig captures portrait YUV frames.
var DefaultCameraConfig = CameraConfig{
	Orientation:  gpu.Portrait,
	CaptureAsYUV: true,
}
