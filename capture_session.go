package gpucamera

import "context"

// A FrameHandler receives frames from a capture session. OnFrame is called on the
// session's own goroutine and must not block it.
type FrameHandler interface {
	OnFrame(frame RawFrame)
}

// The FrameHandlerFunc type is an adapter to allow the use of ordinary functions as
// frame handlers.
type FrameHandlerFunc func(frame RawFrame)

// OnFrame calls f(frame).
func (f FrameHandlerFunc) OnFrame(frame RawFrame) {
	f(frame)
}

// SessionConfig is what a Camera asks of its capture session at construction.
type SessionConfig struct {
	PixelFormat PixelFormat
	// Preset is an optional session specific quality preset.
	Preset string
	Width  int
	Height int
}

// A CaptureSession delivers raw frames from a device.
type CaptureSession interface {
	// AvailablePixelFormats lists the formats the session can deliver.
	AvailablePixelFormats() []PixelFormat
	// Configure wires the session to deliver frames in the given format to handler.
	Configure(config SessionConfig, handler FrameHandler) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}
