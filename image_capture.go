package gpucamera

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/gpu"
)

// ErrImageCaptureClosed is returned by a closed ImageCapture.
var ErrImageCaptureClosed = errors.New("image capture closed")

// A CapturedImage is a framebuffer read back to the CPU and rotated upright.
type CapturedImage struct {
	Image  image.Image
	Timing gpu.TimingStyle
	// Orientation is the orientation of the framebuffer the image was read from.
	Orientation gpu.Orientation
}

// An ImageCapture is a consumer that reads every framebuffer it receives back to the CPU.
// The most recent image is kept and handed to anyone waiting in Next.
type ImageCapture struct {
	gpuContext *gpu.Context
	logger     golog.Logger

	mu       sync.Mutex
	latest   *CapturedImage
	err      error
	updated  chan struct{}
	closed   bool
	received int
}

var (
	_ ImageConsumer = (*ImageCapture)(nil)
	_ video.Reader  = (*ImageCapture)(nil)
)

// NewImageCapture returns a consumer reading framebuffers back through the context's
// backend.
func NewImageCapture(gpuContext *gpu.Context, logger golog.Logger) *ImageCapture {
	if logger == nil {
		logger = Logger
	}
	return &ImageCapture{
		gpuContext: gpuContext,
		logger:     logger,
		updated:    make(chan struct{}),
	}
}

// Receive implements ImageConsumer. It runs on the GPU context.
func (ic *ImageCapture) Receive(fb *gpu.Framebuffer, slot uint) {
	rgba, err := ic.gpuContext.Backend().ReadPixels(fb.Texture())
	captured := &CapturedImage{Timing: fb.TimingStyle(), Orientation: fb.Orientation()}
	fb.Unlock()
	if err != nil {
		ic.logger.Debugw("failed to read back framebuffer", "slot", slot, "error", err)
	} else {
		captured.Image = rotateToPortrait(rgba, captured.Orientation)
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.closed {
		return
	}
	if err != nil {
		ic.err = errors.Wrap(err, "reading back framebuffer")
	} else {
		ic.latest = captured
		ic.err = nil
		ic.received++
	}
	close(ic.updated)
	ic.updated = make(chan struct{})
}

func rotateToPortrait(img image.Image, orientation gpu.Orientation) image.Image {
	// imaging rotates counter-clockwise
	switch orientation.RotationToPortrait() {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// Latest returns the most recently captured image, if any.
func (ic *ImageCapture) Latest() (CapturedImage, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.latest == nil {
		return CapturedImage{}, false
	}
	return *ic.latest, true
}

// Received returns how many framebuffers were successfully read back.
func (ic *ImageCapture) Received() int {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.received
}

// Next waits for the next framebuffer to be received and returns it.
func (ic *ImageCapture) Next(ctx context.Context) (CapturedImage, error) {
	ic.mu.Lock()
	if ic.closed {
		ic.mu.Unlock()
		return CapturedImage{}, ErrImageCaptureClosed
	}
	updated := ic.updated
	ic.mu.Unlock()

	select {
	case <-ctx.Done():
		return CapturedImage{}, ctx.Err()
	case <-updated:
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.closed {
		return CapturedImage{}, ErrImageCaptureClosed
	}
	if ic.err != nil {
		return CapturedImage{}, ic.err
	}
	return *ic.latest, nil
}

// Read implements video.Reader by waiting for the next image.
func (ic *ImageCapture) Read() (image.Image, func(), error) {
	captured, err := ic.Next(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return captured.Image, func() {}, nil
}

// Close wakes every waiter with ErrImageCaptureClosed.
func (ic *ImageCapture) Close() error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.closed {
		return nil
	}
	ic.closed = true
	close(ic.updated)
	return nil
}
