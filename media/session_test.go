package media

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/prop"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/edaniels/gpucamera"
	"github.com/edaniels/gpucamera/gpu"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []gpucamera.RawFrame
}

func (h *recordingHandler) OnFrame(frame gpucamera.RawFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
}

func (h *recordingHandler) recorded() []gpucamera.RawFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]gpucamera.RawFrame(nil), h.frames...)
}

func TestSessionConfigure(t *testing.T) {
	session := NewSession(newFakeReader(newYCbCr(4, 2), 0), prop.Media{}, golog.NewTestLogger(t))
	handler := &recordingHandler{}

	test.That(t, session.Start(context.Background()), test.ShouldBeError, ErrNotConfigured)
	err := session.Configure(gpucamera.SessionConfig{PixelFormat: "yuvs"}, handler)
	test.That(t, err, test.ShouldNotBeNil)
	err = session.Configure(gpucamera.SessionConfig{PixelFormat: gpucamera.PixelFormat32BGRA, Width: 10}, handler)
	test.That(t, err, test.ShouldNotBeNil)
	err = session.Configure(gpucamera.SessionConfig{PixelFormat: gpucamera.PixelFormat32BGRA}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	err = session.Configure(gpucamera.SessionConfig{PixelFormat: gpucamera.PixelFormat32BGRA}, handler)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, session.AvailablePixelFormats(), test.ShouldContain, gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange)
	test.That(t, session.Close(context.Background()), test.ShouldBeNil)
	test.That(t, session.Start(context.Background()), test.ShouldNotBeNil)
}

func TestSessionReadsUntilEOF(t *testing.T) {
	reader := newFakeReader(newYCbCr(4, 2), 5)
	session := NewSession(reader, prop.Media{}, golog.NewTestLogger(t))
	handler := &recordingHandler{}
	test.That(t, session.Configure(gpucamera.SessionConfig{
		PixelFormat: gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange,
	}, handler), test.ShouldBeNil)

	test.That(t, session.Start(context.Background()), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, session.Running(), test.ShouldBeFalse)
	})
	test.That(t, session.Stop(context.Background()), test.ShouldBeNil)

	frames := handler.recorded()
	test.That(t, frames, test.ShouldHaveLength, 5)
	for i, frame := range frames {
		test.That(t, frame.Width, test.ShouldEqual, 4)
		test.That(t, frame.Planes, test.ShouldHaveLength, 2)
		if i > 0 {
			test.That(t, frame.Timestamp.Before(frames[i-1].Timestamp), test.ShouldBeFalse)
		}
	}
	reads, released := reader.counts()
	test.That(t, reads, test.ShouldEqual, 5)
	// the handler never locked frame memory so every image is released on return
	test.That(t, released, test.ShouldEqual, 5)
	test.That(t, session.FramesRead(), test.ShouldEqual, 5)
}

func TestSessionScalesToConfiguredSize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	reader := newFakeReader(img, 1)
	session := NewSession(reader, prop.Media{}, golog.NewTestLogger(t))
	handler := &recordingHandler{}
	test.That(t, session.Configure(gpucamera.SessionConfig{
		PixelFormat: gpucamera.PixelFormat32BGRA,
		Width:       4,
		Height:      2,
	}, handler), test.ShouldBeNil)

	test.That(t, session.Start(context.Background()), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, handler.recorded(), test.ShouldHaveLength, 1)
	})
	test.That(t, session.Close(context.Background()), test.ShouldBeNil)

	frame := handler.recorded()[0]
	test.That(t, frame.Width, test.ShouldEqual, 4)
	test.That(t, frame.Height, test.ShouldEqual, 2)
	test.That(t, frame.Planes[0].Stride, test.ShouldEqual, 16)
	_, released := reader.counts()
	test.That(t, released, test.ShouldEqual, 1)
	test.That(t, reader.isClosed(), test.ShouldBeTrue)
}

func TestSessionStopAndRestart(t *testing.T) {
	reader := newFakeReader(newYCbCr(2, 2), -1)
	session := NewSession(reader, prop.Media{Video: prop.Video{FrameRate: 200}}, golog.NewTestLogger(t))
	handler := &recordingHandler{}
	test.That(t, session.Configure(gpucamera.SessionConfig{
		PixelFormat: gpucamera.PixelFormat420YpCbCr8BiPlanarVideoRange,
	}, handler), test.ShouldBeNil)

	ctx := context.Background()
	test.That(t, session.Start(ctx), test.ShouldBeNil)
	test.That(t, session.Running(), test.ShouldBeTrue)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(handler.recorded()), test.ShouldBeGreaterThan, 2)
	})
	test.That(t, session.Stop(ctx), test.ShouldBeNil)
	test.That(t, session.Running(), test.ShouldBeFalse)
	stoppedAt := len(handler.recorded())

	err := session.Configure(gpucamera.SessionConfig{PixelFormat: gpucamera.PixelFormat32BGRA}, handler)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, session.Start(ctx), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(handler.recorded()), test.ShouldBeGreaterThan, stoppedAt)
	})
	test.That(t, session.Close(ctx), test.ShouldBeNil)

	frames := handler.recorded()
	last := frames[len(frames)-1]
	test.That(t, last.Planes, test.ShouldHaveLength, 1)
	// timestamps keep counting from the first start
	test.That(t, frames[stoppedAt].Timestamp.Before(frames[stoppedAt-1].Timestamp), test.ShouldBeFalse)
	test.That(t, last.Timestamp.Duration(), test.ShouldBeGreaterThan, time.Duration(0))
}

func TestSessionDrivesCamera(t *testing.T) {
	logger := golog.NewTestLogger(t)
	gctx := gpu.NewContext(gpu.NewSoftwareBackend(), logger)
	defer func() {
		test.That(t, gctx.Close(context.Background()), test.ShouldBeNil)
	}()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 16; i++ {
		img.Set(i%4, i/4, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	}
	session := NewSession(newFakeReader(img, -1), prop.Media{Video: prop.Video{FrameRate: 100}}, logger)
	cam, err := gpucamera.NewCamera(gpucamera.CameraConfig{
		Context:      gctx,
		Session:      session,
		CaptureAsYUV: true,
		Logger:       logger,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.PixelFormat(), test.ShouldEqual, gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange)

	capture := gpucamera.NewImageCapture(gctx, logger)
	cam.AddTarget(capture, 0)
	test.That(t, cam.StartCapture(context.Background()), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	captured, err := capture.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Close(context.Background()), test.ShouldBeNil)
	test.That(t, session.Close(context.Background()), test.ShouldBeNil)

	r, g, b, _ := captured.Image.At(1, 1).RGBA()
	test.That(t, float64(r>>8), test.ShouldAlmostEqual, 200, 3)
	test.That(t, float64(g>>8), test.ShouldAlmostEqual, 40, 3)
	test.That(t, float64(b>>8), test.ShouldAlmostEqual, 40, 3)
	ts, ok := captured.Timing.Timestamp()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, ts.Timescale, test.ShouldEqual, int32(time.Second))
}
