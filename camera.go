package gpucamera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/edaniels/gpucamera/colorconv"
	"github.com/edaniels/gpucamera/gpu"
)

// A Camera turns frames delivered by a CaptureSession into framebuffers for its targets.
// Only one frame is processed at a time; frames arriving while the previous one is still
// on the GPU context are dropped.
//
// Framebuffers, including converted YUV output, hold pixels as captured and are tagged
// with the configured Orientation. Consumers rotate to portrait themselves, as
// ImageCapture does.
type Camera struct {
	name       string
	config     CameraConfig
	logger     golog.Logger
	gpuContext *gpu.Context
	session    CaptureSession
	targets    *TargetContainer
	gate       *AdmissionGate
	stats      *frameStats
	now        func() time.Time

	pixelFormat         PixelFormat
	conversionMatrix    colorconv.Matrix3x3
	yuvConversionShader gpu.Program

	framesDropped int64

	mu     sync.Mutex
	closed bool
	err    error
}

var _ FrameHandler = (*Camera)(nil)

// NewCamera wires a camera to its GPU context and capture session. When capturing YUV,
// the full range format and matrix are chosen if the session supports them, video range
// otherwise, and the conversion program is compiled on the GPU context. Any failure
// returns a nil camera.
func NewCamera(config CameraConfig) (*Camera, error) {
	logger := config.Logger
	if logger == nil {
		logger = Logger
	}
	if config.Context == nil {
		return nil, &ConstructionError{Op: "gpu context", Err: errors.New("a gpu context is required")}
	}
	if config.Session == nil {
		return nil, &ConstructionError{Op: "capture session", Err: errors.New("a capture session is required")}
	}
	name := config.Name
	if name == "" {
		name = uuid.NewString()
	}

	c := &Camera{
		name:       name,
		config:     config,
		logger:     logger,
		gpuContext: config.Context,
		session:    config.Session,
		targets:    NewTargetContainer(),
		gate:       NewAdmissionGate(),
		now:        time.Now,
	}
	c.stats = newFrameStats(config, c.now(), logger)

	if config.CaptureAsYUV {
		c.pixelFormat, c.conversionMatrix = selectYUVFormat(config.Session.AvailablePixelFormats())
		shader := gpu.ShaderYUVConversionVideoRange
		if c.pixelFormat.Range() == colorconv.RangeFull {
			shader = gpu.ShaderYUVConversionFullRange
		}
		if err := c.gpuContext.RunSync(func() error {
			prog, err := c.gpuContext.Backend().CompileProgram(gpu.ProgramSource{
				Label:  name,
				Inputs: 2,
				Shader: shader,
			})
			c.yuvConversionShader = prog
			return err
		}); err != nil {
			return nil, &ShaderCompileError{Shader: shader, Err: err}
		}
	} else {
		c.pixelFormat = PixelFormat32BGRA
	}

	if err := config.Session.Configure(SessionConfig{
		PixelFormat: c.pixelFormat,
		Preset:      config.Preset,
		Width:       config.Width,
		Height:      config.Height,
	}, c); err != nil {
		return nil, multierr.Combine(&ConstructionError{Op: "configure session", Err: err}, c.releaseProgram())
	}

	logger.Debugw("camera ready", "name", name, "pixel_format", c.pixelFormat, "orientation", config.Orientation)
	return c, nil
}

// Name returns the camera's name.
func (c *Camera) Name() string {
	return c.name
}

// Targets returns the consumers frames are delivered to.
func (c *Camera) Targets() *TargetContainer {
	return c.targets
}

// AddTarget binds consumer at slot.
func (c *Camera) AddTarget(consumer ImageConsumer, slot uint) {
	c.targets.AddTarget(consumer, slot)
}

// TransmitPreviousImage does nothing; a camera has no still image to replay to newly
// attached consumers.
func (c *Camera) TransmitPreviousImage(consumer ImageConsumer, slot uint) {}

// PixelFormat returns the format requested from the session at construction.
func (c *Camera) PixelFormat() PixelFormat {
	return c.pixelFormat
}

// ConversionMatrix returns the YCbCr to RGB matrix selected at construction. It is only
// meaningful when capturing YUV.
func (c *Camera) ConversionMatrix() colorconv.Matrix3x3 {
	return c.conversionMatrix
}

// FramesDropped returns how many frames arrived while the pipeline was busy.
func (c *Camera) FramesDropped() int64 {
	return atomic.LoadInt64(&c.framesDropped)
}

// Benchmark returns the latest benchmark report, if any frame after warm-up was processed
// with benchmarking enabled.
func (c *Camera) Benchmark() (BenchmarkReport, bool) {
	return c.stats.lastBenchmark()
}

// FPS returns the latest completed FPS window.
func (c *Camera) FPS() (FPSReport, bool) {
	return c.stats.lastFPS()
}

// Err returns the error that stopped the pipeline, if any.
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Busy reports whether a frame is currently in the pipeline.
func (c *Camera) Busy() bool {
	return c.gate.Busy()
}

func (c *Camera) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.err != nil
}

// OnFrame is called by the capture session for every delivered frame. It never blocks:
// if the previous frame is still being processed the frame is silently dropped, otherwise
// its memory is locked and the rest of the pipeline is queued on the GPU context.
func (c *Camera) OnFrame(frame RawFrame) {
	if c.stopped() {
		return
	}
	uploads, err := frame.textureUploads(c.pixelFormat.Planar())
	if err != nil {
		c.logger.Debugw("rejecting malformed frame", "error", err)
		return
	}
	if !c.gate.TryEnter() {
		atomic.AddInt64(&c.framesDropped, 1)
		return
	}
	startTime := c.now()

	if err := frame.lockMemory(); err != nil {
		c.gate.Exit()
		c.logger.Warnw("failed to lock frame memory", "error", err)
		return
	}

	// Queueing under mu orders this unit before the program release queued by Close.
	c.mu.Lock()
	err = ErrCameraClosed
	if !c.closed && c.err == nil {
		err = c.gpuContext.RunAsync(func() {
			c.processFrame(frame, uploads, startTime)
		})
	}
	c.mu.Unlock()
	if err != nil {
		frame.unlockMemory()
		c.gate.Exit()
		c.logger.Debugw("dropping frame", "error", err)
	}
}

// processFrame runs on the GPU context and releases the gate on every path.
func (c *Camera) processFrame(frame RawFrame, uploads []gpu.TextureUpload, startTime time.Time) {
	defer c.gate.Exit()
	unlockMemory := sync.OnceFunc(frame.unlockMemory)
	defer unlockMemory()

	framebuffers, err := c.uploadFrame(uploads)
	unlockMemory()
	if err != nil {
		c.fail(err)
		return
	}

	cameraFramebuffer := framebuffers[0]
	if c.pixelFormat.Planar() {
		cameraFramebuffer, err = c.convertYUVToRGB(framebuffers[0], framebuffers[1], frame.Size())
		if err != nil {
			c.fail(err)
			return
		}
	}

	tagFramebuffer(cameraFramebuffer, frame.Timestamp)
	c.targets.updateTargetsWithFramebuffer(cameraFramebuffer)
	c.stats.frameProcessed(startTime, c.now())
}

// tagFramebuffer attaches the presentation time. Frames pass the gate one at a time so
// consumers observe timestamps in capture order.
func tagFramebuffer(fb *gpu.Framebuffer, ts gpu.Timestamp) {
	fb.SetTimingStyle(gpu.VideoFrame(ts))
}

func (c *Camera) fail(err error) {
	c.mu.Lock()
	first := c.err == nil
	if first {
		c.err = err
	}
	c.mu.Unlock()
	if !first {
		return
	}
	c.logger.Errorw("camera pipeline failed", "name", c.name, "error", err)
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

// StartCapture resets instrumentation and starts the session if it is not running.
func (c *Camera) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrCameraClosed
	}
	now := c.now()
	if err := c.gpuContext.RunAsync(func() { c.stats.reset(now) }); err != nil {
		return err
	}
	if c.session.Running() {
		return nil
	}
	return c.session.Start(ctx)
}

// StopCapture stops the session if it is running. Frames already admitted still run to
// completion.
func (c *Camera) StopCapture(ctx context.Context) error {
	if !c.session.Running() {
		return nil
	}
	return c.session.Stop(ctx)
}

// Close stops capture and releases the conversion program once frames already queued
// have run. The GPU context is left open for its other users.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return multierr.Combine(c.StopCapture(ctx), c.releaseProgram())
}

func (c *Camera) releaseProgram() error {
	if c.yuvConversionShader == nil {
		return nil
	}
	prog := c.yuvConversionShader
	err := c.gpuContext.RunSync(func() error {
		prog.Release()
		return nil
	})
	if errors.Is(err, gpu.ErrContextClosed) {
		// the backend and everything compiled on it are already gone
		return nil
	}
	return err
}
