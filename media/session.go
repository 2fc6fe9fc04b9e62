// Package media provides capture sessions that read video frames from pion mediadevices
// drivers and deliver them to a gpucamera.Camera.
package media

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/edaniels/gpucamera"
	"github.com/edaniels/gpucamera/gpu"
)

// ErrNotConfigured is returned when starting a session that has no frame handler.
var ErrNotConfigured = errors.New("capture session not configured")

// readErrorBackoff is how long the read loop waits after a failed read.
const readErrorBackoff = 100 * time.Millisecond

// A Session is a gpucamera.CaptureSession reading images from a video.Reader. Images are
// laid out in the configured pixel format on the session's goroutine before being handed
// to the frame handler; image memory is released once the handler has uploaded it.
type Session struct {
	driver driver.Driver
	reader video.Reader
	props  prop.Media
	logger golog.Logger
	now    func() time.Time

	mu                      sync.Mutex
	config                  gpucamera.SessionConfig
	handler                 gpucamera.FrameHandler
	running                 bool
	closed                  bool
	epoch                   time.Time
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
	framesRead              int64
}

var _ gpucamera.CaptureSession = (*Session)(nil)

// NewSession returns a session over an already opened reader. props describes what the
// reader produces; a non-zero FrameRate paces reads.
func NewSession(reader video.Reader, props prop.Media, logger golog.Logger) *Session {
	if logger == nil {
		logger = golog.Global().Named("media")
	}
	return &Session{
		reader: reader,
		props:  props,
		logger: logger,
		now:    time.Now,
	}
}

// NewSessionForDriver opens the driver, if needed, and starts recording with the given
// properties. The driver is referenced until the session is closed.
func NewSessionForDriver(videoDriver driver.Driver, mediaProp prop.Media, logger golog.Logger) (*Session, error) {
	if logger == nil {
		logger = golog.Global().Named("media")
	}
	recorder, ok := videoDriver.(driver.VideoRecorder)
	if !ok {
		return nil, errors.New("driver not a driver.VideoRecorder")
	}

	if driverStatus := videoDriver.Status(); driverStatus != driver.StateClosed {
		logger.Warnw("video driver is not closed, attempting to close and reopen", "status", driverStatus)
		if err := videoDriver.Close(); err != nil {
			logger.Errorw("error closing driver", "error", err)
		}
	}
	if err := videoDriver.Open(); err != nil {
		return nil, errors.Wrap(err, "opening video driver")
	}
	reader, err := recorder.VideoRecord(mediaProp)
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "starting video record"), videoDriver.Close())
	}
	refDriver(videoDriver)

	s := NewSession(reader, mediaProp, logger)
	s.driver = videoDriver
	return s, nil
}

// AvailablePixelFormats implements gpucamera.CaptureSession. Any image the reader
// produces can be laid out in every supported format.
func (s *Session) AvailablePixelFormats() []gpucamera.PixelFormat {
	return []gpucamera.PixelFormat{
		gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange,
		gpucamera.PixelFormat420YpCbCr8BiPlanarVideoRange,
		gpucamera.PixelFormat32BGRA,
	}
}

// Properties returns the media properties the session was created with.
func (s *Session) Properties() prop.Media {
	return s.props
}

// Configure implements gpucamera.CaptureSession. A non-zero Width and Height scale every
// image to that size.
func (s *Session) Configure(config gpucamera.SessionConfig, handler gpucamera.FrameHandler) error {
	switch config.PixelFormat {
	case gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange,
		gpucamera.PixelFormat420YpCbCr8BiPlanarVideoRange,
		gpucamera.PixelFormat32BGRA:
	default:
		return errors.Errorf("unsupported pixel format %q", config.PixelFormat)
	}
	if config.Width < 0 || config.Height < 0 || (config.Width == 0) != (config.Height == 0) {
		return errors.Errorf("invalid output size %dx%d", config.Width, config.Height)
	}
	if handler == nil {
		return errors.New("a frame handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("cannot configure a running session")
	}
	s.config = config
	s.handler = handler
	return nil
}

// Running implements gpucamera.CaptureSession.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FramesRead returns how many images were read from the reader.
func (s *Session) FramesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesRead
}

// Start implements gpucamera.CaptureSession. Timestamps count from the first Start.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("capture session closed")
	}
	if s.handler == nil {
		return ErrNotConfigured
	}
	if s.running {
		return nil
	}
	if s.epoch.IsZero() {
		s.epoch = s.now()
	}
	if s.cancel != nil {
		// the previous read loop ended on its own
		s.cancel()
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	config, handler := s.config, s.handler
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		s.readLoop(cancelCtx, config, handler)
	}, func() {
		defer s.activeBackgroundWorkers.Done()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})
	return nil
}

func (s *Session) readLoop(ctx context.Context, config gpucamera.SessionConfig, handler gpucamera.FrameHandler) {
	var frameInterval time.Duration
	if s.props.FrameRate > 0 {
		frameInterval = time.Duration(float64(time.Second) / float64(s.props.FrameRate))
	}
	for {
		if ctx.Err() != nil {
			return
		}
		readStart := s.now()
		img, release, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("video reader finished")
				return
			}
			s.logger.Debugw("error reading frame", "error", err)
			if !utils.SelectContextOrWait(ctx, readErrorBackoff) {
				return
			}
			continue
		}
		s.mu.Lock()
		s.framesRead++
		epoch := s.epoch
		s.mu.Unlock()

		s.deliver(img, release, gpu.NewTimestamp(s.now().Sub(epoch)), config, handler)

		if frameInterval > 0 {
			if wait := frameInterval - s.now().Sub(readStart); wait > 0 {
				if !utils.SelectContextOrWait(ctx, wait) {
					return
				}
			}
		}
	}
}

func (s *Session) deliver(
	img image.Image,
	release func(),
	ts gpu.Timestamp,
	config gpucamera.SessionConfig,
	handler gpucamera.FrameHandler,
) {
	if config.Width > 0 && img.Bounds().Dx() != config.Width || config.Height > 0 && img.Bounds().Dy() != config.Height {
		resized := imaging.Resize(img, config.Width, config.Height, imaging.Linear)
		if release != nil {
			release()
		}
		img, release = resized, nil
	}
	memory := newFrameMemory(release)
	defer memory.handlerReturned()

	frame, err := rawFrame(img, config.PixelFormat, ts)
	if err != nil {
		s.logger.Debugw("dropping unreadable image", "error", err)
		return
	}
	frame.Memory = memory
	handler.OnFrame(frame)
}

// Stop implements gpucamera.CaptureSession. It waits for the read loop to exit.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.activeBackgroundWorkers.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for capture to stop")
	}
}

// Close stops the session and releases the reader and driver. Closing while another
// session shares the driver returns a *DriverInUseError and leaves the driver open.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop(ctx)
	if closer, ok := s.reader.(io.Closer); ok {
		err = multierr.Combine(err, closer.Close())
	}
	if s.driver == nil {
		return err
	}
	return multierr.Combine(err, derefDriver(s.driver))
}
