package main

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/edaniels/gpucamera"
	"github.com/edaniels/gpucamera/gpu"
	"github.com/edaniels/gpucamera/gpu/webgpu"
	"github.com/edaniels/gpucamera/media"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

var logger = golog.Global().Named("gpucamera")

// Arguments for the command.
type Arguments struct {
	Backend   string `flag:"backend,usage=software or webgpu"`
	Camera    string `flag:"camera,usage=label of the camera to open"`
	Packed    bool   `flag:"packed,usage=capture packed BGRA instead of YUV"`
	Benchmark bool   `flag:"benchmark,usage=log frame processing times"`
	FPS       bool   `flag:"fps,usage=log frames per second"`
	Snapshot  string `flag:"snapshot,usage=write the first frame to this PNG path"`
	Thumbnail int    `flag:"thumbnail,usage=also write a thumbnail this many pixels wide"`
	Duration  int    `flag:"duration,usage=seconds to capture for; 0 runs until interrupted"`
	Dump      bool   `flag:"dump,usage=list cameras and exit"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Dump {
		for _, info := range media.QueryVideoDevices() {
			logger.Infof("%s (%s)", info.Name, info.ID)
			logger.Infof("\t labels: %v", info.Labels)
			logger.Infof("\t priority: %v", info.Priority)
			for _, p := range info.Properties {
				logger.Infof("\t %+v", p.Video)
			}
		}
		return nil
	}
	if argsParsed.Backend == "" {
		argsParsed.Backend = "software"
	}
	if argsParsed.Duration > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, time.Duration(argsParsed.Duration)*time.Second)
		defer cancel()
	}
	return runCamera(ctx, argsParsed, logger)
}

func newBackend(name string, logger golog.Logger) (gpu.Backend, error) {
	switch strings.ToLower(name) {
	case "software":
		return gpu.NewSoftwareBackend(), nil
	case "webgpu":
		return webgpu.NewBackend(logger.Named("webgpu"))
	default:
		return nil, errors.Errorf("unknown backend %q", name)
	}
}

func runCamera(ctx context.Context, args Arguments, logger golog.Logger) (err error) {
	backend, err := newBackend(args.Backend, logger)
	if err != nil {
		return err
	}
	gctx := gpu.NewContext(backend, logger.Named("gpu"))
	defer func() {
		err = multierr.Combine(err, gctx.Close(context.Background()))
	}()

	var session *media.Session
	if args.Camera != "" {
		session, err = media.GetNamedVideoSession(args.Camera, media.DefaultConstraints, logger)
	} else {
		session, err = media.GetAnyVideoSession(media.DefaultConstraints, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, session.Close(context.Background()))
	}()

	config := gpucamera.DefaultCameraConfig
	config.Context = gctx
	config.Session = session
	config.CaptureAsYUV = !args.Packed
	config.RunBenchmark = args.Benchmark
	config.LogFPS = args.FPS
	config.Logger = logger
	config.OnError = func(err error) {
		logger.Errorw("camera failed", "error", err)
	}
	cam, err := gpucamera.NewCamera(config)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, cam.Close(context.Background()))
	}()

	capture := gpucamera.NewImageCapture(gctx, logger)
	defer func() {
		err = multierr.Combine(err, capture.Close())
	}()
	cam.AddTarget(capture, 0)

	logger.Infow("starting capture",
		"camera", cam.Name(),
		"pixel_format", cam.PixelFormat(),
		"backend", args.Backend,
	)
	if err := cam.StartCapture(ctx); err != nil {
		return err
	}

	if args.Snapshot != "" {
		captured, err := capture.Next(ctx)
		if err != nil {
			return err
		}
		if err := saveSnapshot(captured.Image, args.Snapshot, args.Thumbnail); err != nil {
			return err
		}
		logger.Infow("saved snapshot", "path", args.Snapshot, "timing", captured.Timing)
		if args.Duration == 0 {
			return cam.StopCapture(ctx)
		}
	}

	<-ctx.Done()
	logger.Infow("stopping capture", "received", capture.Received(), "dropped", cam.FramesDropped())
	return multierr.Combine(cam.Err(), cam.StopCapture(context.Background()))
}

func saveSnapshot(img image.Image, path string, thumbnailWidth int) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrap(err, "saving snapshot")
	}
	if thumbnailWidth <= 0 {
		return nil
	}
	thumb := resize.Resize(uint(thumbnailWidth), 0, img, resize.Lanczos3)
	ext := filepath.Ext(path)
	thumbPath := strings.TrimSuffix(path, ext) + "_thumb" + ext
	return errors.Wrap(imaging.Save(thumb, thumbPath), "saving thumbnail")
}
