package gpucamera

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
)

const (
	initialBenchmarkFramesToIgnore = 5
	fpsCheckInterval               = time.Second
)

// A BenchmarkReport describes processing time of accepted frames after warm-up.
type BenchmarkReport struct {
	AverageFrameTime time.Duration
	CurrentFrameTime time.Duration
	// Samples is the number of frames the average covers.
	Samples int
}

// An FPSReport is the number of frames accepted during the last window.
type FPSReport struct {
	Frames int
	Window time.Duration
}

// frameStats is only mutated from the GPU context.
type frameStats struct {
	runBenchmark bool
	logFPS       bool
	onBenchmark  func(BenchmarkReport)
	onFPS        func(FPSReport)
	logger       golog.Logger

	mu                          sync.Mutex
	numberOfFramesCaptured      int
	totalFrameTimeDuringCapture time.Duration
	framesSinceLastCheck        int
	lastCheckTime               time.Time
	benchmark                   *BenchmarkReport
	fps                         *FPSReport
}

func newFrameStats(config CameraConfig, now time.Time, logger golog.Logger) *frameStats {
	return &frameStats{
		runBenchmark:  config.RunBenchmark,
		logFPS:        config.LogFPS,
		onBenchmark:   config.OnBenchmark,
		onFPS:         config.OnFPS,
		logger:        logger,
		lastCheckTime: now,
	}
}

func (fs *frameStats) reset(now time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.numberOfFramesCaptured = 0
	fs.totalFrameTimeDuringCapture = 0
	fs.framesSinceLastCheck = 0
	fs.lastCheckTime = now
	fs.benchmark = nil
	fs.fps = nil
}

// frameProcessed records an accepted frame whose work started at start and ended at now.
func (fs *frameStats) frameProcessed(start, now time.Time) {
	var benchmark *BenchmarkReport
	var fps *FPSReport

	fs.mu.Lock()
	if fs.runBenchmark {
		fs.numberOfFramesCaptured++
		if fs.numberOfFramesCaptured > initialBenchmarkFramesToIgnore {
			current := now.Sub(start)
			fs.totalFrameTimeDuringCapture += current
			samples := fs.numberOfFramesCaptured - initialBenchmarkFramesToIgnore
			benchmark = &BenchmarkReport{
				AverageFrameTime: fs.totalFrameTimeDuringCapture / time.Duration(samples),
				CurrentFrameTime: current,
				Samples:          samples,
			}
			fs.benchmark = benchmark
		}
	}
	if fs.logFPS {
		if window := now.Sub(fs.lastCheckTime); window > fpsCheckInterval {
			fps = &FPSReport{Frames: fs.framesSinceLastCheck, Window: window}
			fs.fps = fps
			fs.lastCheckTime = now
			fs.framesSinceLastCheck = 0
		}
		fs.framesSinceLastCheck++
	}
	fs.mu.Unlock()

	if benchmark != nil {
		fs.logger.Infow("frame time",
			"average_ms", float64(benchmark.AverageFrameTime)/float64(time.Millisecond),
			"current_ms", float64(benchmark.CurrentFrameTime)/float64(time.Millisecond))
		if fs.onBenchmark != nil {
			fs.onBenchmark(*benchmark)
		}
	}
	if fps != nil {
		fs.logger.Infow("fps", "frames", fps.Frames)
		if fs.onFPS != nil {
			fs.onFPS(*fps)
		}
	}
}

func (fs *frameStats) lastBenchmark() (BenchmarkReport, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.benchmark == nil {
		return BenchmarkReport{}, false
	}
	return *fs.benchmark, true
}

func (fs *frameStats) lastFPS() (FPSReport, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.fps == nil {
		return FPSReport{}, false
	}
	return *fs.fps, true
}

func (fs *frameStats) counters() (captured int, total time.Duration, sinceLastCheck int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.numberOfFramesCaptured, fs.totalFrameTimeDuringCapture, fs.framesSinceLastCheck
}
