package gpu

import (
	"fmt"
	"time"
)

// A Timestamp is a rational presentation time: Value/Timescale seconds.
type Timestamp struct {
	Value     int64
	Timescale int32
}

// NewTimestamp expresses a duration as a nanosecond timescale Timestamp.
func NewTimestamp(d time.Duration) Timestamp {
	return Timestamp{Value: int64(d), Timescale: int32(time.Second)}
}

// Seconds returns the timestamp in seconds. A zero timescale is treated as invalid and
// yields 0.
func (ts Timestamp) Seconds() float64 {
	if ts.Timescale == 0 {
		return 0
	}
	return float64(ts.Value) / float64(ts.Timescale)
}

// Duration converts the timestamp to a time.Duration.
func (ts Timestamp) Duration() time.Duration {
	if ts.Timescale == 0 {
		return 0
	}
	if ts.Timescale == int32(time.Second) {
		return time.Duration(ts.Value)
	}
	return time.Duration(ts.Seconds() * float64(time.Second))
}

// Before reports whether ts is strictly earlier than other, comparing across timescales.
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.Timescale == other.Timescale {
		return ts.Value < other.Value
	}
	return ts.Seconds() < other.Seconds()
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%d/%d", ts.Value, ts.Timescale)
}

// TimingStyle describes whether a framebuffer is a still image or a frame of a video
// stream with a presentation timestamp.
type TimingStyle struct {
	videoFrame bool
	timestamp  Timestamp
}

// NoTiming is the timing style of still images and freshly requested framebuffers.
var NoTiming = TimingStyle{}

// VideoFrame returns the timing style of a video frame presented at ts.
func VideoFrame(ts Timestamp) TimingStyle {
	return TimingStyle{videoFrame: true, timestamp: ts}
}

// IsVideoFrame reports whether the style carries a timestamp.
func (s TimingStyle) IsVideoFrame() bool {
	return s.videoFrame
}

// Timestamp returns the presentation timestamp and whether there is one.
func (s TimingStyle) Timestamp() (Timestamp, bool) {
	return s.timestamp, s.videoFrame
}

func (s TimingStyle) String() string {
	if !s.videoFrame {
		return "stillImage"
	}
	return "videoFrame(" + s.timestamp.String() + ")"
}
