package gpucamera

import "github.com/edaniels/gpucamera/colorconv"

// A PixelFormat is a layout a capture session can deliver frames in.
type PixelFormat string

// The pixel formats the pipeline understands.
const (
	// PixelFormat420YpCbCr8BiPlanarFullRange is 4:2:0 luma plus interleaved CbCr, full range.
	PixelFormat420YpCbCr8BiPlanarFullRange PixelFormat = "420f"
	// PixelFormat420YpCbCr8BiPlanarVideoRange is 4:2:0 luma plus interleaved CbCr, video range.
	PixelFormat420YpCbCr8BiPlanarVideoRange PixelFormat = "420v"
	// PixelFormat32BGRA is a single packed plane of B, G, R, A bytes.
	PixelFormat32BGRA PixelFormat = "BGRA"
)

// Planar reports whether frames of the format carry separate luma and chroma planes.
func (f PixelFormat) Planar() bool {
	return f == PixelFormat420YpCbCr8BiPlanarFullRange || f == PixelFormat420YpCbCr8BiPlanarVideoRange
}

// Range returns the numeric range of a planar format.
func (f PixelFormat) Range() colorconv.Range {
	if f == PixelFormat420YpCbCr8BiPlanarFullRange {
		return colorconv.RangeFull
	}
	return colorconv.RangeVideo
}

// selectYUVFormat picks the full range biplanar format when the session offers it and
// falls back to video range otherwise.
func selectYUVFormat(available []PixelFormat) (PixelFormat, colorconv.Matrix3x3) {
	for _, f := range available {
		if f == PixelFormat420YpCbCr8BiPlanarFullRange {
			return f, colorconv.MatrixForRange(colorconv.RangeFull)
		}
	}
	return PixelFormat420YpCbCr8BiPlanarVideoRange, colorconv.MatrixForRange(colorconv.RangeVideo)
}
