package colorconv

import "fmt"

// A Range is the numeric convention luma and chroma samples are encoded in.
type Range int

// The known ranges.
const (
	RangeVideo Range = iota
	RangeFull
)

func (r Range) String() string {
	switch r {
	case RangeVideo:
		return "video"
	case RangeFull:
		return "full"
	default:
		return fmt.Sprintf("Range(%d)", int(r))
	}
}

// LumaOffset is subtracted from normalized luma before the matrix is applied.
func (r Range) LumaOffset() float32 {
	if r == RangeVideo {
		return 16.0 / 255.0
	}
	return 0
}

// MatrixForRange returns the BT.601 matrix that is correct for the range.
func MatrixForRange(r Range) Matrix3x3 {
	if r == RangeFull {
		return ColorConversionMatrix601FullRangeDefault
	}
	return ColorConversionMatrix601Default
}
