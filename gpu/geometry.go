package gpu

import "fmt"

// A Size is the pixel dimensions of a texture or framebuffer.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Pixels returns Width*Height.
func (s Size) Pixels() int {
	return s.Width * s.Height
}

// An Orientation tags how the contents of a framebuffer are rotated relative to portrait.
type Orientation int

// The known orientations.
const (
	Portrait Orientation = iota
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case PortraitUpsideDown:
		return "portraitUpsideDown"
	case LandscapeLeft:
		return "landscapeLeft"
	case LandscapeRight:
		return "landscapeRight"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// RotationToPortrait is the clockwise rotation in degrees that brings the orientation
// upright.
func (o Orientation) RotationToPortrait() int {
	switch o {
	case PortraitUpsideDown:
		return 180
	case LandscapeLeft:
		return 90
	case LandscapeRight:
		return 270
	default:
		return 0
	}
}
