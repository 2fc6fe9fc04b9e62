package gpu

import (
	"fmt"
	"image"

	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/colorconv"
)

// ErrUnsupportedShader is returned by backends asked to compile a shader they do not know.
var ErrUnsupportedShader = errors.New("unsupported shader")

// A TextureFormat is the layout of the pixels uploaded into a texture.
type TextureFormat int

// The known texture formats.
const (
	// TextureFormatLuminance is one byte per pixel.
	TextureFormatLuminance TextureFormat = iota
	// TextureFormatLuminanceAlpha is two bytes per pixel, used for interleaved CbCr.
	TextureFormatLuminanceAlpha
	// TextureFormatBGRA is four bytes per pixel in B, G, R, A order.
	TextureFormatBGRA
	// TextureFormatRGBA is four bytes per pixel in R, G, B, A order.
	TextureFormatRGBA
)

// BytesPerPixel returns the size of one pixel of the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatLuminance:
		return 1
	case TextureFormatLuminanceAlpha:
		return 2
	default:
		return 4
	}
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatLuminance:
		return "luminance"
	case TextureFormatLuminanceAlpha:
		return "luminanceAlpha"
	case TextureFormatBGRA:
		return "bgra"
	case TextureFormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("TextureFormat(%d)", int(f))
	}
}

// A Texture is an opaque backend texture handle.
type Texture interface {
	Size() Size
}

// TextureUpload describes CPU-resident pixels copied into a texture. Stride is the number
// of bytes between rows of Data and may exceed Size.Width*Format.BytesPerPixel().
type TextureUpload struct {
	Format TextureFormat
	Size   Size
	Stride int
	Data   []byte
}

// Validate checks that Data holds every row the upload describes.
func (u TextureUpload) Validate() error {
	rowBytes := u.Size.Width * u.Format.BytesPerPixel()
	if u.Size.Width <= 0 || u.Size.Height <= 0 {
		return errors.Errorf("invalid upload size %v", u.Size)
	}
	if u.Stride < rowBytes {
		return errors.Errorf("stride %d shorter than row of %d bytes", u.Stride, rowBytes)
	}
	if need := u.Stride*(u.Size.Height-1) + rowBytes; len(u.Data) < need {
		return errors.Errorf("plane of %d bytes shorter than required %d", len(u.Data), need)
	}
	return nil
}

// Packed returns the upload's rows without stride padding.
func (u TextureUpload) Packed() []byte {
	rowBytes := u.Size.Width * u.Format.BytesPerPixel()
	if u.Stride == rowBytes {
		return u.Data[:rowBytes*u.Size.Height]
	}
	out := make([]byte, rowBytes*u.Size.Height)
	for y := 0; y < u.Size.Height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], u.Data[y*u.Stride:y*u.Stride+rowBytes])
	}
	return out
}

// A Shader names a fragment program a backend knows how to build.
type Shader string

// The shaders used by the camera pipeline.
const (
	ShaderYUVConversionFullRange  Shader = "yuvConversionFullRange"
	ShaderYUVConversionVideoRange Shader = "yuvConversionVideoRange"
)

// ProgramSource requests a program taking Inputs textures.
type ProgramSource struct {
	Label  string
	Inputs int
	Shader Shader
}

// Uniforms are the per-draw parameters of a program.
type Uniforms struct {
	ColorConversionMatrix colorconv.Matrix3x3
}

// A Program is a compiled shader pass. Draw binds inputs[i] to texture unit i and writes
// into output.
type Program interface {
	Draw(output Texture, uniforms Uniforms, inputs ...Texture) error
	Release()
}

// A Backend performs texture and shader work. Backends are not safe for concurrent use;
// a Context serializes every call onto its worker.
type Backend interface {
	// NewTexture allocates a texture. Non texture-only textures may be drawn into.
	NewTexture(size Size, textureOnly bool) (Texture, error)
	// UploadTexture copies pixels into the texture bound at the given unit.
	UploadTexture(tex Texture, unit int, upload TextureUpload) error
	CompileProgram(src ProgramSource) (Program, error)
	// ReadPixels copies a drawn or uploaded texture back as RGBA.
	ReadPixels(tex Texture) (*image.RGBA, error)
	DeleteTexture(tex Texture)
	Close() error
}
