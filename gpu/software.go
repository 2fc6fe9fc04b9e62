package gpu

import (
	"image"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/colorconv"
)

// SoftwareTexture is a CPU-resident texture of a SoftwareBackend.
type SoftwareTexture struct {
	id          uint64
	size        Size
	textureOnly bool
	format      TextureFormat
	pix         []byte
}

// Size returns the allocated dimensions.
func (t *SoftwareTexture) Size() Size {
	return t.size
}

// ID uniquely identifies the texture within its backend.
func (t *SoftwareTexture) ID() uint64 {
	return t.id
}

// Format returns the format of the last upload or draw.
func (t *SoftwareTexture) Format() TextureFormat {
	return t.format
}

// Pix returns the tightly packed pixel contents.
func (t *SoftwareTexture) Pix() []byte {
	return t.pix
}

// A SoftwareBackend keeps textures in memory and runs shaders on the CPU. It is used
// where no GPU is available and by tests.
type SoftwareBackend struct {
	nextID   uint64
	live     int64
	bound    [2]*SoftwareTexture
	uploaded int64
	draws    int64
}

// NewSoftwareBackend returns an empty software backend.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{}
}

// NewTexture implements Backend.
func (b *SoftwareBackend) NewTexture(size Size, textureOnly bool) (Texture, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.Errorf("invalid texture size %v", size)
	}
	atomic.AddInt64(&b.live, 1)
	return &SoftwareTexture{
		id:          atomic.AddUint64(&b.nextID, 1),
		size:        size,
		textureOnly: textureOnly,
		format:      TextureFormatRGBA,
	}, nil
}

func (b *SoftwareBackend) texture(tex Texture) (*SoftwareTexture, error) {
	st, ok := tex.(*SoftwareTexture)
	if !ok || st == nil {
		return nil, errors.Errorf("texture %T does not belong to the software backend", tex)
	}
	return st, nil
}

// UploadTexture implements Backend.
func (b *SoftwareBackend) UploadTexture(tex Texture, unit int, upload TextureUpload) error {
	st, err := b.texture(tex)
	if err != nil {
		return err
	}
	if unit < 0 || unit >= len(b.bound) {
		return errors.Errorf("texture unit %d out of range", unit)
	}
	if err := upload.Validate(); err != nil {
		return err
	}
	if upload.Size.Width > st.size.Width || upload.Size.Height > st.size.Height {
		return errors.Errorf("upload of %v does not fit texture of %v", upload.Size, st.size)
	}
	packed := upload.Packed()
	st.pix = append(st.pix[:0], packed...)
	st.format = upload.Format
	b.bound[unit] = st
	atomic.AddInt64(&b.uploaded, 1)
	return nil
}

// CompileProgram implements Backend.
func (b *SoftwareBackend) CompileProgram(src ProgramSource) (Program, error) {
	var rng colorconv.Range
	switch src.Shader {
	case ShaderYUVConversionFullRange:
		rng = colorconv.RangeFull
	case ShaderYUVConversionVideoRange:
		rng = colorconv.RangeVideo
	default:
		return nil, errors.Wrapf(ErrUnsupportedShader, "%q", src.Shader)
	}
	if src.Inputs != 2 {
		return nil, errors.Errorf("yuv conversion takes 2 inputs, not %d", src.Inputs)
	}
	return &softwareYUVProgram{backend: b, rng: rng}, nil
}

// ReadPixels implements Backend.
func (b *SoftwareBackend) ReadPixels(tex Texture) (*image.RGBA, error) {
	st, err := b.texture(tex)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, st.size.Width, st.size.Height))
	switch st.format {
	case TextureFormatRGBA:
		copy(img.Pix, st.pix)
	case TextureFormatBGRA:
		colorconv.BGRAToRGBA(img.Pix, st.pix)
	case TextureFormatLuminance:
		for i, v := range st.pix {
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = v, v, v, 0xff
		}
	default:
		return nil, errors.Errorf("cannot read back %v texture", st.format)
	}
	return img, nil
}

// DeleteTexture implements Backend.
func (b *SoftwareBackend) DeleteTexture(tex Texture) {
	st, err := b.texture(tex)
	if err != nil {
		return
	}
	st.pix = nil
	atomic.AddInt64(&b.live, -1)
}

// Close implements Backend.
func (b *SoftwareBackend) Close() error {
	return nil
}

// LiveTextures returns the number of allocated and not deleted textures.
func (b *SoftwareBackend) LiveTextures() int {
	return int(atomic.LoadInt64(&b.live))
}

// Uploads returns the number of successful uploads.
func (b *SoftwareBackend) Uploads() int {
	return int(atomic.LoadInt64(&b.uploaded))
}

// Draws returns the number of successful program draws.
func (b *SoftwareBackend) Draws() int {
	return int(atomic.LoadInt64(&b.draws))
}

type softwareYUVProgram struct {
	backend *SoftwareBackend
	rng     colorconv.Range
}

func (p *softwareYUVProgram) Draw(output Texture, uniforms Uniforms, inputs ...Texture) error {
	if len(inputs) != 2 {
		return errors.Errorf("yuv conversion takes 2 inputs, got %d", len(inputs))
	}
	out, err := p.backend.texture(output)
	if err != nil {
		return err
	}
	if out.textureOnly {
		return errors.New("cannot draw into a texture-only framebuffer")
	}
	luma, err := p.backend.texture(inputs[0])
	if err != nil {
		return err
	}
	chroma, err := p.backend.texture(inputs[1])
	if err != nil {
		return err
	}
	width, height := out.size.Width, out.size.Height
	chromaWidth, chromaHeight := colorconv.ChromaSize(width, height)
	if len(luma.pix) < width*height || len(chroma.pix) < chromaWidth*chromaHeight*2 {
		return errors.New("input textures smaller than output")
	}
	if cap(out.pix) < width*height*4 {
		out.pix = make([]byte, width*height*4)
	}
	out.pix = out.pix[:width*height*4]
	colorconv.NV12ToRGBA(out.pix, luma.pix, chroma.pix, width, height, uniforms.ColorConversionMatrix, p.rng)
	out.format = TextureFormatRGBA
	atomic.AddInt64(&p.backend.draws, 1)
	return nil
}

func (p *softwareYUVProgram) Release() {}
