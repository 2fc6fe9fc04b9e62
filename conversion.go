package gpucamera

import (
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/gpu"
)

// convertYUVToRGB draws luma (unit 0) and chroma (unit 1) through the conversion program
// into a new locked framebuffer of the given size. The caller's locks on luma and chroma
// are always released.
func (c *Camera) convertYUVToRGB(luma, chroma *gpu.Framebuffer, size gpu.Size) (*gpu.Framebuffer, error) {
	defer chroma.Unlock()
	defer luma.Unlock()

	result, err := c.gpuContext.FramebufferCache().RequestFramebuffer(c.config.Orientation, size, false)
	if err != nil {
		return nil, err
	}
	result.Lock()
	uniforms := gpu.Uniforms{ColorConversionMatrix: c.conversionMatrix}
	if err := c.yuvConversionShader.Draw(result.Texture(), uniforms, luma.Texture(), chroma.Texture()); err != nil {
		result.Unlock()
		return nil, errors.Wrap(err, "converting yuv to rgb")
	}
	return result, nil
}
