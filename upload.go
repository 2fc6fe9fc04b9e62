package gpucamera

import (
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/gpu"
)

// uploadFrame copies each plane into its own texture-only framebuffer, binding plane i to
// texture unit i. Every returned framebuffer is locked once for the caller. On failure
// nothing stays locked.
func (c *Camera) uploadFrame(uploads []gpu.TextureUpload) ([]*gpu.Framebuffer, error) {
	cache := c.gpuContext.FramebufferCache()
	backend := c.gpuContext.Backend()

	framebuffers := make([]*gpu.Framebuffer, 0, len(uploads))
	for unit, upload := range uploads {
		fb, err := cache.RequestFramebuffer(c.config.Orientation, upload.Size, true)
		if err != nil {
			unlockAll(framebuffers)
			return nil, err
		}
		fb.Lock()
		framebuffers = append(framebuffers, fb)
		if err := backend.UploadTexture(fb.Texture(), unit, upload); err != nil {
			unlockAll(framebuffers)
			return nil, errors.Wrapf(err, "uploading %v plane to unit %d", upload.Format, unit)
		}
	}
	return framebuffers, nil
}

func unlockAll(framebuffers []*gpu.Framebuffer) {
	for _, fb := range framebuffers {
		fb.Unlock()
	}
}
