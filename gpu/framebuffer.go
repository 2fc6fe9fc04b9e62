package gpu

import (
	"sync"
)

// A Framebuffer is a GPU-resident image handed out by a FramebufferCache. It is exclusively
// owned by its requester until locked and then shared by every holder until the reference
// count drops back to zero, at which point it returns to the cache for reuse.
type Framebuffer struct {
	size        Size
	textureOnly bool
	texture     Texture
	cache       *FramebufferCache

	mu          sync.Mutex
	orientation Orientation
	retainCount int
	cached      bool
	timing      TimingStyle
}

// Size returns the dimensions of the framebuffer.
func (fb *Framebuffer) Size() Size {
	return fb.size
}

// TextureOnly reports whether the framebuffer is only a texture and cannot be drawn into.
func (fb *Framebuffer) TextureOnly() bool {
	return fb.textureOnly
}

// Texture returns the backend texture handle.
func (fb *Framebuffer) Texture() Texture {
	return fb.texture
}

// Orientation returns the orientation tag of the contents.
func (fb *Framebuffer) Orientation() Orientation {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.orientation
}

// TimingStyle returns the timing tag of the contents.
func (fb *Framebuffer) TimingStyle() TimingStyle {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.timing
}

// SetTimingStyle tags the contents. The producer sets it once before sharing the
// framebuffer.
func (fb *Framebuffer) SetTimingStyle(style TimingStyle) {
	fb.mu.Lock()
	fb.timing = style
	fb.mu.Unlock()
}

// ReferenceCount returns the number of outstanding locks.
func (fb *Framebuffer) ReferenceCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.retainCount
}

// Lock adds a holder.
func (fb *Framebuffer) Lock() {
	fb.mu.Lock()
	fb.retainCount++
	fb.mu.Unlock()
}

// Unlock removes a holder. When the last holder unlocks, the framebuffer becomes eligible
// for reuse by its cache. Unlocking more times than locked is logged and otherwise ignored.
func (fb *Framebuffer) Unlock() {
	fb.mu.Lock()
	fb.retainCount--
	if fb.retainCount > 0 {
		fb.mu.Unlock()
		return
	}
	overReleased := fb.retainCount < 0
	fb.retainCount = 0
	alreadyCached := fb.cached
	fb.cached = true
	fb.mu.Unlock()

	if fb.cache == nil {
		return
	}
	if overReleased {
		fb.cache.logger.Warnw("tried to overrelease a framebuffer", "size", fb.size)
	}
	if alreadyCached {
		return
	}
	fb.cache.returnToCache(fb)
}

func (fb *Framebuffer) reset(orientation Orientation) {
	fb.mu.Lock()
	fb.orientation = orientation
	fb.retainCount = 0
	fb.cached = false
	fb.timing = NoTiming
	fb.mu.Unlock()
}
