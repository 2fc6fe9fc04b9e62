package gpu

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

type framebufferKey struct {
	size        Size
	textureOnly bool
}

// A FramebufferCache pools framebuffers by size and kind. Framebuffers whose reference
// count returns to zero go back on a free list instead of being destroyed. Requests and
// purges touch textures and must run on the owning Context; returns may come from any
// goroutine.
type FramebufferCache struct {
	backend Backend
	logger  golog.Logger

	mu        sync.Mutex
	free      map[framebufferKey][]*Framebuffer
	allocated int
}

// NewFramebufferCache returns a cache allocating textures from the given backend.
func NewFramebufferCache(backend Backend, logger golog.Logger) *FramebufferCache {
	return &FramebufferCache{
		backend: backend,
		logger:  logger,
		free:    map[framebufferKey][]*Framebuffer{},
	}
}

// RequestFramebuffer hands out a framebuffer with a zero reference count, reusing a free
// one of the same size and kind when available.
func (c *FramebufferCache) RequestFramebuffer(orientation Orientation, size Size, textureOnly bool) (*Framebuffer, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.Errorf("invalid framebuffer size %v", size)
	}
	key := framebufferKey{size: size, textureOnly: textureOnly}

	c.mu.Lock()
	if list := c.free[key]; len(list) > 0 {
		fb := list[len(list)-1]
		c.free[key] = list[:len(list)-1]
		c.mu.Unlock()
		fb.reset(orientation)
		return fb, nil
	}
	c.mu.Unlock()

	tex, err := c.backend.NewTexture(size, textureOnly)
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %v framebuffer", size)
	}
	c.mu.Lock()
	c.allocated++
	c.mu.Unlock()
	fb := &Framebuffer{
		size:        size,
		textureOnly: textureOnly,
		texture:     tex,
		cache:       c,
		orientation: orientation,
	}
	return fb, nil
}

func (c *FramebufferCache) returnToCache(fb *Framebuffer) {
	key := framebufferKey{size: fb.size, textureOnly: fb.textureOnly}
	c.mu.Lock()
	c.free[key] = append(c.free[key], fb)
	c.mu.Unlock()
}

// FreeCount returns how many framebuffers are waiting for reuse.
func (c *FramebufferCache) FreeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, list := range c.free {
		n += len(list)
	}
	return n
}

// Allocated returns how many textures the cache has ever allocated and not purged.
func (c *FramebufferCache) Allocated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// Purge destroys every free framebuffer's texture.
func (c *FramebufferCache) Purge() {
	c.mu.Lock()
	free := c.free
	c.free = map[framebufferKey][]*Framebuffer{}
	c.mu.Unlock()

	for _, list := range free {
		for _, fb := range list {
			c.backend.DeleteTexture(fb.texture)
			c.mu.Lock()
			c.allocated--
			c.mu.Unlock()
		}
	}
}
