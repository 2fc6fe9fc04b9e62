// Package gpu provides the serialized GPU execution context, the reference counted
// framebuffer pool and the backend contract the camera pipeline renders through.
package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrContextClosed is returned when work is submitted to a closed Context.
var ErrContextClosed = errors.New("gpu context closed")

// A Context owns a backend and its framebuffer cache and runs all work touching them on a
// single worker in FIFO order. It replaces any notion of a process wide GPU context: create
// one, pass it to everything that renders, and Close it at shutdown.
type Context struct {
	backend Backend
	cache   *FramebufferCache
	logger  golog.Logger

	mu                      sync.Mutex
	cond                    *sync.Cond
	queue                   []func()
	closed                  bool
	activeBackgroundWorkers sync.WaitGroup
}

// NewContext starts a context's worker over the given backend.
func NewContext(backend Backend, logger golog.Logger) *Context {
	if logger == nil {
		logger = golog.Global().Named("gpu")
	}
	c := &Context{
		backend: backend,
		cache:   NewFramebufferCache(backend, logger),
		logger:  logger,
	}
	c.cond = sync.NewCond(&c.mu)
	c.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(c.processWork, c.activeBackgroundWorkers.Done)
	return c
}

// Backend returns the backend. It must only be used from work running on the context.
func (c *Context) Backend() Backend {
	return c.backend
}

// FramebufferCache returns the shared framebuffer pool.
func (c *Context) FramebufferCache() *FramebufferCache {
	return c.cache
}

func (c *Context) processWork() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		work := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		work()
	}
}

// RunAsync enqueues work and returns without waiting for it. It never blocks.
func (c *Context) RunAsync(work func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	c.queue = append(c.queue, work)
	c.cond.Signal()
	return nil
}

// RunSync enqueues work and waits for it to finish. It must not be called from work
// already running on the context.
func (c *Context) RunSync(work func() error) error {
	done := make(chan error, 1)
	if err := c.RunAsync(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic running gpu work: %v", r)
			}
		}()
		done <- work()
	}); err != nil {
		return err
	}
	return <-done
}

// Pending returns the number of queued units of work not yet started.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops accepting work, drains what is queued, purges the framebuffer cache and
// closes the backend.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.activeBackgroundWorkers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for gpu work to drain")
	}

	c.cache.Purge()
	return c.backend.Close()
}
