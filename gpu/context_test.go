package gpu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestContextRunsWorkInOrder(t *testing.T) {
	gctx := NewContext(NewSoftwareBackend(), golog.NewTestLogger(t))
	defer func() {
		test.That(t, gctx.Close(context.Background()), test.ShouldBeNil)
	}()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		test.That(t, gctx.RunAsync(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}), test.ShouldBeNil)
	}
	test.That(t, gctx.RunSync(func() error { return nil }), test.ShouldBeNil)

	mu.Lock()
	defer mu.Unlock()
	test.That(t, order, test.ShouldHaveLength, 100)
	for i, v := range order {
		test.That(t, v, test.ShouldEqual, i)
	}
}

func TestContextRunAsyncDoesNotBlock(t *testing.T) {
	gctx := NewContext(NewSoftwareBackend(), golog.NewTestLogger(t))
	release := make(chan struct{})
	test.That(t, gctx.RunAsync(func() { <-release }), test.ShouldBeNil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			test.That(t, gctx.RunAsync(func() {}), test.ShouldBeNil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunAsync blocked behind running work")
	}
	close(release)
	test.That(t, gctx.Close(context.Background()), test.ShouldBeNil)
}

func TestContextRunSync(t *testing.T) {
	gctx := NewContext(NewSoftwareBackend(), golog.NewTestLogger(t))
	defer gctx.Close(context.Background())

	errBoom := errors.New("boom")
	test.That(t, gctx.RunSync(func() error { return errBoom }), test.ShouldEqual, errBoom)

	err := gctx.RunSync(func() error { panic("bad work") })
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad work")

	// the worker survives a panicking unit of work
	test.That(t, gctx.RunSync(func() error { return nil }), test.ShouldBeNil)
}

func TestContextClose(t *testing.T) {
	backend := NewSoftwareBackend()
	gctx := NewContext(backend, golog.NewTestLogger(t))

	var ran bool
	test.That(t, gctx.RunAsync(func() {
		fb, err := gctx.FramebufferCache().RequestFramebuffer(Portrait, Size{2, 2}, true)
		test.That(t, err, test.ShouldBeNil)
		fb.Lock()
		fb.Unlock()
		ran = true
	}), test.ShouldBeNil)

	test.That(t, gctx.Close(context.Background()), test.ShouldBeNil)
	test.That(t, ran, test.ShouldBeTrue)
	test.That(t, backend.LiveTextures(), test.ShouldEqual, 0)
	test.That(t, gctx.RunAsync(func() {}), test.ShouldBeError, ErrContextClosed)
	test.That(t, gctx.RunSync(func() error { return nil }), test.ShouldBeError, ErrContextClosed)
	test.That(t, gctx.Close(context.Background()), test.ShouldBeNil)
}
