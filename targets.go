package gpucamera

import (
	"sync"

	"github.com/edaniels/gpucamera/gpu"
)

// An ImageConsumer receives framebuffers from a Camera. The framebuffer arrives already
// locked on the consumer's behalf and the consumer must Unlock it when done. Receive runs
// on the GPU context; consumers that need long work should hand off elsewhere.
type ImageConsumer interface {
	Receive(fb *gpu.Framebuffer, slot uint)
}

// A ConsumerBinding attaches a consumer at one of its input slots.
type ConsumerBinding struct {
	Consumer ImageConsumer
	Slot     uint
}

// A TargetContainer is the set of bindings a source delivers to. Consumers are compared
// by identity, so they should be pointers.
type TargetContainer struct {
	mu       sync.Mutex
	bindings []ConsumerBinding
}

// NewTargetContainer returns an empty container.
func NewTargetContainer() *TargetContainer {
	return &TargetContainer{}
}

// AddTarget binds consumer at slot. It returns false if the binding already existed.
func (tc *TargetContainer) AddTarget(consumer ImageConsumer, slot uint) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, b := range tc.bindings {
		if b.Consumer == consumer && b.Slot == slot {
			return false
		}
	}
	tc.bindings = append(tc.bindings, ConsumerBinding{Consumer: consumer, Slot: slot})
	return true
}

// RemoveTarget removes every binding of consumer and returns how many there were.
func (tc *TargetContainer) RemoveTarget(consumer ImageConsumer) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	kept := tc.bindings[:0]
	var removed int
	for _, b := range tc.bindings {
		if b.Consumer == consumer {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(tc.bindings); i++ {
		tc.bindings[i] = ConsumerBinding{}
	}
	tc.bindings = kept
	return removed
}

// RemoveAllTargets clears the container.
func (tc *TargetContainer) RemoveAllTargets() {
	tc.mu.Lock()
	tc.bindings = nil
	tc.mu.Unlock()
}

// Bindings returns a snapshot of the current bindings.
func (tc *TargetContainer) Bindings() []ConsumerBinding {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]ConsumerBinding(nil), tc.bindings...)
}

// Len returns the number of bindings.
func (tc *TargetContainer) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.bindings)
}

// updateTargetsWithFramebuffer delivers fb to every binding. The caller holds one lock on
// fb which is released here once every consumer has been notified. Every consumer lock is
// taken before the first delivery so no consumer can drive the count to zero while others
// are still waiting for the framebuffer.
func (tc *TargetContainer) updateTargetsWithFramebuffer(fb *gpu.Framebuffer) {
	bindings := tc.Bindings()
	for range bindings {
		fb.Lock()
	}
	for _, b := range bindings {
		b.Consumer.Receive(fb, b.Slot)
	}
	fb.Unlock()
}
