// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"fmt"
	"sync/atomic"
)

// RefCounted is a shared-ownership discipline for objects handed across
// goroutines. The holder of a new [*RefCounted] owns one reference; every
// additional holder must [*RefCounted.IncRef] before the hand-off and
// [*RefCounted.DecRef] after final use. When the last reference drops the
// attached destructor runs exactly once.
//
// Any use after the final DecRef is a bug. Such use is detected on every
// call and turned into a panic carrying the object's diagnostic name, the
// analogue of overwriting an object's method table with trap thunks at
// destruction time.
type RefCounted struct {
	// cnt is the number of live references. Negative after destruction.
	cnt atomic.Int64

	// name identifies the object in trap diagnostics.
	name string

	// dtor runs when the last reference drops; may be nil.
	dtor func()
}

// NewRefCounted creates a [*RefCounted] with one reference and no attached
// destructor. The name identifies the object in trap diagnostics.
func NewRefCounted(name string) *RefCounted {
	rc := &RefCounted{name: name}
	rc.cnt.Store(1)
	return rc
}

// Attach binds the destructor invoked by the final [*RefCounted.DecRef].
// Call at most once, before the object is shared.
func (rc *RefCounted) Attach(dtor func()) {
	rc.trap("Attach")
	rc.dtor = dtor
}

// IncRef takes an additional reference.
func (rc *RefCounted) IncRef() {
	rc.trap("IncRef")
	rc.cnt.Add(1)
}

// DecRef drops one reference. The final DecRef runs the attached
// destructor exactly once.
func (rc *RefCounted) DecRef() {
	rc.trap("DecRef")
	if rc.cnt.Add(-1) == 0 {
		// Park the counter well below zero so that any subsequent
		// IncRef cannot resurrect the object past the trap check.
		rc.cnt.Store(-1000000)
		if rc.dtor != nil {
			rc.dtor()
		}
	}
}

// Live reports whether the object still holds at least one reference.
func (rc *RefCounted) Live() bool {
	return rc.cnt.Load() > 0
}

// trap panics when the method is invoked after destruction.
func (rc *RefCounted) trap(method string) {
	if rc.cnt.Load() <= 0 {
		panic(fmt.Sprintf("refcnt %s: method %s invoked after destruction", rc.name, method))
	}
}
