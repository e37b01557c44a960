package msync

import "sync/atomic"

// TypedAtomic is a type-safe atomic.Value. It holds the value itself
// rather than a pointer, so its zero value loads as T's zero value.
type TypedAtomic[T any] struct {
	v atomic.Value
}

func NewTypedAtomic[T any](val T) *TypedAtomic[T] {
	ta := &TypedAtomic[T]{}
	ta.v.Store(val)
	return ta
}

// Load returns the most recently stored value, or T's zero value if
// nothing was stored.
func (ta *TypedAtomic[T]) Load() T {
	val := ta.v.Load()
	if val == nil {
		return *new(T)
	}

	return val.(T)
}

// Store panics if T is an interface type and val is nil.
func (ta *TypedAtomic[T]) Store(val T) {
	ta.v.Store(val)
}
