package msync

import "sync"

// DataGuard pairs a value with a lock so that every access to the value
// is race-safe.
type DataGuard[T any] struct {
	mutex sync.RWMutex
	value T
}

func NewDataGuard[T any](val T) *DataGuard[T] {
	return &DataGuard[T]{
		value: val,
	}
}

// Load passes the stored value to cb under a read lock.
func (l *DataGuard[T]) Load(cb func(T)) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	cb(l.value)
}

// Store replaces the stored value with cb's return, under a write lock.
func (l *DataGuard[T]) Store(cb func(T) T) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.value = cb(l.value)
}
