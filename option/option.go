// Package option implements a generic optional value, similar to Rust's
// Option. It marshals to BSON as the wrapped value or as null.
package option

import (
	"fmt"
	"reflect"
)

// Option represents a possibly-empty value. The zero value is empty.
type Option[T any] struct {
	val *T
}

// Some returns an Option that wraps the given value. It panics if the value
// is a nil pointer, map, slice, or interface; use FromPointer for those.
func Some[T any](value T) Option[T] {
	if isNil(value) {
		panic(fmt.Sprintf("Option.Some() given nil %T", value))
	}

	return Option[T]{&value}
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// FromPointer returns an Option that wraps the pointer's referent, or an
// empty Option if the pointer is nil.
func FromPointer[T any](valPtr *T) Option[T] {
	if valPtr == nil {
		return None[T]()
	}

	return Some(*valPtr)
}

// Get returns the wrapped value and whether it exists.
func (o Option[T]) Get() (T, bool) {
	if o.val == nil {
		return *new(T), false
	}

	return *o.val, true
}

// MustGet is like Get but panics if the Option is empty.
func (o Option[T]) MustGet() T {
	val, exists := o.Get()
	if !exists {
		panic(fmt.Sprintf("MustGet() called on empty %T", o))
	}

	return val
}

// OrZero returns the wrapped value or the type's zero value.
func (o Option[T]) OrZero() T {
	val, _ := o.Get()

	return val
}

// OrElse returns the wrapped value or the given fallback.
func (o Option[T]) OrElse(fallback T) T {
	if val, exists := o.Get(); exists {
		return val
	}

	return fallback
}

// IsSome indicates whether the Option has a value.
func (o Option[T]) IsSome() bool {
	return o.val != nil
}

// IsNone indicates whether the Option is empty.
func (o Option[T]) IsNone() bool {
	return !o.IsSome()
}

// ToPointer returns a pointer to a copy of the wrapped value, or nil.
func (o Option[T]) ToPointer() *T {
	if o.val == nil {
		return nil
	}

	theCopy := *o.val
	return &theCopy
}

func isNil(val any) bool {
	if val == nil {
		return true
	}

	switch reflect.TypeOf(val).Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return reflect.ValueOf(val).IsNil()
	}

	return false
}
