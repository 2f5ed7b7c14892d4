// Package store provides observable values for projecting monitor state to views.
//
// A [Value] holds one immutable snapshot at a time. [Value.Set] swaps the whole snapshot and notifies
// subscribers synchronously, in subscription order, before it returns, so a reader never sees a
// partially updated value. Callers that publish maps or slices must hand over a fresh copy and not
// mutate it afterwards.
package store

import (
	"slices"
	"sync"
)

// Readable is the read-only side of an observable value.
type Readable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

var (
	_ Readable[int] = (*Value[int])(nil)
	_ Readable[int] = (*Derived[int, int])(nil)
)

// Value is an observable holder of a T.
type Value[T any] struct {
	mu     sync.RWMutex
	notify sync.Mutex
	value  T
	subs   []*subscriber[T]
	nextID int
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Get returns the current snapshot.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the snapshot and calls every subscriber with it.
//
// Concurrent Sets are serialized, so subscribers observe values in the order they were stored.
// A subscriber must not call Set or Update on the same Value.
func (v *Value[T]) Set(next T) {
	v.notify.Lock()
	defer v.notify.Unlock()
	v.store(next)
}

// Update applies fn to the current snapshot and stores the result atomically with respect to other writers.
func (v *Value[T]) Update(fn func(T) T) {
	v.notify.Lock()
	defer v.notify.Unlock()
	v.store(fn(v.Get()))
}

func (v *Value[T]) store(next T) {
	v.mu.Lock()
	v.value = next
	subs := slices.Clone(v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
}

// Subscribe registers fn and returns a function that removes it. The unsubscribe function is idempotent.
//
// fn is not called with the current value; call [Value.Get] for that.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.subs = append(v.subs, &subscriber[T]{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.subs = slices.DeleteFunc(v.subs, func(s *subscriber[T]) bool { return s.id == id })
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}
