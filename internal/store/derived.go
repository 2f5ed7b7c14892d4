package store

import "sync"

// Derived is a read-only value recomputed from a source [Value] on every write to the source.
type Derived[S, T any] struct {
	out   *Value[T]
	stop  func()
	close sync.Once
}

// Derive creates a Derived holding fn(src.Get()) and keeps it current until Close is called.
func Derive[S, T any](src *Value[S], fn func(S) T) *Derived[S, T] {
	d := &Derived[S, T]{out: NewValue(fn(src.Get()))}
	d.stop = src.Subscribe(func(s S) { d.out.Set(fn(s)) })
	return d
}

// Get returns the current derived value.
func (d *Derived[S, T]) Get() T { return d.out.Get() }

// Subscribe registers fn to be called with each recomputed value.
func (d *Derived[S, T]) Subscribe(fn func(T)) (unsubscribe func()) { return d.out.Subscribe(fn) }

// Close detaches the derived value from its source. Get keeps returning the last value.
func (d *Derived[S, T]) Close() {
	d.close.Do(d.stop)
}
