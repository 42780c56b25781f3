// Package cache implements one-shot lazy computation (memoisation) and an
// interned-by-name resource registry: each name maps to one resource whose
// temp-file extraction runs lazily, at most once, under a mutex.
package cache

import "sync"

// Lazy memoises a single fallible computation: the first call to Get runs
// producer and caches the outcome (value or error); every later call returns
// the cached outcome without re-running producer. Safe for concurrent use.
type Lazy[T any] struct {
	mu       sync.Mutex
	done     bool
	value    T
	err      error
	producer func() (T, error)
}

// NewLazy returns a Lazy that will compute its value by calling producer
// exactly once.
func NewLazy[T any](producer func() (T, error)) *Lazy[T] {
	return &Lazy[T]{producer: producer}
}

// Get returns the memoised value or error, computing it on the first call.
func (l *Lazy[T]) Get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.value, l.err = l.producer()
		l.done = true
	}
	return l.value, l.err
}

// Computed reports whether the producer has already run.
func (l *Lazy[T]) Computed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
