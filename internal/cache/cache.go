// Package cache provides small in-memory caches with TTL expiry.
package cache

import (
	"sync"
	"time"
)

// Value is a single-slot cache with TTL. It caches one value under no key,
// for the "whole collection" read pattern where any write invalidates
// everything.
type Value[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	data      T
	populated bool
	expiresAt time.Time
}

// NewValue creates a single-slot cache with the given TTL.
func NewValue[T any](ttl time.Duration) *Value[T] {
	return &Value[T]{ttl: ttl}
}

// Get returns the cached value if present and unexpired.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	if !v.populated || time.Now().After(v.expiresAt) {
		return zero, false
	}
	return v.data, true
}

// Set stores a value and restarts the TTL clock.
func (v *Value[T]) Set(data T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data = data
	v.populated = true
	v.expiresAt = time.Now().Add(v.ttl)
}

// Invalidate drops the cached value.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	v.data = zero
	v.populated = false
}
