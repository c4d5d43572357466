// Package resource provides lazily opened, shared handles to expensive
// resources such as HTTP sessions and database connections.
package resource

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("resource closed")

// Handle opens its resource on first Acquire and hands the same value to every
// later caller. Concurrent first callers share one in-flight open. A failed
// open is not remembered; the next Acquire tries again.
type Handle[T any] struct {
	open    func(ctx context.Context) (T, error)
	release func(T) error

	group singleflight.Group

	mu     sync.RWMutex
	value  T
	ready  bool
	closed bool
}

// New creates a Handle. release may be nil.
func New[T any](open func(ctx context.Context) (T, error), release func(T) error) *Handle[T] {
	return &Handle[T]{open: open, release: release}
}

// Acquire returns the open resource, opening it if needed. A caller whose ctx
// ends while the open is in flight returns ctx.Err(); the open itself keeps
// running for the other waiters.
func (h *Handle[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	if v, ok, err := h.current(); ok || err != nil {
		return v, err
	}

	ch := h.group.DoChan("open", func() (any, error) {
		if v, ok, err := h.current(); ok || err != nil {
			return v, err
		}

		v, err := h.open(context.WithoutCancel(ctx))
		if err != nil {
			return zero, err
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			if h.release != nil {
				_ = h.release(v)
			}
			return zero, ErrClosed
		}
		h.value, h.ready = v, true
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Handle[T]) current() (T, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		var zero T
		return zero, false, ErrClosed
	}
	return h.value, h.ready, nil
}

// Ready reports whether the resource is currently open.
func (h *Handle[T]) Ready() bool {
	_, ok, _ := h.current()
	return ok
}

// Close releases the resource if it was opened. Later Acquire calls fail with ErrClosed.
func (h *Handle[T]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if !h.ready {
		return nil
	}
	h.ready = false
	v := h.value
	var zero T
	h.value = zero
	if h.release != nil {
		return h.release(v)
	}
	return nil
}
