// Package async provides the Future type returned by every engine operation.
//
// A Future completes exactly once, with either a value or an error. Callers
// chain work onto it with Then and Compose; the continuation runs on the
// goroutine that completes the future, never on the caller's goroutine.
// The only place a request waits is Await, called once per request by the
// HTTP adapter.
//
// The shape follows the paho MQTT Token: a Done channel plus a result that
// is only meaningful once Done is closed.
package async

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual result of an asynchronous operation.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	callbacks []func()

	value T
	err   error
}

// New returns a pending future and the function that completes it.
// Only the first call to complete has any effect.
func New[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.complete
}

// Completed returns a future that already holds v.
func Completed[T any](v T) *Future[T] {
	f, complete := New[T]()
	complete(v, nil)
	return f
}

// Failed returns a future that already holds err.
func Failed[T any](err error) *Future[T] {
	f, complete := New[T]()
	var zero T
	complete(zero, err)
	return f
}

// Go runs fn on a new goroutine and returns a future for its result.
// A panic in fn completes the future with an error.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, complete := New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				complete(zero, fmt.Errorf("async: panic: %v", r))
			}
		}()
		complete(fn())
	}()
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value = v
		f.err = err
		callbacks := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb()
		}
	})
}

// Done is closed once the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the value and error of a completed future.
// It blocks until completion; use it only after Done has been closed or from
// inside a continuation.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Await waits for completion or for ctx to end, whichever comes first.
// Abandoning a future does not cancel the operation behind it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// onComplete registers cb to run when the future completes. If it already
// has, cb runs immediately on the calling goroutine.
func (f *Future[T]) onComplete(cb func()) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		cb()
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Then maps the value of f through fn. Errors skip fn and propagate.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next, complete := New[U]()
	f.onComplete(func() {
		v, err := f.Result()
		if err != nil {
			var zero U
			complete(zero, err)
			return
		}
		complete(guard(func() (U, error) { return fn(v) }))
	})
	return next
}

// Compose chains an asynchronous step onto f.
func Compose[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	next, complete := New[U]()
	f.onComplete(func() {
		v, err := f.Result()
		if err != nil {
			var zero U
			complete(zero, err)
			return
		}
		inner, err := guard(func() (*Future[U], error) { return fn(v), nil })
		if err == nil && inner == nil {
			err = fmt.Errorf("async: compose step returned nil future")
		}
		if err != nil {
			var zero U
			complete(zero, err)
			return
		}
		inner.onComplete(func() {
			complete(inner.Result())
		})
	})
	return next
}

// Discard drops the value of f, keeping only its error.
func Discard[T any](f *Future[T]) *Future[struct{}] {
	return Then(f, func(T) (struct{}, error) { return struct{}{}, nil })
}

// guard converts a panic inside a continuation into an error.
func guard[U any](fn func() (U, error)) (v U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async: panic in continuation: %v", r)
		}
	}()
	return fn()
}
