// Package task provides a fixed-size worker pool with future-returning
// submission, used to run server startup and shutdown off the caller's
// thread.
package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWaitTimeout is returned by Future.Wait when the deadline elapses
	// before the task completes.
	ErrWaitTimeout = errors.New("task: wait timed out")

	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("task: pool is shut down")
)

// Func is the unit of work a pool runs.
type Func func() (interface{}, error)

// Future is the handle for one submitted task. A task's panic or error is
// captured here and never escapes into the worker loop.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel closed when the task has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Completed reports whether the task has finished without blocking.
func (f *Future) Completed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes or timeout elapses (timeout <= 0
// blocks indefinitely) and returns the task's result and error. On deadline
// it returns ErrWaitTimeout; the task itself keeps running.
func (f *Future) Wait(timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		<-f.done
		return f.result, f.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		return nil, ErrWaitTimeout
	}
}

// run executes the task, capturing panics as errors on the future.
func (f *Future) run(fn Func) {
	defer func() {
		if r := recover(); r != nil {
			f.err = fmt.Errorf("task: panic: %v", r)
		}
		close(f.done)
	}()
	f.result, f.err = fn()
}
