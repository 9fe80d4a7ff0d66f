package task

import (
	"runtime"
	"sync"
	"time"
)

// DefaultWorkers is the pool size when none is given, CPU count times five.
// Tasks here are launch/IO bound, not CPU bound.
func DefaultWorkers() int {
	return runtime.NumCPU() * 5
}

type item struct {
	fn     Func // nil is the shutdown sentinel
	future *Future
}

// Pool runs submitted tasks on a fixed set of worker goroutines. Pools only
// grow; to shrink, discard the pool and create a new one.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []item
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with n workers (n <= 0 uses DefaultWorkers).
func NewPool(n int) *Pool {
	if n <= 0 {
		n = DefaultWorkers()
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	p.spawn(n)
	return p
}

func (p *Pool) spawn(n int) {
	p.mu.Lock()
	p.workers += n
	p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Grow adds n workers. Shrinking is not supported.
func (p *Pool) Grow(n int) {
	if n > 0 {
		p.spawn(n)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Submit queues fn and returns its future. After Shutdown it returns
// ErrPoolClosed.
func (p *Pool) Submit(fn Func) (*Future, error) {
	f := newFuture()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, item{fn: fn, future: f})
	p.cond.Signal()
	p.mu.Unlock()
	return f, nil
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			p.cond.Wait()
		}
		it := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if it.fn == nil {
			return
		}
		it.future.run(it.fn)
	}
}

// Shutdown stops accepting new work and tells every worker to exit after its
// current task. Sentinels are placed ahead of queued work, so tasks that
// have not started yet are dropped. With wait true it blocks until all
// workers exit or timeout elapses (timeout <= 0 waits indefinitely),
// returning whether shutdown completed in time. Idempotent.
func (p *Pool) Shutdown(wait bool, timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		sentinels := make([]item, p.workers)
		p.queue = append(sentinels, p.queue...)
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	if !wait {
		return true
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
