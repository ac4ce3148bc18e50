package workers

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPoolBusy is returned when every worker is busy and the backlog is full.
	ErrPoolBusy = errors.New("analysis pool is busy")
	// ErrPoolClosed is returned after Close.
	ErrPoolClosed = errors.New("analysis pool is closed")
)

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs blocking analysis calls on a fixed set of goroutines so a slow
// agent cannot pin more than size request goroutines' worth of work.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers with a backlog of queueSize pending jobs.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{jobs: make(chan job, queueSize)}
	p.wg.Add(size)
	for range size {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.done <- j.fn(j.ctx)
	}
}

// Do hands fn to a worker and waits for it. It never blocks on a full pool:
// ErrPoolBusy comes back at once. If ctx ends first Do returns ctx.Err() while
// fn keeps running; fn's context carries ctx's values without its
// cancellation.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := job{
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan error, 1),
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		return ErrPoolBusy
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for queued and running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
