package transport

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// task is the unit of work handed to a worker: one inbound chunk (or
// lifecycle event) owned by exactly one goroutine for its duration,
// the Go analogue of original_source/thread_pool.h's heap-allocated
// completion record — ownership flows into the worker and ends when
// the task returns, no manual free list required.
type task func()

// pool is a fixed-size goroutine pool draining a single task channel,
// the idiomatic Go rendering of original_source/thread_pool.cpp's
// mutex+condvar+queue. Size defaults to hardware parallelism
// (minimum 1), per spec.md §5.
type pool struct {
	tasks chan task
	done  chan struct{}
	wg    sync.WaitGroup
	log   *zap.Logger
}

func newPool(size int, logger *zap.Logger) *pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if size < 1 {
		size = 1
	}
	p := &pool{
		tasks: make(chan task, 4096),
		done:  make(chan struct{}),
		log:   logger,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(t)
		}
	}
}

// run executes a single task, recovering a panic the way
// original_source/thread_pool.cpp's worker loop catches (...) around
// task() so one bad task never takes down a worker.
func (p *pool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("recover", r))
		}
	}()
	t()
}

// submit enqueues a task. It is a no-op once the pool has been told to stop.
func (p *pool) submit(t task) {
	select {
	case <-p.done:
		return
	case p.tasks <- t:
	}
}

// stop signals every worker to drain and waits for them all to exit,
// satisfying spec.md §5's "posts wake-ups equal to the worker count,
// and joins all workers" — closing done wakes every blocked worker at
// once rather than posting one wake-up per worker, which is the
// idiomatic channel-based equivalent.
func (p *pool) stop() {
	close(p.done)
	p.wg.Wait()
}
