// Package pool provides the bounded worker pool and the per-system worker
// budget arbitrator that every simulation subsystem schedules through.
package pool

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Priority orders submitted work. Higher priorities run first; within a
// priority, submission order is preserved.
type Priority uint8

const (
	Critical Priority = iota
	High
	Normal
	Low
)

// ErrShutdown is returned by Wait for work submitted after Shutdown.
var ErrShutdown = errors.New("pool: shut down")

// Handle tracks a single submitted work item.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the work item completes and returns its error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

func (h *Handle) complete(err error) {
	h.err = err
	close(h.done)
}

func failedHandle(err error) *Handle {
	h := &Handle{done: make(chan struct{})}
	h.complete(err)
	return h
}

// BatchHandle tracks a batch of submitted work items.
type BatchHandle struct {
	done      chan struct{}
	remaining atomic.Int64
	errOnce   sync.Once
	err       error
}

// Wait blocks until every item in the batch completes. It returns the first
// error observed; later items still run to completion.
func (b *BatchHandle) Wait() error {
	<-b.done
	return b.err
}

func (b *BatchHandle) itemDone(err error) {
	if err != nil {
		b.errOnce.Do(func() { b.err = err })
	}
	if b.remaining.Add(-1) == 0 {
		close(b.done)
	}
}

// task is a queued work item.
type task struct {
	pri    Priority
	seq    uint64
	run    func() error
	handle *Handle
	batch  *BatchHandle
	index  int
}

// taskHeap orders tasks by (priority, sequence).
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].pri != h[j].pri {
		return h[i].pri < h[j].pri
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Pool is a fixed-size worker pool with a priority task queue.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    taskHeap
	seq      uint64
	closed   bool
	workers  int
	wg       sync.WaitGroup
	logger   *slog.Logger
	inFlight atomic.Int64
}

// New creates a pool with the given number of workers (>= 1).
func New(workers int, logger *slog.Logger) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("pool: need at least 1 worker, got %d", workers)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{workers: workers, logger: logger}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Submit enqueues a single work item and returns its completion handle.
// After Shutdown the handle completes immediately with ErrShutdown.
func (p *Pool) Submit(pri Priority, run func() error) *Handle {
	h := &Handle{done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return failedHandle(ErrShutdown)
	}
	p.seq++
	heap.Push(&p.tasks, &task{pri: pri, seq: p.seq, run: run, handle: h})
	p.mu.Unlock()
	p.cond.Signal()
	return h
}

// SubmitBatch enqueues n work items with distinct indices under one handle.
func (p *Pool) SubmitBatch(pri Priority, n int, run func(i int) error) *BatchHandle {
	b := &BatchHandle{done: make(chan struct{})}
	if n <= 0 {
		close(b.done)
		return b
	}
	b.remaining.Store(int64(n))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		b.errOnce.Do(func() { b.err = ErrShutdown })
		close(b.done)
		return b
	}
	for i := 0; i < n; i++ {
		i := i
		p.seq++
		heap.Push(&p.tasks, &task{pri: pri, seq: p.seq, run: func() error { return run(i) }, batch: b, index: i})
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	return b
}

// Shutdown drains queued work, rejects new submissions and joins the workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// InFlight reports the number of tasks currently executing.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.tasks).(*task)
		p.mu.Unlock()

		p.inFlight.Add(1)
		err := p.runTask(t)
		p.inFlight.Add(-1)

		if t.handle != nil {
			t.handle.complete(err)
		}
		if t.batch != nil {
			t.batch.itemDone(err)
		}
	}
}

// runTask executes a task, converting panics into errors. A panicking work
// item fails its handle but never poisons the pool.
func (p *Pool) runTask(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: task panic: %v", r)
			p.logger.Error("worker task panicked", "panic", r, "priority", t.pri)
		}
	}()
	return t.run()
}
