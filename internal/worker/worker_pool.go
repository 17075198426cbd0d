// ============================================================================
// cookbot Worker Pool - parallel scenario runner
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Purpose: manage a fixed set of Worker goroutines and hand them scenario tasks
//
// Architecture:
//   ┌─────────────┐
//   │   caller    │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool(buffer) - create channels
//   2. Start(n)        - launch n workers
//   3. Submit(task)    - queue a task
//   4. ReceiveResult() - read a result
//   5. Stop()          - reject new tasks, let workers drain taskCh, wait
//
// Shutdown:
//   Stop closes stopCh first so blocked Submits return ErrPoolClosed, waits
//   for every in-flight Submit to leave, and only then closes taskCh. A send
//   on a closed taskCh is therefore impossible.
//
// ============================================================================

package worker

import (
	"errors"
	"sync"
)

var (
	// ErrPoolClosed is returned once the pool has been stopped.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted is returned by Submit before Start.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	workers  []*Worker
	taskCh   chan Task
	resultCh chan Result
	stopCh   chan struct{}
	wg       sync.WaitGroup // workers
	submits  sync.WaitGroup // Submit calls past the state check
	started  bool
	stopped  bool
	mu       sync.Mutex // protects started, stopped and workers
}

// NewPool creates a pool whose task and result channels hold bufferSize
// entries.
func NewPool(bufferSize int) *Pool {
	return &Pool{
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches workerCount workers.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if workerCount < 1 {
		return errors.New("pool needs at least one worker")
	}

	for i := 0; i < workerCount; i++ {
		worker := newWorker(i, p.taskCh, p.resultCh)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(worker)
	}

	p.started = true
	return nil
}

// Submit queues task, blocking while taskCh is full.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.submits.Add(1)
	p.mu.Unlock()
	defer p.submits.Done()

	select {
	case <-p.stopCh:
		return ErrPoolClosed
	default:
	}
	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// ReceiveResult blocks for the next result.
func (p *Pool) ReceiveResult() (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	}
}

// Stop shuts the pool down and waits for the workers. Tasks already queued
// are still run; their results are dropped if nobody reads them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.submits.Wait()
	close(p.taskCh)

	p.wg.Wait()
	close(p.resultCh)
}

// GetWorkerCount returns the number of started workers.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start has been called.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
