package telegram

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Dispatcher runs jobs for the same key in submission order and jobs for
// different keys concurrently. A key's goroutine lives only while its queue
// is non-empty.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queues: make(map[int64][]func()),
		logger: logger,
	}
}

// Submit enqueues job behind any pending jobs for key.
func (d *Dispatcher) Submit(key int64, job func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, running := d.queues[key]
	d.queues[key] = append(q, job)
	if !running {
		d.wg.Add(1)
		go d.drain(key)
	}
}

func (d *Dispatcher) drain(key int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		d.queues[key] = q[1:]
		d.mu.Unlock()

		d.run(key, job)
	}
}

func (d *Dispatcher) run(key int64, job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in update handler", "key", key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	job()
}

// Wait blocks until every queue has drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
