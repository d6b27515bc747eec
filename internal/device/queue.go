// Package device models the accelerator execution stream.
//
// Kernels are submitted to a Queue and executed in FIFO order by a single
// worker goroutine, asynchronously with respect to the host. The host must
// call Synchronize before reading any kernel output; the benchmark loop does
// so at the end of every step, which is what makes its wall-clock timings
// measure compute rather than dispatch latency.
package device

import "sync"

type task struct {
	label string
	fn    func()
}

// Queue is an in-order asynchronous execution stream.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	fifo    []task
	pending int
	closed  bool

	launches int64
}

// NewQueue creates a queue and starts its worker.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *Queue) run() {
	q.mu.Lock()
	for {
		for len(q.fifo) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.fifo) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.fifo[0]
		q.fifo = q.fifo[1:]
		q.mu.Unlock()

		t.fn()

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.cond.Broadcast()
		}
	}
}

// Submit enqueues a kernel for execution. Kernels run in submission order.
func (q *Queue) Submit(label string, fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("device: submit on closed queue")
	}
	q.fifo = append(q.fifo, task{label: label, fn: fn})
	q.pending++
	q.launches++
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Synchronize blocks until every submitted kernel has completed.
func (q *Queue) Synchronize() {
	q.mu.Lock()
	for q.pending > 0 {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Launches returns the total number of kernels submitted so far. Useful for
// verifying dispatch-count differences between fused and unfused paths.
func (q *Queue) Launches() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.launches
}

// Close drains the queue and stops the worker. Submitting after Close panics.
func (q *Queue) Close() {
	q.Synchronize()
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
