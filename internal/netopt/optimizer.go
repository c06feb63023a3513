/*
Package netopt implements the Network Optimizer (spec §4.3): a
single-consumer request gate in front of the Transport Facade that
enforces at-most-one-outstanding-request discipline, orders queued work
by priority, and adapts its inter-request delay to observed latency and
error rate.

Modbus/TCP cannot safely multiplex requests on one client connection
(rolfl-modbus/tcpClient.go serializes every request/response round trip
on its connection for the same reason), so max_concurrent is fixed at
1: Submit blocks its caller until the request has run, and the gate
itself decides submission order across concurrent callers via a
container/heap priority queue rather than plain mutex FIFO.
*/
package netopt

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrCleared is returned to a queued-but-not-yet-running Submit call
// when Clear rejects it.
var ErrCleared = errors.New("netopt: request cleared before it ran")

// Thunk is the unit of work the gate schedules: a single read (or
// batch read) against the Transport Facade by way of the Register
// Reader / Batch Optimizer.
type Thunk func() (interface{}, error)

// Priority is higher-runs-first; FIFO within a tied priority.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

type waiter struct {
	priority  Priority
	seq       uint64
	turn      chan struct{}
	cancelled chan struct{}
	index     int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

// Optimizer is the Network Optimizer gate. The zero value is not
// usable; construct with New.
type Optimizer struct {
	mu       sync.Mutex
	queue    waiterHeap
	seq      uint64
	running  bool
	baseline time.Duration
	cap      time.Duration
	delay    time.Duration
	ring     *timingRing
}

// New constructs an Optimizer with the given baseline inter-request
// delay. The adaptive cap is fixed at 1000ms per spec §4.3.
func New(baseline time.Duration) *Optimizer {
	return &Optimizer{
		baseline: baseline,
		cap:      time.Second,
		delay:    baseline,
		ring:     newTimingRing(),
	}
}

// CurrentDelay returns the gate's current inter-request delay.
func (o *Optimizer) CurrentDelay() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delay
}

// Timings returns every retained request timing, oldest first.
func (o *Optimizer) Timings() []Timing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ring.all()
}

// Submit enqueues thunk at priority, waits its turn behind anything
// already queued at an equal or higher priority, applies the current
// inter-request delay, then runs it. It returns ErrCleared if Clear
// rejects the request while still queued.
func (o *Optimizer) Submit(priority Priority, estimatedBytes int, thunk Thunk) (interface{}, error) {
	w := &waiter{turn: make(chan struct{}), cancelled: make(chan struct{})}
	o.mu.Lock()
	o.seq++
	w.priority, w.seq = priority, o.seq
	heap.Push(&o.queue, w)
	o.dispatchLocked()
	o.mu.Unlock()

	select {
	case <-w.turn:
	case <-w.cancelled:
		return nil, ErrCleared
	}

	delay := o.CurrentDelay()
	if delay > 0 {
		time.Sleep(delay)
	}

	start := time.Now()
	result, err := thunk()
	end := time.Now()

	o.complete(Timing{
		Start:          start,
		End:            end,
		Duration:       end.Sub(start),
		Success:        err == nil,
		EstimatedBytes: estimatedBytes,
		Err:            errString(err),
	})
	return result, err
}

// dispatchLocked must be called with mu held. If no request is
// currently running and the queue is non-empty, it pops the
// highest-priority waiter and releases it to run.
func (o *Optimizer) dispatchLocked() {
	if o.running || o.queue.Len() == 0 {
		return
	}
	w := heap.Pop(&o.queue).(*waiter)
	o.running = true
	close(w.turn)
}

// complete records the finished request's timing, recomputes the
// adaptive delay, clears the running flag, and dispatches the next
// waiter.
func (o *Optimizer) complete(t Timing) {
	o.mu.Lock()
	o.ring.add(t)
	o.delay = nextDelay(o.delay, o.baseline, o.cap, o.ring.tail(20))
	o.running = false
	o.dispatchLocked()
	o.mu.Unlock()
}

// nextDelay implements spec §4.3's adaptive delay rule over the last
// (up to) 20 timings: degrade by 1.2x, capped, on a bad window;
// recover by 0.9x, floored at baseline, on a good window; otherwise
// hold steady.
func nextDelay(current, baseline, cap time.Duration, window []Timing) time.Duration {
	if len(window) == 0 {
		return current
	}
	var failures int
	var total time.Duration
	for _, t := range window {
		if !t.Success {
			failures++
		}
		total += t.Duration
	}
	n := time.Duration(len(window))
	errorRate := float64(failures) / float64(len(window))
	meanDuration := total / n

	switch {
	case errorRate > 0.10 || meanDuration > time.Second:
		d := time.Duration(float64(current) * 1.2)
		if d > cap {
			d = cap
		}
		return d
	case errorRate < 0.05 && meanDuration < 200*time.Millisecond:
		d := time.Duration(float64(current) * 0.9)
		if d < baseline {
			d = baseline
		}
		return d
	default:
		return current
	}
}

// Clear rejects every request still queued (not yet running) with
// ErrCleared. In-flight requests are left to drain, per spec §4.3.
func (o *Optimizer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, w := range o.queue {
		close(w.cancelled)
	}
	o.queue = o.queue[:0]
	heap.Init(&o.queue)
}

// SubmitBatch runs thunks in chunks of chunkSize, sequentially: within
// a chunk, thunks are submitted (and so awaited) in order; an
// inter-chunk wait of the gate's current delay separates chunks. It
// never aborts early — every thunk runs — and returns every result
// alongside the first error encountered, if any, matching the
// continue-the-scan behavior the Streaming Scanner relies on.
func (o *Optimizer) SubmitBatch(thunks []Thunk, chunkSize int, priority Priority, estimatedBytes int) ([]interface{}, error) {
	if chunkSize < 1 {
		chunkSize = 1
	}
	results := make([]interface{}, 0, len(thunks))
	var firstErr error
	for start := 0; start < len(thunks); start += chunkSize {
		end := start + chunkSize
		if end > len(thunks) {
			end = len(thunks)
		}
		for _, th := range thunks[start:end] {
			r, err := o.Submit(priority, estimatedBytes, th)
			results = append(results, r)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if end < len(thunks) {
			time.Sleep(o.CurrentDelay())
		}
	}
	return results, firstErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
