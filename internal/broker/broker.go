// Package broker owns the shared state threaded between invoker sessions
// and the upstream testing-system link: the per-submission result
// vectors, the invoker registry, and the bounded submission queue.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/metrics"
	"github.com/summer-54/invoker-manager/internal/submission"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

// QueueCapacity bounds the number of submissions awaiting an idle invoker.
const QueueCapacity = 10000

// InvokerHandle is the narrow view of an invoker session the broker needs
// for the control surface and for forced removal.
type InvokerHandle interface {
	UUID() uuid.UUID
	BoundSubmission() (uuid.UUID, bool)
	Close()
}

// Broker is the single lock domain guarding results and the invoker
// registry. The lock is never held across socket I/O or the queue receive.
type Broker struct {
	mu       sync.Mutex
	results  map[uuid.UUID][]verdict.TestResult
	invokers map[uuid.UUID]InvokerHandle
	queue    chan submission.Submission
}

// New returns an empty Broker with its queue allocated to QueueCapacity.
func New() *Broker {
	return &Broker{
		results:  make(map[uuid.UUID][]verdict.TestResult),
		invokers: make(map[uuid.UUID]InvokerHandle),
		queue:    make(chan submission.Submission, QueueCapacity),
	}
}

// RegisterInvoker adds h to the registry, overwriting any prior session
// registered under the same uuid.
func (b *Broker) RegisterInvoker(h InvokerHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invokers[h.UUID()] = h
	metrics.InvokersConnected.Set(float64(len(b.invokers)))
}

// UnregisterInvoker removes h from the registry, but only if the entry
// under h.UUID() is still h itself: a session's deferred unregister must
// not evict a newer session that reconnected under the same invoker uuid
// and has since overwritten the registry entry via RegisterInvoker.
func (b *Broker) UnregisterInvoker(h InvokerHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.invokers[h.UUID()] != h {
		return
	}
	delete(b.invokers, h.UUID())
	metrics.InvokersConnected.Set(float64(len(b.invokers)))
}

// DeleteInvoker forcibly closes the session registered under id and
// removes it from the registry. Returns a human-readable error for an
// unknown uuid; the caller's HTTP handler reports it as a 200 body per
// the control surface's legacy behaviour.
func (b *Broker) DeleteInvoker(id uuid.UUID) error {
	b.mu.Lock()
	h, ok := b.invokers[id]
	if ok {
		delete(b.invokers, id)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("broker: unknown invoker %s", id)
	}
	h.Close()
	return nil
}

// InvokersSnapshot maps every registered invoker uuid string to its bound
// submission uuid string, or nil if idle.
func (b *Broker) InvokersSnapshot() map[string]*string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]*string, len(b.invokers))
	for id, h := range b.invokers {
		if sub, bound := h.BoundSubmission(); bound {
			s := sub.String()
			out[id.String()] = &s
			continue
		}
		out[id.String()] = nil
	}
	return out
}

// ResultsSnapshot copies the current result vector for every submission
// with results allocated.
func (b *Broker) ResultsSnapshot() map[string][]verdict.TestResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]verdict.TestResult, len(b.results))
	for id, results := range b.results {
		cp := make([]verdict.TestResult, len(results))
		copy(cp, results)
		out[id.String()] = cp
	}
	return out
}

// ErrQueueFull is returned by EnqueueSubmission when the submission queue
// has no spare capacity.
var ErrQueueFull = fmt.Errorf("broker: submission queue full")

// ErrBindConflict is returned by EnqueueSubmission when s.UUID is already
// bound to a result vector, i.e. the same submission was enqueued twice
// (the upstream feed retried, or the testing-system double-sent it).
var ErrBindConflict = fmt.Errorf("broker: submission already bound")

// EnqueueSubmission allocates a default result vector for s and pushes it
// onto the queue. On ErrQueueFull the allocation is rolled back and the
// caller is expected to synthesise a failure verdict upstream. On
// ErrBindConflict nothing is touched: the submission is already tracked
// under its existing allocation.
func (b *Broker) EnqueueSubmission(s submission.Submission) error {
	b.mu.Lock()
	if _, exists := b.results[s.UUID]; exists {
		b.mu.Unlock()
		return ErrBindConflict
	}
	b.results[s.UUID] = make([]verdict.TestResult, s.TestsCount)
	for i := range b.results[s.UUID] {
		b.results[s.UUID][i] = verdict.NewTestResult()
	}
	b.mu.Unlock()

	select {
	case b.queue <- s:
		metrics.QueueDepth.Set(float64(len(b.queue)))
		return nil
	default:
		b.mu.Lock()
		delete(b.results, s.UUID)
		b.mu.Unlock()
		return ErrQueueFull
	}
}

// TakeSubmission blocks until a submission is available or ctx is done.
// The receive on the underlying channel is itself the "one consumer at a
// time" guarantee: a given value is ever delivered to a single receiver.
func (b *Broker) TakeSubmission(ctx context.Context) (submission.Submission, error) {
	select {
	case s := <-b.queue:
		metrics.QueueDepth.Set(float64(len(b.queue)))
		metrics.SubmissionsDispatched.Inc()
		return s, nil
	case <-ctx.Done():
		return submission.Submission{}, ctx.Err()
	}
}

// SetTestResult overwrites the result for test n (1-indexed) of
// submission s. Returns false if n is out of range for the allocated
// vector; the caller logs and drops.
func (b *Broker) SetTestResult(s uuid.UUID, n uint16, result verdict.TestResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	results, ok := b.results[s]
	if !ok || n == 0 || int(n) > len(results) {
		return false
	}
	results[n-1] = result
	return true
}

// ConsumeResults returns and removes the result vector for s. Used on a
// normal VERDICT transition.
func (b *Broker) ConsumeResults(s uuid.UUID) ([]verdict.TestResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	results, ok := b.results[s]
	if ok {
		delete(b.results, s)
	}
	return results, ok
}

// DropResults removes the result vector for s without returning it. Used
// on abnormal session termination, where the submission is not requeued.
func (b *Broker) DropResults(s uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.results, s)
}
