// Package ack implements the ACK sender: for every operation received, it
// schedules a deferred ACK callback that fires interval after scheduling
// unless OperationCompleted cancels it first. Pending ACKs are kept in a
// container/heap min-heap ordered by fire time, so the next-due ACK is
// always at the root regardless of scheduling or cancellation order.
package ack

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultIntervalSeconds is how long the sender waits after Schedule before
// firing the handler, unless OperationCompleted arrives first.
const DefaultIntervalSeconds = 45

// checkInterval bounds how long a waiting sender goroutine can sleep before
// re-checking the queue head, so a newly scheduled ACK with an earlier
// deadline than the current wait is never starved beyond this bound.
const checkInterval = 10 * time.Second

// Handler sends the ACK for operationID to the backend.
type Handler func(ctx context.Context, operationID string) error

type pendingAck struct {
	scheduledAt time.Time
	operationID string
	index       int // maintained by container/heap
}

type ackHeap []*pendingAck

func (h ackHeap) Len() int            { return len(h) }
func (h ackHeap) Less(i, j int) bool  { return h[i].scheduledAt.Before(h[j].scheduledAt) }
func (h ackHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *ackHeap) Push(x any) {
	item := x.(*pendingAck)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *ackHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Sender tracks pending ACKs and fires Handler for each one that isn't
// completed by the time its deadline elapses.
type Sender struct {
	interval time.Duration
	handler  Handler
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	queue   ackHeap
	mapping map[string]*pendingAck
	running bool

	wg sync.WaitGroup
}

// New builds a Sender. interval defaults to DefaultIntervalSeconds when <= 0.
func New(interval time.Duration, handler Handler, logger *slog.Logger) *Sender {
	if interval <= 0 {
		interval = DefaultIntervalSeconds * time.Second
	}
	s := &Sender{
		interval: interval,
		handler:  handler,
		logger:   logger,
		now:      time.Now,
		mapping:  make(map[string]*pendingAck),
	}
	s.cond = sync.NewCond(&s.mu)
	heap.Init(&s.queue)
	return s
}

// Start launches the background goroutine that watches the queue.
func (s *Sender) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the background goroutine to exit and waits for it.
func (s *Sender) Stop() {
	s.mu.Lock()
	s.running = false
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule registers operationID for an ACK to fire after Sender's interval
// elapses, unless OperationCompleted is called for it first.
func (s *Sender) Schedule(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := &pendingAck{
		scheduledAt: s.now().Add(s.interval),
		operationID: operationID,
	}
	heap.Push(&s.queue, op)
	s.mapping[operationID] = op
	s.cond.Signal()
}

// OperationCompleted cancels the pending ACK for operationID, if any. The
// heap entry is left in place (lazily skipped on pop) to avoid an O(n)
// heap-interior removal; mapping removal is what actually cancels it.
func (s *Sender) OperationCompleted(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mapping, operationID)
}

// Pending reports the number of operations with an outstanding, not-yet-
// fired ACK, for the process metrics gauge.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mapping)
}

func (s *Sender) run(ctx context.Context) {
	defer s.wg.Done()
	s.logger.Info("ack sender started")

	for {
		due, ok := s.waitForDue(ctx)
		if !ok {
			break
		}
		for _, op := range due {
			if err := s.handler(ctx, op.operationID); err != nil {
				s.logger.Error("failed to send ack", "operation_id", op.operationID, "error", err)
			} else {
				s.logger.Info("sent ack", "operation_id", op.operationID)
			}
		}
	}

	s.logger.Info("ack sender stopped")
}

// waitForDue blocks until either the queue has at least one due entry, the
// sender is stopped, or ctx is cancelled. Returns the due, still-pending
// operations (already popped and removed from mapping) and true, or nil and
// false when the caller should exit.
func (s *Sender) waitForDue(ctx context.Context) ([]*pendingAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.running {
		if ctx.Err() != nil {
			return nil, false
		}

		if s.queue.Len() == 0 {
			s.waitWithTimeout(checkInterval)
			continue
		}

		wait := s.queue[0].scheduledAt.Sub(s.now())
		if wait > 0 {
			s.waitWithTimeout(minDuration(wait, checkInterval))
			continue
		}

		var due []*pendingAck
		for s.queue.Len() > 0 && !s.queue[0].scheduledAt.After(s.now()) {
			op := heap.Pop(&s.queue).(*pendingAck)
			if _, stillPending := s.mapping[op.operationID]; stillPending {
				delete(s.mapping, op.operationID)
				due = append(due, op)
			}
		}
		if len(due) > 0 {
			return due, true
		}
	}

	return nil, false
}

// waitWithTimeout waits on s.cond for at most d, re-acquiring s.mu before
// returning (sync.Cond.Wait's contract). Must be called with s.mu held.
func (s *Sender) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.cond.Wait()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
