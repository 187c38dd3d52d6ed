package events

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInactivityTimeout is applied when HeartbeatChecker is constructed
// with a zero timeout. The orchestrator's own heartbeat cadence is roughly
// half of this, so a single missed beat never trips the watchdog.
const DefaultInactivityTimeout = 120 * time.Second

// MissingHandler is invoked exactly once per generation when no heartbeat
// has arrived within the inactivity timeout. The caller is expected to
// restart the receiver (which mints a new generation); the firing loop
// keeps running afterward and self-terminates at its next wake when its
// generation token no longer matches current().
type MissingHandler func()

// HeartbeatChecker watches for missing heartbeats on a generation-scoped
// loop. One loop runs per generation; Start mints a new generation and
// retires any loop from a prior one.
type HeartbeatChecker struct {
	timeout time.Duration
	handler MissingHandler
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	cond          *sync.Cond
	lastHeartbeat time.Time
	current       Generation
	running       bool

	wg sync.WaitGroup
}

// NewHeartbeatChecker builds a checker with the given timeout (defaulting to
// DefaultInactivityTimeout when <= 0) and missing-heartbeat handler.
func NewHeartbeatChecker(timeout time.Duration, handler MissingHandler, logger *slog.Logger) *HeartbeatChecker {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	h := &HeartbeatChecker{
		timeout: timeout,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Start mints a new generation and spawns its watchdog loop. Any loop from
// a previous generation self-terminates at its next wake.
func (h *HeartbeatChecker) Start() {
	h.mu.Lock()
	h.current = newGeneration()
	h.lastHeartbeat = h.now()
	h.running = true
	gen := h.current
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(gen)
}

// Stop retires the current generation so its loop exits at its next wake.
func (h *HeartbeatChecker) Stop() {
	h.mu.Lock()
	h.running = false
	h.cond.Broadcast()
	h.mu.Unlock()

	h.wg.Wait()
}

// HeartbeatReceived records that a heartbeat frame arrived just now and
// wakes the watchdog loop so it can recompute its sleep.
func (h *HeartbeatChecker) HeartbeatReceived() {
	h.mu.Lock()
	h.lastHeartbeat = h.now()
	h.cond.Broadcast()
	h.mu.Unlock()
}

func (h *HeartbeatChecker) run(gen Generation) {
	defer h.wg.Done()
	h.logger.Info("heartbeat checker started", "generation", gen)

	for {
		h.mu.Lock()
		if !h.running || h.current != gen {
			h.mu.Unlock()
			break
		}

		sleepFor := h.timeout / 2
		h.waitWithTimeout(sleepFor)

		if !h.running || h.current != gen {
			h.mu.Unlock()
			break
		}

		delta := h.now().Sub(h.lastHeartbeat)
		fire := delta > h.timeout
		h.mu.Unlock()

		if fire {
			h.logger.Warn("missed heartbeat, invoking missing handler", "generation", gen, "since", delta)
			h.handler()
		}
	}

	h.logger.Info("heartbeat checker stopped", "generation", gen)
}

// waitWithTimeout waits on h.cond for at most d. Must be called with h.mu held.
func (h *HeartbeatChecker) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer timer.Stop()

	h.cond.Wait()
}
