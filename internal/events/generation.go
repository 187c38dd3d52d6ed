// Package events implements the inbound event pipeline: the heartbeat
// watchdog, the SSE stream receiver, and the demultiplexing events client
// that owns both. A single generation token replaces a
// naive "running bool": a late wakeup from a stopped loop must never act as
// if it were still current, and the only way to guarantee that without
// extra locking is to compare an opaque token minted fresh on every
// (re)start.
package events

import "github.com/google/uuid"

// Generation is an opaque token minted on every start/restart of a
// background loop. A loop compares its own token against the owner's
// current token inside the critical section that decides to act (send a
// heartbeat callback, reconnect, emit an event) — never outside it, or the
// check would race against a concurrent restart.
type Generation string

// newGeneration mints a fresh token, unique across the process lifetime.
func newGeneration() Generation {
	return Generation(uuid.NewString())
}
