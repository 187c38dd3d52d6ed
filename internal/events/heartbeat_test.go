package events

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHeartbeatChecker_FiresOnMissingHeartbeat(t *testing.T) {
	var fired atomic.Int32
	h := NewHeartbeatChecker(40*time.Millisecond, func() { fired.Add(1) }, testLogger())
	h.Start()
	defer h.Stop()

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatChecker_ReceivedResetsTimer(t *testing.T) {
	var fired atomic.Int32
	h := NewHeartbeatChecker(60*time.Millisecond, func() { fired.Add(1) }, testLogger())
	h.Start()
	defer h.Stop()

	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		h.HeartbeatReceived()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, int32(0), fired.Load())
}

func TestHeartbeatChecker_StaleGenerationNeverFires(t *testing.T) {
	var fired atomic.Int32
	h := NewHeartbeatChecker(30*time.Millisecond, func() { fired.Add(1) }, testLogger())
	h.Start()
	h.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
