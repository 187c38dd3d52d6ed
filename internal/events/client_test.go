package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReceiver is a hand-rolled StreamReceiver test double, injected in
// place of a mocking framework.
type fakeReceiver struct {
	mu           sync.Mutex
	onEvent      OnEvent
	onConnect    OnConnect
	onDisconnect OnDisconnect
	restarts     int
}

func (f *fakeReceiver) Start(_ context.Context, onEvent OnEvent, onConnect OnConnect, onDisconnect OnDisconnect) error {
	f.mu.Lock()
	f.onEvent, f.onConnect, f.onDisconnect = onEvent, onConnect, onDisconnect
	f.mu.Unlock()
	onConnect()
	return nil
}

func (f *fakeReceiver) Stop() {}

func (f *fakeReceiver) Restart(_ context.Context) error {
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
	return nil
}

func (f *fakeReceiver) emit(event map[string]any) {
	f.mu.Lock()
	h := f.onEvent
	f.mu.Unlock()
	h(event)
}

func TestClient_ForwardsNonControlFrames(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, time.Second, testLogger())

	var received []map[string]any
	require.NoError(t, c.Start(context.Background(), func(e map[string]any) {
		received = append(received, e)
	}))
	defer c.Stop()

	fr.emit(map[string]any{"operation_id": "op1", "path": "/x"})
	assert.Len(t, received, 1)
}

func TestClient_WelcomeNeverForwarded(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, time.Second, testLogger())

	var received []map[string]any
	require.NoError(t, c.Start(context.Background(), func(e map[string]any) {
		received = append(received, e)
	}))
	defer c.Stop()

	fr.emit(map[string]any{"type": "welcome", "agent_id": "a1"})
	assert.Empty(t, received)
}

func TestClient_HeartbeatWithPushMetricsSynthesizesEvent(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, time.Second, testLogger())

	var received []map[string]any
	require.NoError(t, c.Start(context.Background(), func(e map[string]any) {
		received = append(received, e)
	}))
	defer c.Stop()

	fr.emit(map[string]any{"type": "heartbeat", "ts": "x", "push_metrics": true})
	require.Len(t, received, 1)
	assert.Equal(t, FramePushMetrics, received[0]["type"])
}

func TestClient_HeartbeatWithoutPushMetricsNotForwarded(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, time.Second, testLogger())

	var received []map[string]any
	require.NoError(t, c.Start(context.Background(), func(e map[string]any) {
		received = append(received, e)
	}))
	defer c.Stop()

	fr.emit(map[string]any{"type": "heartbeat", "ts": "x"})
	assert.Empty(t, received)
}

func TestClient_MissingHeartbeatRestartsReceiver(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, 20*time.Millisecond, testLogger())

	require.NoError(t, c.Start(context.Background(), func(map[string]any) {}))
	defer c.Stop()

	assert.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return fr.restarts >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestClient_Restart_DelegatesToReceiver(t *testing.T) {
	fr := &fakeReceiver{}
	c := NewClient(fr, time.Second, testLogger())

	require.NoError(t, c.Start(context.Background(), func(map[string]any) {}))
	defer c.Stop()

	require.NoError(t, c.Restart(context.Background()))

	fr.mu.Lock()
	defer fr.mu.Unlock()
	assert.Equal(t, 1, fr.restarts)
}
