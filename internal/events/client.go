package events

import (
	"context"
	"log/slog"
	"time"
)

// Frame type discriminators recognized on the wire.
const (
	FrameTypeWelcome   = "welcome"
	FrameTypeHeartbeat = "heartbeat"
	FramePushMetrics   = "push_metrics"

	fieldType            = "type"
	fieldAgentID         = "agent_id"
	fieldPushMetricsFlag = "push_metrics"
)

// Handler receives every event the client forwards: anything that isn't a
// welcome or bare heartbeat frame, plus the synthesized push_metrics event.
type Handler func(event map[string]any)

// Client demultiplexes control frames (welcome/heartbeat) from operation
// frames, owning one StreamReceiver and one HeartbeatChecker. It is a thin
// pass-through with two special cases, no business logic of its own.
type Client struct {
	receiver  StreamReceiver
	heartbeat *HeartbeatChecker
	logger    *slog.Logger
	handler   Handler
}

// NewClient builds a Client over receiver, with a heartbeat checker using
// inactivityTimeout (0 = DefaultInactivityTimeout). The heartbeat's
// missing-handler always restarts receiver.
func NewClient(receiver StreamReceiver, inactivityTimeout time.Duration, logger *slog.Logger) *Client {
	c := &Client{receiver: receiver, logger: logger}
	c.heartbeat = NewHeartbeatChecker(inactivityTimeout, c.onMissingHeartbeat, logger)
	return c
}

// Start begins consuming the stream, forwarding non-control frames (and the
// synthesized push_metrics event) to handler.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	c.handler = handler
	return c.receiver.Start(ctx, c.onFrame, c.onConnect, c.onDisconnect)
}

// Stop tears down the heartbeat checker and the receiver.
func (c *Client) Stop() {
	c.heartbeat.Stop()
	c.receiver.Stop()
}

// Restart forces the underlying receiver to mint a fresh generation and
// reconnect, re-reading credentials in the process. Exposed for an operator
// SIGHUP: rotated secret files aren't picked up until the next connection
// attempt, and this forces one on demand instead of waiting for the next
// heartbeat timeout or transient disconnect.
func (c *Client) Restart(ctx context.Context) error {
	return c.receiver.Restart(ctx)
}

func (c *Client) onConnect() {
	c.heartbeat.Start()
}

func (c *Client) onDisconnect() {
	c.heartbeat.Stop()
}

func (c *Client) onMissingHeartbeat() {
	c.logger.Warn("events client: missed heartbeat, restarting receiver")
	// The restart runs on its own goroutine: stopping the receiver fires its
	// disconnect callback, which stops this heartbeat checker and waits for
	// the very loop that is calling this handler. The resumed stream runs
	// under the background context passed here, so afterwards only Stop (not
	// the context given to the original Start) ends it.
	go func() {
		if err := c.receiver.Restart(context.Background()); err != nil {
			c.logger.Error("events client: receiver restart failed", "error", err)
		}
	}()
}

func (c *Client) onFrame(frame map[string]any) {
	frameType, _ := frame[fieldType].(string)

	switch frameType {
	case FrameTypeHeartbeat:
		c.heartbeat.HeartbeatReceived()
		c.logger.Debug("heartbeat received")
		if pushMetrics, _ := frame[fieldPushMetricsFlag].(bool); pushMetrics {
			c.handler(map[string]any{fieldType: FramePushMetrics})
		}
	case FrameTypeWelcome:
		agentID, _ := frame[fieldAgentID].(string)
		c.logger.Info("received welcome frame", "agent_id", agentID)
	default:
		c.handler(frame)
	}
}
