package signalr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pitwall/livetiming/internal/metrics"
)

// FrameHandler consumes parsed frames from the read loop. HandleFrame is
// called sequentially in arrival order; implementations spawn their own
// side-effect tasks so a slow downstream never blocks the socket.
type FrameHandler interface {
	HandleFrame(ctx context.Context, f *Frame)
}

// ClientConfig configures the stream client.
type ClientConfig struct {
	// BaseHTTPURL is the handshake base, e.g. https://host/signalr.
	BaseHTTPURL string
	// BaseWSURL is the socket base, e.g. wss://host/signalr.
	BaseWSURL string
	// Topics is the ordered list sent in the subscription frame.
	Topics []string
	// Retry re-runs the negotiate/connect cycle after errors.
	Retry bool
	// RetryDelay is the pause between reconnect cycles.
	RetryDelay time.Duration
}

// Client owns the persistent socket: it negotiates, connects, sends one
// subscription frame per connection and dispatches received frames. On
// transport errors it either reconnects from scratch or, with retry
// disabled, propagates the error to the caller.
type Client struct {
	cfg        ClientConfig
	negotiator *Negotiator
	handler    FrameHandler
	dialer     *websocket.Dialer
	limiter    *rate.Limiter
	connected  atomic.Bool
	metrics    *metrics.Set
	logger     *zap.Logger
}

func NewClient(cfg ClientConfig, handler FrameHandler, m *metrics.Set, logger *zap.Logger) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Client{
		cfg:        cfg,
		negotiator: NewNegotiator(cfg.BaseHTTPURL, logger),
		handler:    handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		// Paces renegotiation so a flapping upstream cannot turn the
		// reconnect loop into a handshake flood.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		metrics: m,
		logger:  logger,
	}
}

// Connected reports whether the socket is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run drives the session lifecycle: negotiate, connect, subscribe,
// stream until error, then either retry or terminate. It returns nil
// when ctx is canceled and the last session error otherwise.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}

		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if !c.cfg.Retry {
			return err
		}

		c.metrics.Reconnects.Inc()
		c.logger.Warn("stream session ended, reconnecting",
			zap.Error(err),
			zap.Duration("delay", c.cfg.RetryDelay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// runSession performs one negotiate/connect/subscribe/stream cycle.
func (c *Client) runSession(ctx context.Context) error {
	neg, err := c.negotiator.Negotiate(ctx)
	if err != nil {
		return err
	}

	socketURL := c.cfg.BaseWSURL + "/connect?" + neg.Query
	conn, resp, err := c.dialer.DialContext(ctx, socketURL, neg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: dial failed with status %d: %v", ErrTransport, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}
	defer func() { _ = conn.Close() }()

	// The feed emits its own Heartbeat topic, so transport-level idle
	// pinging stays off: no ping ticker, no pong deadline.

	// A fresh connection always re-subscribes.
	if err := conn.WriteJSON(newSubscribeRequest(c.cfg.Topics)); err != nil {
		return fmt.Errorf("%w: sending subscription: %v", ErrTransport, err)
	}

	c.connected.Store(true)
	c.metrics.Connected.Set(1)
	defer func() {
		c.connected.Store(false)
		c.metrics.Connected.Set(0)
	}()

	c.logger.Info("subscribed to live timing feed",
		zap.Strings("topics", c.cfg.Topics),
	)

	// Unblock the read loop when the caller shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return c.readLoop(ctx, conn)
}

// readLoop receives frames sequentially and dispatches them in arrival
// order. A frame that fails to parse is counted and skipped; the
// connection is only torn down on transport errors.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.metrics.MalformedFrames.Inc()
			c.logger.Warn("skipping malformed frame", zap.Error(err))
			continue
		}
		if frame.Empty() {
			continue
		}

		c.metrics.FramesReceived.Inc()
		c.handler.HandleFrame(ctx, frame)
	}
}
