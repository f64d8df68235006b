package transport

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/mate/pkg/logging"
	"github.com/entrhq/mate/pkg/types"
)

// Default heartbeat timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatCancel   = 2 * time.Second
)

// Pinger is the part of a connection the heartbeat drives.
type Pinger interface {
	Ping(ctx context.Context) error
	Pong(ctx context.Context) error
	Connected() bool
}

// Ticker delivers heartbeat ticks. It matches the subset of time.Ticker in use
// so tests can tick by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// HeartbeatOption configures a Heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithTicker replaces the ticker constructor.
func WithTicker(newTicker func(time.Duration) Ticker) HeartbeatOption {
	return func(h *Heartbeat) {
		h.newTicker = newTicker
	}
}

// WithErrorHandler sets the callback invoked once when a ping fails.
func WithErrorHandler(fn func(error)) HeartbeatOption {
	return func(h *Heartbeat) {
		h.onError = fn
	}
}

// WithHeartbeatLogger sets the logger.
func WithHeartbeatLogger(l *logging.Logger) HeartbeatOption {
	return func(h *Heartbeat) {
		h.log = l
	}
}

// Heartbeat sends a ping on every tick while the connection is up and answers
// inbound pings. Replies to inbound pings do not reset the ticker.
type Heartbeat struct {
	conn      Pinger
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onError   func(error)
	log       *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat creates a stopped heartbeat for conn.
func NewHeartbeat(conn Pinger, interval time.Duration, opts ...HeartbeatOption) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	h := &Heartbeat{
		conn:      conn,
		interval:  interval,
		newTicker: NewTimeTicker,
		log:       transportLog,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the ping loop. Calling Start on a running heartbeat is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	ticker := h.newTicker(h.interval)
	go h.run(ctx, ticker, h.done)
}

func (h *Heartbeat) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !h.conn.Connected() {
				h.log.Debugf("Heartbeat stopping: connection is down")
				return
			}
			if err := h.conn.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.log.Warnf("Heartbeat ping failed: %v", err)
				if h.onError != nil {
					h.onError(err)
				}
				return
			}
			h.log.Debugf("Heartbeat ping sent")
		}
	}
}

// HandleInbound answers an inbound ping with exactly one pong and reports it
// as consumed. An inbound pong is logged and not consumed. Other messages are
// ignored.
func (h *Heartbeat) HandleInbound(ctx context.Context, msg *types.Message) bool {
	switch types.Classify(msg) {
	case types.KindPing:
		if err := h.conn.Pong(ctx); err != nil {
			h.log.Warnf("Failed to answer ping: %v", err)
		}
		return true
	case types.KindPong:
		h.log.Debugf("Pong received (timestamp %s)", msg.Timestamp())
		return false
	default:
		return false
	}
}

// Stop cancels the loop and waits up to timeout for it to exit.
// Stopping a heartbeat that never started, or stopping twice, returns nil.
func (h *Heartbeat) Stop(timeout time.Duration) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	if timeout <= 0 {
		timeout = DefaultHeartbeatCancel
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return &TimeoutError{Op: "heartbeat stop", After: timeout}
	}
}
