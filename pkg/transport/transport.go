// Package transport owns the WebSocket connection of a session.
//
// A Transport serializes every outbound frame through a single writer
// goroutine: caller sends, heartbeat pings, pong replies and the close frame
// never interleave. Callers wait for their frame with a bounded timeout.
// Inbound frames are decoded into types.Message values and handed to the
// Listen handler on the receive goroutine.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrhq/mate/pkg/logging"
	"github.com/entrhq/mate/pkg/types"
)

// Default limits and timeouts.
const (
	DefaultMaxMessageSize   = 1 << 20
	DefaultSendTimeout      = 10 * time.Second
	DefaultPingTimeout      = 5 * time.Second
	DefaultStopTimeout      = 5 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
)

var transportLog *logging.Logger

func init() {
	var err error
	transportLog, err = logging.NewLogger("transport")
	if err != nil {
		transportLog.Warnf("Failed to initialize transport logger, using stderr fallback: %v", err)
	}
}

// Options configures a Transport. Zero values fall back to the defaults.
type Options struct {
	Header           http.Header
	MaxMessageSize   int64
	SendTimeout      time.Duration
	PingTimeout      time.Duration
	StopTimeout      time.Duration
	CloseTimeout     time.Duration
	HandshakeTimeout time.Duration

	// Dialer overrides the WebSocket dialer, mostly for tests and proxies.
	Dialer *websocket.Dialer
	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.Logger == nil {
		o.Logger = transportLog
	}
	return o
}

type writeRequest struct {
	messageType int
	data        []byte
	deadline    time.Time
	result      chan error
}

// Transport is one open WebSocket connection.
type Transport struct {
	conn     *websocket.Conn
	endpoint string
	opts     Options
	log      *logging.Logger

	writes     chan *writeRequest
	closing    chan struct{}
	writerDone chan struct{}

	connected atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the WebSocket connection and starts the writer goroutine.
// A failed dial or rejected handshake returns a *ConnectionError.
func Dial(ctx context.Context, endpoint string, opts Options) (*Transport, error) {
	opts = opts.withDefaults()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	opts.Logger.Infof("Dialing %s", redact(endpoint))
	conn, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		cerr := &ConnectionError{Endpoint: redact(endpoint), Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		opts.Logger.Errorf("Dial failed: %v", cerr)
		return nil, cerr
	}
	conn.SetReadLimit(opts.MaxMessageSize)

	t := &Transport{
		conn:       conn,
		endpoint:   endpoint,
		opts:       opts,
		log:        opts.Logger,
		writes:     make(chan *writeRequest),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	t.connected.Store(true)
	go t.writeLoop()

	t.log.Infof("Connected to %s", redact(endpoint))
	return t, nil
}

// Connected returns true until the connection is closed locally or by the peer.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Endpoint returns the dialed URL with the api key redacted.
func (t *Transport) Endpoint() string {
	return redact(t.endpoint)
}

// Send writes one text frame. Oversized payloads are rejected before the
// connection is consulted.
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	if int64(len(payload)) > t.opts.MaxMessageSize {
		return &SendError{Reason: ReasonOversize, Size: len(payload), Err: ErrMessageTooLarge}
	}
	if !t.Connected() {
		return &SendError{Reason: ReasonNotConnected, Err: ErrNotConnected}
	}
	return t.submit(ctx, "send", websocket.TextMessage, payload, t.opts.SendTimeout)
}

// SendJSON encodes v and sends it as a text frame.
func (t *Transport) SendJSON(ctx context.Context, v any) error {
	return t.sendJSON(ctx, "send", v, t.opts.SendTimeout)
}

// Ping sends a keep-alive ping frame.
func (t *Transport) Ping(ctx context.Context) error {
	return t.sendJSON(ctx, "ping", types.NewPingMessage(time.Now()), t.opts.PingTimeout)
}

// Pong answers a keep-alive ping.
func (t *Transport) Pong(ctx context.Context) error {
	return t.sendJSON(ctx, "pong", types.NewPongMessage(time.Now()), t.opts.PingTimeout)
}

// SendStop asks the remote task to stop.
func (t *Transport) SendStop(ctx context.Context) error {
	return t.sendJSON(ctx, "stop", types.NewStopMessage(), t.opts.StopTimeout)
}

func (t *Transport) sendJSON(ctx context.Context, op string, v any, timeout time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &SendError{Reason: ReasonEncodeFailed, Err: err}
	}
	if int64(len(data)) > t.opts.MaxMessageSize {
		return &SendError{Reason: ReasonOversize, Size: len(data), Err: ErrMessageTooLarge}
	}
	if !t.Connected() {
		return &SendError{Reason: ReasonNotConnected, Err: ErrNotConnected}
	}
	return t.submit(ctx, op, websocket.TextMessage, data, timeout)
}

// submit hands a frame to the writer and waits for the write result.
func (t *Transport) submit(ctx context.Context, op string, messageType int, data []byte, timeout time.Duration) error {
	req := &writeRequest{
		messageType: messageType,
		data:        data,
		deadline:    time.Now().Add(timeout),
		result:      make(chan error, 1),
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t.writes <- req:
	case <-t.closing:
		return &SendError{Reason: ReasonNotConnected, Err: ErrNotConnected}
	case <-timer.C:
		return &TimeoutError{Op: op, After: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-timer.C:
		return &TimeoutError{Op: op, After: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) writeLoop() {
	defer close(t.writerDone)
	for {
		select {
		case req := <-t.writes:
			req.result <- t.write(req)
		case <-t.closing:
			return
		}
	}
}

func (t *Transport) write(req *writeRequest) error {
	var err error
	if req.messageType == websocket.CloseMessage {
		err = t.conn.WriteControl(websocket.CloseMessage, req.data, req.deadline)
	} else {
		if err = t.conn.SetWriteDeadline(req.deadline); err == nil {
			err = t.conn.WriteMessage(req.messageType, req.data)
		}
	}
	if err != nil {
		t.log.Warnf("Write failed: %v", err)
		return &SendError{Reason: ReasonWriteFailed, Size: len(req.data), Err: err}
	}
	return nil
}

// Listen runs the receive loop on the calling goroutine until the connection
// ends. Each decoded frame is passed to handler before the next read.
// Malformed frames are logged and dropped. Listen returns nil on a normal
// closure and a *ReceiveError otherwise.
func (t *Transport) Listen(handler func(*types.Message)) error {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.connected.Store(false)
			if t.isClosing() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Infof("Connection closed: %v", err)
				return nil
			}
			t.log.Errorf("Receive failed: %v", err)
			return &ReceiveError{Err: err}
		}

		msg, err := types.ParseMessage(data)
		if err != nil {
			t.log.Warnf("Dropping frame: %v", &MalformedMessageError{Frame: data, Err: err})
			continue
		}
		handler(msg)
	}
}

func (t *Transport) isClosing() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Close sends a close frame, stops the writer and closes the socket.
// It is safe to call more than once; later calls return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		wasConnected := t.connected.Swap(false)

		if wasConnected {
			frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
			if err := t.submit(context.Background(), "close", websocket.CloseMessage, frame, t.opts.CloseTimeout); err != nil {
				t.log.Debugf("Close frame not sent: %v", err)
			}
		}

		close(t.closing)
		if err := t.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			t.log.Debugf("Socket close: %v", err)
		}

		select {
		case <-t.writerDone:
		case <-time.After(t.opts.CloseTimeout):
			t.closeErr = &TimeoutError{Op: "close", After: t.opts.CloseTimeout}
		}
		t.log.Infof("Transport closed")
	})
	return t.closeErr
}
