// Package wstest provides an in-process WebSocket peer for tests.
package wstest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts one WebSocket connection at a time and records every frame
// the client sends.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	reject   int

	mu        sync.Mutex
	conn      *websocket.Conn
	requests  []*http.Request
	connected chan struct{}
	received  chan map[string]any
	closed    chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithReject makes the server refuse every handshake with the given HTTP status.
func WithReject(status int) Option {
	return func(s *Server) {
		s.reject = status
	}
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		connected: make(chan struct{}),
		received:  make(chan map[string]any, 256),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// base URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// HTTPURL returns the http:// base URL of the server.
func (s *Server) HTTPURL() string {
	return s.srv.URL
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	busy := s.conn != nil
	s.mu.Unlock()

	if busy {
		http.Error(w, "wstest: already connected", http.StatusConflict)
		return
	}
	if s.reject != 0 {
		http.Error(w, http.StatusText(s.reject), s.reject)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	close(s.connected)
	s.mu.Unlock()

	defer close(s.closed)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err == nil {
			s.received <- frame
		}
	}
}

// WaitConnected blocks until a client completes the handshake.
func (s *Server) WaitConnected(timeout time.Duration) error {
	select {
	case <-s.connected:
		return nil
	case <-time.After(timeout):
		return errors.New("wstest: no client connected")
	}
}

// WaitClosed blocks until the client connection ends.
func (s *Server) WaitClosed(timeout time.Duration) error {
	select {
	case <-s.closed:
		return nil
	case <-time.After(timeout):
		return errors.New("wstest: connection still open")
	}
}

// Requests returns the handshake requests seen so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// Send writes v as a JSON text frame to the client.
func (s *Server) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw writes data as a text frame to the client.
func (s *Server) SendRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("wstest: no client connected")
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Next returns the next JSON frame received from the client.
func (s *Server) Next(timeout time.Duration) (map[string]any, error) {
	select {
	case frame := <-s.received:
		return frame, nil
	case <-time.After(timeout):
		return nil, errors.New("wstest: no frame received")
	}
}

// NextOfType returns the next received frame with the given type, discarding others.
func (s *Server) NextOfType(typ string, timeout time.Duration) (map[string]any, error) {
	deadline := time.After(timeout)
	for {
		select {
		case frame := <-s.received:
			if frame["type"] == typ {
				return frame, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("wstest: no %q frame received", typ)
		}
	}
}

// ExpectSilence returns an error if a frame arrives within d.
func (s *Server) ExpectSilence(d time.Duration) error {
	select {
	case frame := <-s.received:
		return fmt.Errorf("wstest: unexpected frame %v", frame)
	case <-time.After(d):
		return nil
	}
}

// CloseConn sends a close frame with code and then closes the socket.
func (s *Server) CloseConn(code int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("wstest: no client connected")
	}
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

// DropConn closes the socket without a close frame.
func (s *Server) DropConn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("wstest: no client connected")
	}
	return s.conn.Close()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}
