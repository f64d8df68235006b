// Package session drives one remote task session over a WebSocket connection.
//
// A Session dials the session endpoint, keeps the connection alive with a
// heartbeat, classifies every inbound message, mirrors the remote plan,
// answers plan confirmation requests automatically when allowed, and detects
// task completion. Callers observe progress through a single event channel and
// block on Wait until the session reaches a terminal outcome.
//
// Lifecycle: idle -> connecting -> active -> terminating -> closed. A Session
// is single-use.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/mate/pkg/config"
	"github.com/entrhq/mate/pkg/logging"
	"github.com/entrhq/mate/pkg/plan"
	"github.com/entrhq/mate/pkg/transport"
	"github.com/entrhq/mate/pkg/types"
)

var (
	// ErrSessionUsed is returned by Connect on a session that already connected once.
	ErrSessionUsed = errors.New("session already connected or closed")

	// ErrNoPendingInput is returned when replying without an outstanding input request.
	ErrNoPendingInput = errors.New("no pending input request")
)

var sessionLog *logging.Logger

func init() {
	var err error
	sessionLog, err = logging.NewLogger("session")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		sessionLog.Warnf("Failed to initialize session logger, using stderr fallback: %v", err)
	}
}

// SetLogger replaces the package logger used by sessions created without one.
func SetLogger(l *logging.Logger) {
	if l != nil {
		sessionLog = l
	}
}

// Options configures a Session.
type Options struct {
	BaseURL      string
	APIKey       string
	PathTemplate string
	Header       http.Header

	TeamID string
	KBIDs  []string

	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	SendTimeout       time.Duration
	PingTimeout       time.Duration
	StopTimeout       time.Duration
	CloseTimeout      time.Duration
	HeartbeatCancel   time.Duration

	AutoAcceptPlan    bool
	AutoAcceptSources []string
	ExcludeSources    []string
	CloseOnComplete   bool
	PollInterval      time.Duration
	EventBuffer       int

	Logger *logging.Logger

	// NewTicker overrides the heartbeat ticker.
	NewTicker func(time.Duration) transport.Ticker
}

// DefaultOptions returns the options of the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig maps a loaded configuration onto session options.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		PathTemplate:      c.WebSocket.Path,
		TeamID:            c.TeamID,
		HeartbeatInterval: c.WebSocket.HeartbeatInterval,
		MaxMessageSize:    c.WebSocket.MaxMessageSize,
		SendTimeout:       c.WebSocket.Timeouts.Send,
		PingTimeout:       c.WebSocket.Timeouts.Ping,
		StopTimeout:       c.WebSocket.Timeouts.Stop,
		CloseTimeout:      c.WebSocket.Timeouts.Close,
		HeartbeatCancel:   c.WebSocket.Timeouts.HeartbeatCancel,
		AutoAcceptPlan:    c.Session.AutoAcceptPlan,
		AutoAcceptSources: c.Session.AutoAcceptSources,
		ExcludeSources:    c.Session.ExcludeSources,
		CloseOnComplete:   c.Session.CloseOnComplete,
		PollInterval:      c.Session.PollInterval,
		EventBuffer:       c.Session.EventBuffer,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = transport.DefaultCloseTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = transport.DefaultHeartbeatInterval
	}
	if o.HeartbeatCancel <= 0 {
		o.HeartbeatCancel = transport.DefaultHeartbeatCancel
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Logger == nil {
		o.Logger = sessionLog
	}
	return o
}

// Session is the client side of one remote task session.
type Session struct {
	opts    Options
	log     *logging.Logger
	sources *SourceMatcher

	mu              sync.RWMutex
	state           State
	sessionID       string
	tr              *transport.Transport
	hb              *transport.Heartbeat
	lastSignificant *types.Message
	pendingRequest  string
	finalAnswer     string
	err             error
	screenshots     []Screenshot

	plan    *plan.Plan
	history *EventLog

	taskCompleted    *Latch
	failed           *Latch
	connectionClosed *Latch
	userExit         *Latch

	events       chan *types.SessionEvent
	emitMu       sync.RWMutex
	eventsClosed bool

	runCtx      context.Context
	cancelRun   context.CancelFunc
	quit        chan struct{}
	done        chan struct{}
	doneOnce    sync.Once
	closed      chan struct{}
	tearingDown atomic.Bool
}

// New creates an idle session.
func New(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	sources, err := NewSourceMatcher(opts.AutoAcceptSources, opts.ExcludeSources)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:             opts,
		log:              opts.Logger,
		sources:          sources,
		state:            StateIdle,
		plan:             plan.New(),
		history:          &EventLog{},
		taskCompleted:    NewLatch(),
		failed:           NewLatch(),
		connectionClosed: NewLatch(),
		userExit:         NewLatch(),
		events:           make(chan *types.SessionEvent, opts.EventBuffer),
		runCtx:           runCtx,
		cancelRun:        cancel,
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
		closed:           make(chan struct{}),
	}, nil
}

// Connect dials the session endpoint, starts the heartbeat and the receive
// loop. A failed dial leaves the session closed and returns a
// *transport.ConnectionError.
func (s *Session) Connect(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.state = StateConnecting
	s.sessionID = sessionID
	s.mu.Unlock()

	endpoint, err := transport.BuildEndpoint(s.opts.BaseURL, s.opts.PathTemplate, sessionID, s.opts.APIKey)
	if err != nil {
		err = &transport.ConnectionError{Endpoint: s.opts.BaseURL, Err: err}
		s.fail(err)
		s.abandon()
		return err
	}

	tr, err := transport.Dial(ctx, endpoint, transport.Options{
		Header:         s.opts.Header,
		MaxMessageSize: s.opts.MaxMessageSize,
		SendTimeout:    s.opts.SendTimeout,
		PingTimeout:    s.opts.PingTimeout,
		StopTimeout:    s.opts.StopTimeout,
		CloseTimeout:   s.opts.CloseTimeout,
		Logger:         s.log,
	})
	if err != nil {
		s.fail(err)
		s.abandon()
		return err
	}

	hbOpts := []transport.HeartbeatOption{
		transport.WithErrorHandler(s.onHeartbeatError),
		transport.WithHeartbeatLogger(s.log),
	}
	if s.opts.NewTicker != nil {
		hbOpts = append(hbOpts, transport.WithTicker(s.opts.NewTicker))
	}
	hb := transport.NewHeartbeat(tr, s.opts.HeartbeatInterval, hbOpts...)

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnected while dialing
		s.mu.Unlock()
		tr.Close()
		s.markDone()
		s.closeEvents()
		return ErrSessionUsed
	}
	s.tr = tr
	s.hb = hb
	s.state = StateActive
	s.mu.Unlock()

	s.log.Infof("Session %s connected", sessionID)
	s.history.Append(SourceSystem, fmt.Sprintf("Connected to session %s", sessionID), nil)
	s.emit(types.NewConnectedEvent())

	hb.Start(s.runCtx)
	go s.receive(tr)
	return nil
}

// receive runs the transport receive loop and tears the session down when it ends.
func (s *Session) receive(tr *transport.Transport) {
	defer s.markDone()

	if err := tr.Listen(s.handle); err != nil {
		s.fail(err)
	}
	s.connectionClosed.Set()
	s.history.Append(SourceSystem, "Connection closed", nil)

	if err := s.teardown(false); err != nil {
		s.log.Warnf("Teardown after connection end: %v", err)
	}
	s.emit(types.NewDisconnectedEvent())
	s.closeEvents()
}

func (s *Session) onHeartbeatError(err error) {
	err = fmt.Errorf("heartbeat: %w", err)
	// Runs on the heartbeat goroutine, which teardown waits for. Emitting
	// here could block it on a full event buffer.
	go func() {
		s.fail(err)
		if terr := s.teardown(false); terr != nil {
			s.log.Warnf("Teardown after heartbeat failure: %v", terr)
		}
	}()
}

// fail records the first session error, latches it and emits one error event.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	if s.failed.Set() {
		s.log.Errorf("Session error: %v", err)
		s.history.Append(SourceError, err.Error(), map[string]string{"error": err.Error()})
		s.emit(types.NewErrorEvent(err))
	}
}

// Disconnect tears the session down and waits for the receive loop to exit.
// It is idempotent and safe to call in any state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		s.abandon()
		return nil
	}
	s.mu.Unlock()
	return s.teardown(true)
}

// Exit records that the user left the session and disconnects.
func (s *Session) Exit() error {
	s.userExit.Set()
	s.history.Append(SourceSystem, "User exited the session", nil)
	return s.Disconnect()
}

// teardown stops the heartbeat, closes the transport and, when join is set,
// waits for the receive loop. Only the first call does the work; later calls
// with join wait for the first to finish.
func (s *Session) teardown(join bool) error {
	if !s.tearingDown.CompareAndSwap(false, true) {
		if join {
			select {
			case <-s.closed:
			case <-time.After(s.opts.CloseTimeout):
			}
		}
		return nil
	}

	s.mu.Lock()
	wasConnected := s.tr != nil
	s.state = StateTerminating
	tr, hb := s.tr, s.hb
	s.mu.Unlock()

	s.cancelRun()
	close(s.quit)

	var errs []error
	if hb != nil {
		if err := hb.Stop(s.opts.HeartbeatCancel); err != nil {
			s.log.Warnf("Heartbeat did not stop: %v", err)
			errs = append(errs, err)
		}
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			s.log.Warnf("Transport close: %v", err)
			errs = append(errs, err)
		}
	}
	if join && wasConnected {
		select {
		case <-s.done:
		case <-time.After(s.opts.CloseTimeout):
			errs = append(errs, &transport.TimeoutError{Op: "receive join", After: s.opts.CloseTimeout})
		}
	}

	s.setState(StateClosed)
	close(s.closed)
	s.log.Infof("Session %s closed", s.SessionID())
	return errors.Join(errs...)
}

// abandon closes a session that never became active.
func (s *Session) abandon() {
	if s.tearingDown.CompareAndSwap(false, true) {
		s.cancelRun()
		close(s.quit)
		s.setState(StateClosed)
		close(s.closed)
	}
	s.markDone()
	s.closeEvents()
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// emit delivers an event, blocking while the buffer is full until teardown starts.
func (s *Session) emit(ev *types.SessionEvent) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.eventsClosed {
		return
	}

	select {
	case s.events <- ev:
		return
	default:
	}

	select {
	case s.events <- ev:
	case <-s.quit:
		s.log.Debugf("Dropped %s event during teardown", ev.Type)
	}
}

func (s *Session) closeEvents() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}

// Events returns the session event channel. It is closed after the final
// disconnected event.
func (s *Session) Events() <-chan *types.SessionEvent {
	return s.events
}

// activeTransport returns the transport while the session is active.
func (s *Session) activeTransport() *transport.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateActive {
		return nil
	}
	return s.tr
}

// Send encodes v and sends it as one frame.
func (s *Session) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &transport.SendError{Reason: transport.ReasonEncodeFailed, Err: err}
	}
	if int64(len(data)) > s.opts.MaxMessageSize {
		return &transport.SendError{Reason: transport.ReasonOversize, Size: len(data), Err: transport.ErrMessageTooLarge}
	}

	tr := s.activeTransport()
	if tr == nil {
		return &transport.SendError{Reason: transport.ReasonNotConnected, Err: transport.ErrNotConnected}
	}
	return tr.Send(ctx, data)
}

// Start sends the start message for task.
func (s *Session) Start(ctx context.Context, task string, attachments ...types.Attachment) error {
	if err := s.Send(ctx, types.NewStartMessage(task, s.opts.TeamID, attachments, s.opts.KBIDs)); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	s.history.Append(SourceSystem, "Started task: "+task, map[string]string{"attachments": fmt.Sprint(len(attachments))})
	return nil
}

// SendText sends free text to the remote task.
func (s *Session) SendText(ctx context.Context, text string) error {
	return s.Send(ctx, types.NewTextMessage(text))
}

// RespondInput answers the pending input request with text.
func (s *Session) RespondInput(ctx context.Context, text string) error {
	requestID := s.PendingRequest()
	if requestID == "" {
		return ErrNoPendingInput
	}
	if err := s.Send(ctx, types.NewTextInput(requestID, text)); err != nil {
		return err
	}
	s.clearPending(requestID)
	return nil
}

// AcceptPlan confirms the pending plan request as proposed.
func (s *Session) AcceptPlan(ctx context.Context) error {
	requestID := s.PendingRequest()
	if requestID == "" {
		return ErrNoPendingInput
	}
	if err := s.Send(ctx, types.NewPlanInput(requestID, plan.NewAcceptance())); err != nil {
		return err
	}
	s.clearPending(requestID)
	s.history.Append(SourceSystem, "Accepted plan request "+requestID, map[string]string{"request_id": requestID})
	return nil
}

func (s *Session) clearPending(requestID string) {
	s.mu.Lock()
	if s.pendingRequest == requestID {
		s.pendingRequest = ""
	}
	s.mu.Unlock()
}

// SendStop asks the remote task to stop.
func (s *Session) SendStop(ctx context.Context) error {
	tr := s.activeTransport()
	if tr == nil {
		return &transport.SendError{Reason: transport.ReasonNotConnected, Err: transport.ErrNotConnected}
	}
	if err := tr.SendStop(ctx); err != nil {
		return err
	}
	s.history.Append(SourceSystem, "Stop requested", nil)
	return nil
}

// SessionID returns the id passed to Connect.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether the session is active and the connection is up.
func (s *Session) Connected() bool {
	tr := s.activeTransport()
	return tr != nil && tr.Connected()
}

// LastMessage returns the most recent inbound message other than ping and pong.
func (s *Session) LastMessage() *types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSignificant
}

// PendingRequest returns the id of the input request awaiting a user reply.
func (s *Session) PendingRequest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingRequest
}

// FinalAnswer returns the answer of a completed task.
func (s *Session) FinalAnswer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalAnswer
}

// Err returns the first error that failed the session.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Plan returns a copy of the mirrored plan.
func (s *Session) Plan() []*plan.Step {
	return s.plan.Snapshot()
}

// PlanLines renders the mirrored plan.
func (s *Session) PlanLines() []string {
	return s.plan.Lines()
}

// PlanStatus returns the aggregate status of the mirrored plan.
func (s *Session) PlanStatus() plan.Status {
	return s.plan.OverallStatus()
}

// History returns the session event log.
func (s *Session) History() []LogEntry {
	return s.history.Entries()
}

// Screenshots returns the browser screenshots seen so far.
func (s *Session) Screenshots() []Screenshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Screenshot(nil), s.screenshots...)
}
