package types

import "time"

// SessionEventType defines the type of event emitted by a session.
type SessionEventType string

const (
	EventTypeConnected    SessionEventType = "connected"    // EventTypeConnected indicates the channel is open and the heartbeat is running.
	EventTypeDisconnected SessionEventType = "disconnected" // EventTypeDisconnected indicates the channel has closed.
	EventTypeMessage      SessionEventType = "message"      // EventTypeMessage carries a classified inbound message.
	EventTypeError        SessionEventType = "error"        // EventTypeError indicates an unrecoverable session error.
)

// SessionEvent is the single tagged event type delivered on a session's event channel.
type SessionEvent struct {
	// Message is the classified inbound message (message events only).
	Message *Message

	// Error contains error information. Set on error events, and on message events
	// when an automatic reply to the message failed.
	Error error

	// Time is when the event was produced.
	Time time.Time

	// Type indicates the kind of event.
	Type SessionEventType

	// Kind is the classified kind of Message.
	Kind MessageKind

	// InnerType is the kind-specific tag of Message (see InnerType).
	InnerType string

	// AcceptedRequestID is set when the session answered a plan confirmation
	// request for this input message.
	AcceptedRequestID string

	// FinalAnswer is set when this message completed the task.
	FinalAnswer string

	// PlanChanged is true when a plan message changed the mirrored plan.
	PlanChanged bool

	// AwaitingInput is true when an input request was not answered automatically
	// and waits for the user.
	AwaitingInput bool
}

// NewConnectedEvent creates a connected event.
func NewConnectedEvent() *SessionEvent {
	return &SessionEvent{Type: EventTypeConnected, Time: time.Now()}
}

// NewDisconnectedEvent creates a disconnected event.
func NewDisconnectedEvent() *SessionEvent {
	return &SessionEvent{Type: EventTypeDisconnected, Time: time.Now()}
}

// NewMessageEvent creates a message event for a classified inbound message.
func NewMessageEvent(msg *Message) *SessionEvent {
	return &SessionEvent{
		Type:      EventTypeMessage,
		Message:   msg,
		Kind:      Classify(msg),
		InnerType: InnerType(msg),
		Time:      time.Now(),
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *SessionEvent {
	return &SessionEvent{Type: EventTypeError, Error: err, Time: time.Now()}
}

// IsFinal returns true if this message event completed the task.
func (e *SessionEvent) IsFinal() bool {
	return e.Type == EventTypeMessage && (e.Kind == KindTaskResult || e.FinalAnswer != "")
}
