package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when a frame is sent on a closed or never-opened connection.
	ErrNotConnected = errors.New("not connected")

	// ErrMessageTooLarge is returned when an outbound frame exceeds the configured maximum size.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

// ConnectionError reports a failed handshake or dial.
type ConnectionError struct {
	Endpoint   string // Endpoint is the dialed URL with credentials redacted.
	StatusCode int    // StatusCode is the HTTP status of a rejected handshake, 0 otherwise.
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect %s: handshake rejected with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendReason classifies a SendError.
type SendReason string

const (
	ReasonNotConnected SendReason = "not_connected"
	ReasonOversize     SendReason = "oversize"
	ReasonWriteFailed  SendReason = "write_failed"
	ReasonEncodeFailed SendReason = "encode_failed"
)

// SendError reports an outbound frame that was not written.
type SendError struct {
	Reason SendReason
	Size   int
	Err    error
}

func (e *SendError) Error() string {
	switch e.Reason {
	case ReasonOversize:
		return fmt.Sprintf("send failed: %d byte frame: %v", e.Size, e.Err)
	default:
		return fmt.Sprintf("send failed (%s): %v", e.Reason, e.Err)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// MalformedMessageError reports an inbound frame that is not a JSON object.
type MalformedMessageError struct {
	Frame []byte
	Err   error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// TimeoutError reports an operation that did not finish within its bound.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// Timeout marks the error as a timeout for net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// ReceiveError reports an abnormal end of the receive loop.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive failed: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }
