package session

import (
	"context"
	"time"
)

// Reason names the latch that ended a Wait.
type Reason string

const (
	ReasonError            Reason = "error"
	ReasonTaskCompleted    Reason = "task_completed"
	ReasonConnectionClosed Reason = "connection_closed"
	ReasonUserExit         Reason = "user_exit"
)

// Outcome is the terminal result observed by Wait.
type Outcome struct {
	Reason      Reason
	FinalAnswer string
	Err         error
}

// Wait blocks until the session reaches a terminal outcome or ctx is done.
// When several latches are set the reported reason follows the priority
// error > task_completed > connection_closed > user_exit.
func (s *Session) Wait(ctx context.Context) (*Outcome, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if outcome := s.outcome(); outcome != nil {
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-s.failed.Done():
		case <-s.taskCompleted.Done():
		case <-s.connectionClosed.Done():
		case <-s.userExit.Done():
		}
	}
}

// outcome returns the highest-priority set latch, or nil.
func (s *Session) outcome() *Outcome {
	var reason Reason
	switch {
	case s.failed.IsSet():
		reason = ReasonError
	case s.taskCompleted.IsSet():
		reason = ReasonTaskCompleted
	case s.connectionClosed.IsSet():
		reason = ReasonConnectionClosed
	case s.userExit.IsSet():
		reason = ReasonUserExit
	default:
		return nil
	}
	return &Outcome{Reason: reason, FinalAnswer: s.FinalAnswer(), Err: s.Err()}
}

// Completed reports whether the task finished.
func (s *Session) Completed() bool {
	return s.taskCompleted.IsSet()
}

// Exited reports whether the user left the session.
func (s *Session) Exited() bool {
	return s.userExit.IsSet()
}
