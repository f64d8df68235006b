package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mate/pkg/logging"
	"github.com/entrhq/mate/pkg/transport"
	"github.com/entrhq/mate/pkg/types"
)

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("session-test", io.Discard)
}

// newIdleSession returns a session that never connects, for driving the
// message handler directly.
func newIdleSession(t *testing.T, mutate func(*Options)) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = quietLogger()
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func msg(raw map[string]any) *types.Message {
	return types.NewMessage(raw)
}

func planMsg(inner, source string) *types.Message {
	return msg(map[string]any{
		"type":   "plan",
		"source": source,
		"message": map[string]any{
			"type": inner,
			"data": []any{map[string]any{"id": "1", "title": "Search flights"}},
		},
	})
}

func inputMsg(inner, requestID string) *types.Message {
	data := map[string]any{}
	if requestID != "" {
		data["request_id"] = requestID
	}
	return msg(map[string]any{
		"type":    "input",
		"message": map[string]any{"type": inner, "data": data},
	})
}

// lastEvent drains the buffered events and returns the last one.
func lastEvent(t *testing.T, s *Session) *types.SessionEvent {
	t.Helper()
	var last *types.SessionEvent
	for {
		select {
		case ev := <-s.Events():
			last = ev
		default:
			require.NotNil(t, last, "no event emitted")
			return last
		}
	}
}

func TestHandleInput_AutoAcceptAttempted(t *testing.T) {
	// Not connected, so an attempted acceptance surfaces the send error
	s := newIdleSession(t, nil)

	s.handle(planMsg(types.InnerCreatePlan, "planner"))
	s.handle(inputMsg(types.InnerText, "req-1"))

	ev := lastEvent(t, s)
	assert.Equal(t, types.KindInput, ev.Kind)
	assert.True(t, ev.AwaitingInput)
	assert.Empty(t, ev.AcceptedRequestID)
	require.Error(t, ev.Error)
	assert.True(t, errors.Is(ev.Error, transport.ErrNotConnected))
	assert.Equal(t, "req-1", s.PendingRequest())

	history := s.History()
	assert.Equal(t, SourceError, history[len(history)-1].Source)
}

func TestHandleInput_AutoAcceptNotAttempted(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		prev   *types.Message
		input  *types.Message
	}{
		{
			name:  "previous is a status update",
			prev:  planMsg(types.InnerUpdateTaskStatus, "planner"),
			input: inputMsg(types.InnerText, "req-1"),
		},
		{
			name:  "previous is not a plan",
			prev:  msg(map[string]any{"type": "text", "content": "hello"}),
			input: inputMsg(types.InnerText, "req-1"),
		},
		{
			name:  "no request id",
			prev:  planMsg(types.InnerCreatePlan, "planner"),
			input: inputMsg(types.InnerText, ""),
		},
		{
			name:  "input is not a text request",
			prev:  planMsg(types.InnerUpdatePlan, "planner"),
			input: inputMsg(types.InnerPlan, "req-1"),
		},
		{
			name:   "auto-accept disabled",
			mutate: func(o *Options) { o.AutoAcceptPlan = false },
			prev:   planMsg(types.InnerCreatePlan, "planner"),
			input:  inputMsg(types.InnerText, "req-1"),
		},
		{
			name:   "source not allowed",
			mutate: func(o *Options) { o.AutoAcceptSources = []string{"planner-*"} },
			prev:   planMsg(types.InnerCreatePlan, "browser"),
			input:  inputMsg(types.InnerText, "req-1"),
		},
		{
			name:   "source excluded",
			mutate: func(o *Options) { o.ExcludeSources = []string{"untrusted*"} },
			prev:   planMsg(types.InnerCreatePlan, "untrusted-agent"),
			input:  inputMsg(types.InnerText, "req-1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newIdleSession(t, tt.mutate)

			s.handle(tt.prev)
			s.handle(tt.input)

			ev := lastEvent(t, s)
			assert.True(t, ev.AwaitingInput)
			assert.NoError(t, ev.Error)
			assert.Empty(t, ev.AcceptedRequestID)
			assert.Equal(t, types.RequestID(tt.input), s.PendingRequest())
		})
	}
}

func TestHandleInput_NoPreviousMessage(t *testing.T) {
	s := newIdleSession(t, nil)

	s.handle(inputMsg(types.InnerText, "req-1"))

	ev := lastEvent(t, s)
	assert.True(t, ev.AwaitingInput)
	assert.NoError(t, ev.Error)
}

func TestHandle_PongNotRecorded(t *testing.T) {
	s := newIdleSession(t, nil)
	s.hb = transport.NewHeartbeat(&nopPinger{}, time.Minute)

	plan := planMsg(types.InnerCreatePlan, "planner")
	s.handle(plan)
	s.handle(msg(map[string]any{"type": "pong", "timestamp": float64(1)}))

	ev := lastEvent(t, s)
	assert.Equal(t, types.KindPong, ev.Kind)
	assert.Same(t, plan, s.LastMessage())

	// The plan is still the previous message for the input that follows
	s.handle(inputMsg(types.InnerText, "req-1"))
	assert.Error(t, lastEvent(t, s).Error)
}

func TestHandle_PingConsumed(t *testing.T) {
	s := newIdleSession(t, nil)
	pinger := &nopPinger{}
	s.hb = transport.NewHeartbeat(pinger, time.Minute)

	s.handle(msg(map[string]any{"type": "ping"}))

	assert.Equal(t, 1, pinger.pongs)
	assert.Nil(t, s.LastMessage())
	select {
	case ev := <-s.Events():
		t.Fatalf("ping surfaced as %s event", ev.Type)
	default:
	}
}

func TestHandle_Plan(t *testing.T) {
	s := newIdleSession(t, nil)

	s.handle(planMsg(types.InnerCreatePlan, "planner"))
	ev := lastEvent(t, s)
	assert.True(t, ev.PlanChanged)
	assert.Equal(t, []string{"[ ] Search flights"}, s.PlanLines())

	s.handle(planMsg(types.InnerCreatePlan, "planner"))
	assert.False(t, lastEvent(t, s).PlanChanged)
}

func TestHandle_TaskResult(t *testing.T) {
	s := newIdleSession(t, func(o *Options) { o.CloseOnComplete = false })

	s.handle(msg(map[string]any{"type": "task_result", "content": "Flights booked"}))

	ev := lastEvent(t, s)
	assert.True(t, ev.IsFinal())
	assert.Equal(t, "Flights booked", ev.FinalAnswer)
	assert.Equal(t, "Flights booked", s.FinalAnswer())
	assert.True(t, s.Completed())
}

func TestHandle_FinalAnswerText(t *testing.T) {
	s := newIdleSession(t, func(o *Options) { o.CloseOnComplete = false })

	s.handle(msg(map[string]any{
		"type":    "text",
		"source":  "assistant",
		"content": "Tuesday is cheapest",
		"message": map[string]any{"type": "text", "metadata": map[string]any{"type": "final_answer"}},
	}))

	assert.True(t, s.Completed())
	assert.Equal(t, "Tuesday is cheapest", s.FinalAnswer())

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[0].Source)
	assert.Equal(t, SourceTaskResult, history[1].Source)
}

func TestHandle_PlainTextDoesNotComplete(t *testing.T) {
	s := newIdleSession(t, nil)

	s.handle(msg(map[string]any{"type": "text", "content": "Searching"}))

	assert.False(t, s.Completed())
	assert.False(t, lastEvent(t, s).IsFinal())
}

func TestHandle_RichScreenshots(t *testing.T) {
	s := newIdleSession(t, nil)

	s.handle(msg(map[string]any{
		"type":      "rich",
		"timestamp": "2024-06-10T10:00:00Z",
		"message": map[string]any{
			"type": "browser",
			"data": map[string]any{"action": "click", "url": "https://example.com", "screenshot": "s3://shot-1.png"},
		},
	}))
	s.handle(msg(map[string]any{
		"type":    "rich",
		"message": map[string]any{"type": "browser", "data": map[string]any{"action": "scroll"}},
	}))
	s.handle(msg(map[string]any{
		"type":    "rich",
		"content": map[string]any{"screenshot": "s3://shot-2.png"},
		"message": map[string]any{"type": "card"},
	}))

	shots := s.Screenshots()
	require.Len(t, shots, 2)
	assert.Equal(t, "click", shots[0].Action)
	assert.Equal(t, "s3://shot-1.png", shots[0].Data)
	assert.Contains(t, shots[1].Data, "shot-2")

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "Action: click; URL: https://example.com; Screenshot captured", history[0].Content)
	assert.Equal(t, "Action: scroll", history[1].Content)
}

func TestHandle_Unhandled(t *testing.T) {
	s := newIdleSession(t, nil)

	s.handle(msg(map[string]any{"type": "browser_event"}))

	ev := lastEvent(t, s)
	assert.Equal(t, types.KindUnhandled, ev.Kind)
	assert.Equal(t, "browser_event", s.LastMessage().Type())
}

type nopPinger struct {
	pongs int
}

func (p *nopPinger) Ping(context.Context) error { return nil }
func (p *nopPinger) Pong(context.Context) error {
	p.pongs++
	return nil
}
func (p *nopPinger) Connected() bool { return true }
