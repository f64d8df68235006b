package session

import (
	"fmt"

	"github.com/entrhq/mate/pkg/plan"
	"github.com/entrhq/mate/pkg/types"
)

// handle runs on the receive goroutine for every decoded inbound message.
func (s *Session) handle(msg *types.Message) {
	kind := types.Classify(msg)

	if kind.IsHeartbeat() {
		if s.hb.HandleInbound(s.runCtx, msg) {
			return
		}
		// Pongs are surfaced but never become the last significant message
		s.emit(types.NewMessageEvent(msg))
		return
	}

	ev := types.NewMessageEvent(msg)
	switch kind {
	case types.KindText:
		s.handleText(msg, ev)
	case types.KindPlan:
		s.handlePlan(msg, ev)
	case types.KindInput:
		s.handleInput(msg, ev)
	case types.KindRich:
		s.handleRich(msg)
	case types.KindTaskResult:
		s.complete(msg.Content(), ev)
		s.history.Append(SourceTaskResult, "Final Answer: "+msg.Content(), map[string]string{"type": "final_result"})
	default:
		s.log.Debugf("Unhandled message type %q", msg.Type())
		s.history.Append(SourceWebSocket, "Message type: "+msg.Type(), map[string]string{"message_type": msg.Type()})
	}

	s.mu.Lock()
	s.lastSignificant = msg
	s.mu.Unlock()

	s.emit(ev)

	if ev.IsFinal() && s.opts.CloseOnComplete {
		s.log.Infof("Task completed, closing session")
		if err := s.teardown(false); err != nil {
			s.log.Warnf("Teardown after completion: %v", err)
		}
	}
}

func (s *Session) handleText(msg *types.Message, ev *types.SessionEvent) {
	source := msg.Source()
	if source == "" {
		source = msg.SourceType()
	}
	s.history.Append(source, msg.Content(), stringMetadata(msg.Metadata()))

	if types.IsFinalAnswer(msg) {
		s.complete(msg.Content(), ev)
		s.history.Append(SourceTaskResult, "Final Answer from TEXT: "+msg.Content(), map[string]string{"type": "final_result_from_text"})
	}
}

func (s *Session) handlePlan(msg *types.Message, ev *types.SessionEvent) {
	ev.PlanChanged = s.plan.Apply(msg)
	if !ev.PlanChanged {
		s.log.Debugf("Plan message (%s) applied no changes", types.InnerType(msg))
		return
	}

	status := s.plan.OverallStatus()
	s.log.Infof("Plan updated (%s), status %s", types.InnerType(msg), status)
	s.history.Append(SourcePlan, fmt.Sprintf("Plan status: %s", status), map[string]string{"inner_type": types.InnerType(msg)})
}

// handleInput answers plan confirmation requests when the auto-accept rule
// holds and otherwise leaves the request pending for the user.
func (s *Session) handleInput(msg *types.Message, ev *types.SessionEvent) {
	requestID := types.RequestID(msg)

	if s.shouldAutoAccept(s.LastMessage(), msg, requestID) {
		err := s.Send(s.runCtx, types.NewPlanInput(requestID, plan.NewAcceptance()))
		if err == nil {
			ev.AcceptedRequestID = requestID
			s.log.Infof("Auto-accepted plan request %s", requestID)
			s.history.Append(SourceSystem, "Auto-accepted plan request "+requestID, map[string]string{"request_id": requestID})
			return
		}

		s.log.Errorf("Request ID: %s. Failed to accept plan: %v", requestID, err)
		s.history.Append(SourceError, "Failed to accept plan: "+err.Error(), map[string]string{"request_id": requestID, "error": err.Error()})
		ev.Error = err
	}

	ev.AwaitingInput = true
	if requestID != "" {
		s.mu.Lock()
		s.pendingRequest = requestID
		s.mu.Unlock()
	}
	s.log.Infof("Awaiting user input (request %q)", requestID)
}

// shouldAutoAccept holds when the previous significant message proposed or
// revised a plan, the input is a text request with an id, and the plan's
// source is allowed.
func (s *Session) shouldAutoAccept(prev, input *types.Message, requestID string) bool {
	if !s.opts.AutoAcceptPlan || requestID == "" || prev == nil {
		return false
	}
	if !types.IsPlanRequest(prev) {
		return false
	}
	if types.InnerType(input) != types.InnerText {
		return false
	}
	return s.sources.Matches(prev.Source())
}

func (s *Session) handleRich(msg *types.Message) {
	if action, ok := types.BrowserActionOf(msg); ok {
		if action.HasScreenshot() {
			s.addScreenshot(Screenshot{Timestamp: msg.Timestamp(), Action: action.Action, URL: action.URL, Data: action.Screenshot})
		}
		s.history.Append(SourceBrowser, action.Summary(), map[string]string{
			"type":           "browser_rich",
			"action":         action.Action,
			"url":            action.URL,
			"has_screenshot": fmt.Sprint(action.HasScreenshot()),
		})
		return
	}

	if types.MentionsScreenshot(msg) {
		s.addScreenshot(Screenshot{Timestamp: msg.Timestamp(), Data: msg.Content()})
		s.history.Append(SourceRich, "Rich content with screenshot", map[string]string{"type": "screenshot"})
		return
	}
	s.history.Append(SourceRich, "RICH message type: "+types.InnerType(msg), map[string]string{"type": "rich_other"})
}

func (s *Session) addScreenshot(shot Screenshot) {
	s.mu.Lock()
	s.screenshots = append(s.screenshots, shot)
	s.mu.Unlock()
}

// complete stores the final answer and latches task completion.
func (s *Session) complete(answer string, ev *types.SessionEvent) {
	s.mu.Lock()
	s.finalAnswer = answer
	s.mu.Unlock()

	ev.FinalAnswer = answer
	if s.taskCompleted.Set() {
		s.log.Infof("Received final answer (%d chars)", len(answer))
	}
}

func stringMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
