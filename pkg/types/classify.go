package types

// Inner type tags carried in `message.type`.
const (
	InnerCreatePlan       = "create_plan"
	InnerUpdatePlan       = "update_plan"
	InnerUpdateTaskStatus = "update_task_status"
	InnerText             = "text"
	InnerPlan             = "plan"
	InnerBrowser          = "browser"
	InnerFinalAnswer      = "final_answer"

	innerUnknown = "unknown"
)

var knownKinds = map[MessageKind]bool{
	KindText:       true,
	KindPlan:       true,
	KindInput:      true,
	KindRich:       true,
	KindTaskResult: true,
	KindPing:       true,
	KindPong:       true,
	KindStart:      true,
	KindStop:       true,
}

// Classify returns the kind of a message. Unknown or missing type tags map to KindUnhandled.
func Classify(m *Message) MessageKind {
	if m == nil {
		return KindUnhandled
	}
	kind := MessageKind(stringOf(m.raw["type"]))
	if knownKinds[kind] {
		return kind
	}
	return KindUnhandled
}

// RequestID returns `message.data.request_id`, falling back to a top-level
// `data.request_id`. It returns "" when neither is present.
func RequestID(m *Message) string {
	if m == nil {
		return ""
	}
	if id := stringOf(m.DataMap()["request_id"]); id != "" {
		return id
	}
	if data, ok := m.raw["data"].(map[string]any); ok {
		return stringOf(data["request_id"])
	}
	return ""
}

// InnerType returns the kind-specific tag in `message.type`, e.g. create_plan for a
// plan message or text for an input request. It returns "unknown" when absent.
func InnerType(m *Message) string {
	if m == nil {
		return innerUnknown
	}
	if t := stringOf(m.payload["type"]); t != "" {
		return t
	}
	return innerUnknown
}

// IsPlanRequest reports whether a plan message creates or rewrites the plan, the
// two cases in which the server follows up with a confirmation request.
func IsPlanRequest(m *Message) bool {
	if Classify(m) != KindPlan {
		return false
	}
	switch InnerType(m) {
	case InnerCreatePlan, InnerUpdatePlan:
		return true
	}
	return false
}

// IsFinalAnswer reports whether a text message is tagged as the task's final answer.
func IsFinalAnswer(m *Message) bool {
	if Classify(m) != KindText {
		return false
	}
	return stringOf(m.PayloadMetadata()["type"]) == InnerFinalAnswer
}
