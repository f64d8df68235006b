package types

import "time"

// InputType defines what an input reply answers.
type InputType string

const (
	InputTypePlan InputType = "plan" // InputTypePlan answers a plan confirmation request.
	InputTypeText InputType = "text" // InputTypeText answers a free-text input request.
)

// Outbound is a message sent from the client to the server.
type Outbound struct {
	Type      MessageKind `json:"type"`
	Content   string      `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Data      any         `json:"data,omitempty"`
}

// TaskMessage is one entry of a start message.
type TaskMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Attachment references an uploaded file.
type Attachment struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}

// StartData is the payload of a start message.
type StartData struct {
	Messages    []TaskMessage `json:"messages"`
	Attachments []Attachment  `json:"attachments"`
	TeamID      string        `json:"team_id"`
	KBIDs       []string      `json:"kb_ids"`
}

// InputData is the payload of an input reply.
type InputData struct {
	InputType InputType `json:"input_type"`
	RequestID string    `json:"request_id"`
	Response  any       `json:"response,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// NewStartMessage creates the message that starts a task.
func NewStartMessage(task, teamID string, attachments []Attachment, kbIDs []string) *Outbound {
	if attachments == nil {
		attachments = []Attachment{}
	}
	if kbIDs == nil {
		kbIDs = []string{}
	}
	return &Outbound{
		Type: KindStart,
		Data: &StartData{
			Messages:    []TaskMessage{{Type: "task", Content: task}},
			Attachments: attachments,
			TeamID:      teamID,
			KBIDs:       kbIDs,
		},
	}
}

// NewStopMessage creates a stop command.
func NewStopMessage() *Outbound {
	return &Outbound{Type: KindStop}
}

// NewPingMessage creates a keep-alive probe stamped with the current time.
func NewPingMessage(now time.Time) *Outbound {
	return &Outbound{Type: KindPing, Timestamp: now.UnixMilli()}
}

// NewPongMessage creates a keep-alive answer stamped with the current time.
func NewPongMessage(now time.Time) *Outbound {
	return &Outbound{Type: KindPong, Timestamp: now.UnixMilli()}
}

// NewTextMessage creates a free-text user message.
func NewTextMessage(content string) *Outbound {
	return &Outbound{Type: KindText, Content: content}
}

// NewPlanInput answers a plan confirmation request with the given response body.
func NewPlanInput(requestID string, response any) *Outbound {
	return &Outbound{
		Type: KindInput,
		Data: &InputData{
			InputType: InputTypePlan,
			RequestID: requestID,
			Response:  response,
		},
	}
}

// NewTextInput answers a free-text input request.
func NewTextInput(requestID, text string) *Outbound {
	return &Outbound{
		Type: KindInput,
		Data: &InputData{
			InputType: InputTypeText,
			RequestID: requestID,
			Text:      text,
		},
	}
}
