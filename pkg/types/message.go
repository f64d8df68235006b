package types

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// MessageKind is the top-level `type` tag of a wire message.
type MessageKind string

const (
	KindText       MessageKind = "text"        // KindText is agent or user free text.
	KindPlan       MessageKind = "plan"        // KindPlan carries plan creation or step updates.
	KindInput      MessageKind = "input"       // KindInput is an input request (inbound) or reply (outbound).
	KindRich       MessageKind = "rich"        // KindRich carries structured content such as browser actions.
	KindTaskResult MessageKind = "task_result" // KindTaskResult carries the final result of the task.
	KindPing       MessageKind = "ping"        // KindPing is a keep-alive probe.
	KindPong       MessageKind = "pong"        // KindPong answers a ping.
	KindStart      MessageKind = "start"       // KindStart starts the task.
	KindStop       MessageKind = "stop"        // KindStop asks the remote task to stop.
	KindUnhandled  MessageKind = "unhandled"   // KindUnhandled is any type this engine does not know.
)

// IsHeartbeat reports whether the kind is a keep-alive frame.
func (k MessageKind) IsHeartbeat() bool {
	return k == KindPing || k == KindPong
}

// Message is a read-only view over one decoded inbound JSON object.
// The underlying object is never modified after ParseMessage returns.
type Message struct {
	raw     map[string]any
	payload map[string]any
}

// ParseMessage decodes a text frame into a Message.
// The frame must be a JSON object.
func ParseMessage(data []byte) (*Message, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("message is not a JSON object")
	}
	return NewMessage(raw), nil
}

// NewMessage wraps an already decoded object. The map must not be modified afterwards.
func NewMessage(raw map[string]any) *Message {
	if raw == nil {
		raw = map[string]any{}
	}
	m := &Message{raw: raw}
	m.payload = decodePayload(raw["message"])
	return m
}

// decodePayload accepts the nested `message` field as an object or as a JSON-encoded string.
func decodePayload(v any) map[string]any {
	switch p := v.(type) {
	case map[string]any:
		return p
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(p), &decoded); err == nil && decoded != nil {
			return decoded
		}
	}
	return map[string]any{}
}

// Type returns the top-level type tag, or "unknown" when absent.
func (m *Message) Type() string {
	if t := stringOf(m.raw["type"]); t != "" {
		return t
	}
	return "unknown"
}

// Kind returns the classified kind of the message.
func (m *Message) Kind() MessageKind {
	return Classify(m)
}

// Source returns the origin label of the message.
func (m *Message) Source() string {
	return stringOf(m.raw["source"])
}

// SourceType returns the origin category of the message.
func (m *Message) SourceType() string {
	return stringOf(m.raw["source_type"])
}

// Content returns the text content. Structured content is returned as JSON.
func (m *Message) Content() string {
	switch c := m.raw["content"].(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(data)
	}
}

// Timestamp returns the timestamp field as text, or "" when absent.
func (m *Message) Timestamp() string {
	return stringOf(m.raw["timestamp"])
}

// Payload returns the nested `message` object. It is empty, never nil, when absent.
func (m *Message) Payload() map[string]any {
	return m.payload
}

// Data returns the nested `message.data` value.
func (m *Message) Data() any {
	return m.payload["data"]
}

// DataMap returns `message.data` when it is an object.
func (m *Message) DataMap() map[string]any {
	d, _ := m.payload["data"].(map[string]any)
	return d
}

// Metadata returns the top-level metadata object.
func (m *Message) Metadata() map[string]any {
	md, _ := m.raw["metadata"].(map[string]any)
	return md
}

// PayloadMetadata returns the `message.metadata` object.
func (m *Message) PayloadMetadata() map[string]any {
	md, _ := m.payload["metadata"].(map[string]any)
	return md
}

// Field returns a top-level field.
func (m *Message) Field(key string) any {
	return m.raw[key]
}

// String returns a top-level field as text.
func (m *Message) String(key string) string {
	return stringOf(m.raw[key])
}

// Raw returns a shallow copy of the decoded object.
func (m *Message) Raw() map[string]any {
	return maps.Clone(m.raw)
}

// MarshalJSON encodes the original object.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}

// stringOf renders scalar JSON values as text. Objects and arrays yield "".
func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
