package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		typ      any
		expected MessageKind
	}{
		{"text", KindText},
		{"plan", KindPlan},
		{"input", KindInput},
		{"rich", KindRich},
		{"task_result", KindTaskResult},
		{"ping", KindPing},
		{"pong", KindPong},
		{"start", KindStart},
		{"stop", KindStop},
		{"browser_event", KindUnhandled},
		{"", KindUnhandled},
		{float64(3), KindUnhandled},
		{nil, KindUnhandled},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			raw := map[string]any{}
			if tt.typ != nil {
				raw["type"] = tt.typ
			}
			assert.Equal(t, tt.expected, Classify(NewMessage(raw)))
		})
	}

	assert.Equal(t, KindUnhandled, Classify(nil))
}

func TestMessageKind_IsHeartbeat(t *testing.T) {
	assert.True(t, KindPing.IsHeartbeat())
	assert.True(t, KindPong.IsHeartbeat())
	assert.False(t, KindPlan.IsHeartbeat())
	assert.False(t, KindUnhandled.IsHeartbeat())
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		expected string
	}{
		{
			name: "nested payload",
			raw: map[string]any{
				"type":    "input",
				"message": map[string]any{"data": map[string]any{"request_id": "req-42"}},
			},
			expected: "req-42",
		},
		{
			name: "top-level data",
			raw: map[string]any{
				"type": "input",
				"data": map[string]any{"request_id": "req-7"},
			},
			expected: "req-7",
		},
		{
			name: "nested wins",
			raw: map[string]any{
				"message": map[string]any{"data": map[string]any{"request_id": "inner"}},
				"data":    map[string]any{"request_id": "outer"},
			},
			expected: "inner",
		},
		{
			name:     "absent",
			raw:      map[string]any{"type": "input", "message": map[string]any{"type": "text"}},
			expected: "",
		},
		{
			name:     "data is a list",
			raw:      map[string]any{"message": map[string]any{"data": []any{"x"}}},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RequestID(NewMessage(tt.raw)))
		})
	}

	assert.Equal(t, "", RequestID(nil))
}

func TestInnerType(t *testing.T) {
	plan := NewMessage(map[string]any{"type": "plan", "message": map[string]any{"type": "update_task_status"}})
	assert.Equal(t, InnerUpdateTaskStatus, InnerType(plan))

	bare := NewMessage(map[string]any{"type": "input"})
	assert.Equal(t, "unknown", InnerType(bare))
	assert.Equal(t, "unknown", InnerType(nil))
}

func TestIsPlanRequest(t *testing.T) {
	tests := []struct {
		kind     string
		inner    string
		expected bool
	}{
		{"plan", InnerCreatePlan, true},
		{"plan", InnerUpdatePlan, true},
		{"plan", InnerUpdateTaskStatus, false},
		{"text", InnerCreatePlan, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.inner, func(t *testing.T) {
			msg := NewMessage(map[string]any{"type": tt.kind, "message": map[string]any{"type": tt.inner}})
			assert.Equal(t, tt.expected, IsPlanRequest(msg))
		})
	}
}

func TestIsFinalAnswer(t *testing.T) {
	final := NewMessage(map[string]any{
		"type":    "text",
		"content": "The cheapest flight is on Tuesday.",
		"message": map[string]any{"metadata": map[string]any{"type": "final_answer"}},
	})
	assert.True(t, IsFinalAnswer(final))

	// Top-level metadata does not mark a final answer
	topLevel := NewMessage(map[string]any{
		"type":     "text",
		"metadata": map[string]any{"type": "final_answer"},
	})
	assert.False(t, IsFinalAnswer(topLevel))

	rich := NewMessage(map[string]any{
		"type":    "rich",
		"message": map[string]any{"metadata": map[string]any{"type": "final_answer"}},
	})
	assert.False(t, IsFinalAnswer(rich))
}
