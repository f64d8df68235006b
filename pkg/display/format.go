// Package display renders session messages and progress for the console.
package display

import (
	"fmt"
	"strings"

	"github.com/entrhq/mate/pkg/types"
)

const (
	maxDetailContent     = 200
	maxDetailDescription = 100
	detailIndent         = "\n    "
)

// orNA returns s, or "N/A" when s is empty.
func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// FormatHeader describes a received message in one line.
func FormatHeader(count int, kind types.MessageKind, sessionID string) string {
	return fmt.Sprintf("Received message %d (Type: %s, SessionID: %s):", count, kind, sessionID)
}

// FormatText renders the details of a text message.
func FormatText(m *types.Message) string {
	lines := []string{
		fmt.Sprintf("Source: %s (%s)", orNA(m.Source()), orNA(m.SourceType())),
		fmt.Sprintf("Code: %s, Round: %s, Time: %s", orNA(m.String("code")), orNA(m.String("session_round")), orNA(m.Timestamp())),
		"Content: " + truncate(m.Content(), maxDetailContent),
	}
	return strings.Join(lines, detailIndent)
}

// FormatPlan renders the details of a plan message.
func FormatPlan(m *types.Message) string {
	inner := types.InnerType(m)
	lines := []string{
		fmt.Sprintf("Plan from %s: %s", orNA(m.Source()), m.Content()),
		"Plan type: " + inner,
		"Timestamp: " + orNA(m.Timestamp()),
	}

	switch inner {
	case types.InnerCreatePlan, types.InnerUpdatePlan:
		tasks, _ := m.Data().([]any)
		lines = append(lines, fmt.Sprintf("Plan with %d tasks:", len(tasks)))
		for i, t := range tasks {
			task, _ := t.(map[string]any)
			lines = append(lines, fmt.Sprintf("  %d: %s (Status: %s)", i, fieldOr(task, "title", "No title"), fieldOr(task, "status", "unknown")))
			if desc := fieldOr(task, "description", ""); desc != "" {
				lines = append(lines, "     Desc: "+truncate(desc, maxDetailDescription))
			}
		}
	case types.InnerUpdateTaskStatus:
		data := m.DataMap()
		lines = append(lines, fmt.Sprintf("Task status update: Task %s '%s' -> %s",
			fieldOr(data, "id", "unknown"), fieldOr(data, "title", "unknown"), fieldOr(data, "status", "unknown")))
	}
	return strings.Join(lines, detailIndent)
}

// FormatRich renders the details of a rich message.
func FormatRich(m *types.Message) string {
	lines := []string{
		fmt.Sprintf("Rich content from %s (%s)", orNA(m.Source()), orNA(m.SourceType())),
		fmt.Sprintf("Browser ID: %s, Time: %s", orNA(m.String("browser_id")), orNA(m.Timestamp())),
		"Content: " + m.Content(),
	}
	if data := m.DataMap(); len(data) > 0 {
		lines = append(lines, "Action: "+fieldOr(data, "action", "unknown"))
		if url := fieldOr(data, "url", ""); url != "" {
			lines = append(lines, "URL: "+url)
		}
		if shot := fieldOr(data, "screenshot", ""); shot != "" {
			lines = append(lines, "Screenshot: "+shot)
		}
	}
	return strings.Join(lines, detailIndent)
}

// FormatInput renders the details of an input request.
func FormatInput(m *types.Message) string {
	lines := []string{
		"Input request from " + orNA(m.Source()),
		fmt.Sprintf("Type: %s, Time: %s", types.InnerType(m), orNA(m.Timestamp())),
	}
	if id := types.RequestID(m); id != "" {
		lines = append(lines, "Request ID: "+id)
	} else {
		lines = append(lines, "Warning: No request_id found")
	}
	return strings.Join(lines, detailIndent)
}

// FormatTaskResult renders the details of a task result.
func FormatTaskResult(m *types.Message) string {
	lines := []string{
		fmt.Sprintf("Task result from %s (%s)", orNA(m.Source()), orNA(m.SourceType())),
		"Content: " + m.Content(),
		"Timestamp: " + orNA(m.Timestamp()),
	}
	if data := m.DataMap(); len(data) > 0 {
		lines = append(lines, "Status: "+fieldOr(data, "status", "unknown"))
		if reason := fieldOr(data, "reason", ""); reason != "" {
			lines = append(lines, "Reason: "+reason)
		}
	}
	return strings.Join(lines, detailIndent)
}

// FormatDetails dispatches to the formatter for the message kind.
func FormatDetails(m *types.Message) string {
	switch types.Classify(m) {
	case types.KindText:
		return FormatText(m)
	case types.KindPlan:
		return FormatPlan(m)
	case types.KindRich:
		return FormatRich(m)
	case types.KindInput:
		return FormatInput(m)
	case types.KindTaskResult:
		return FormatTaskResult(m)
	default:
		return "Message type: " + m.Type()
	}
}

func fieldOr(m map[string]any, key, fallback string) string {
	switch v := m[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprint(v)
	}
	return fallback
}
