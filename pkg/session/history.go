package session

import (
	"sync"
	"time"
)

// Event log sources.
const (
	SourceSystem     = "system"
	SourceError      = "error"
	SourcePlan       = "plan_manager"
	SourceBrowser    = "browser"
	SourceRich       = "rich_content"
	SourceTaskResult = "task_result"
	SourceWebSocket  = "websocket"
)

// LogEntry is one record of what the session processed or did.
type LogEntry struct {
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventLog is an append-only, concurrency-safe list of log entries.
type EventLog struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// Append records an entry stamped with the current time.
func (l *EventLog) Append(source, content string, metadata map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{
		Source:    source,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

// Entries returns a copy of the recorded entries.
func (l *EventLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]LogEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Screenshot is a browser screenshot reported by the remote task.
type Screenshot struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action,omitempty"`
	URL       string `json:"url,omitempty"`
	Data      string `json:"data"`
}
