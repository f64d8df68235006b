package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceMatcher(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		excluded []string
		source   string
		want     bool
	}{
		{name: "empty allow list", source: "planner", want: true},
		{name: "wildcard", allowed: []string{"*"}, source: "planner", want: true},
		{name: "wildcard empty source", allowed: []string{"*"}, source: "", want: true},
		{name: "prefix match", allowed: []string{"planner-*"}, source: "planner-v2", want: true},
		{name: "prefix miss", allowed: []string{"planner-*"}, source: "browser", want: false},
		{name: "excluded wins", allowed: []string{"*"}, excluded: []string{"browser*"}, source: "browser-agent", want: false},
		{name: "exclusion only", excluded: []string{"browser"}, source: "planner", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewSourceMatcher(tt.allowed, tt.excluded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Matches(tt.source))
		})
	}
}

func TestSourceMatcher_InvalidPattern(t *testing.T) {
	_, err := NewSourceMatcher(nil, []string{"[abc"})
	assert.Error(t, err)
}

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.IsSet())

	assert.True(t, l.Set())
	assert.False(t, l.Set())
	assert.True(t, l.IsSet())

	select {
	case <-l.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
}

func TestEventLog(t *testing.T) {
	var log EventLog
	log.Append(SourceSystem, "hello", nil)
	log.Append(SourceError, "boom", map[string]string{"error": "boom"})

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, SourceError, entries[1].Source)
	assert.False(t, entries[0].Timestamp.IsZero())

	entries[0].Content = "changed"
	assert.Equal(t, "hello", log.Entries()[0].Content)
}
