package types

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserActionOf(t *testing.T) {
	m := NewMessage(map[string]any{
		"type": "rich",
		"message": map[string]any{
			"type": "Browser",
			"data": map[string]any{"action": "click", "url": "https://example.com", "screenshot": "s3://a.png"},
		},
	})

	action, ok := BrowserActionOf(m)
	require.True(t, ok)
	assert.Equal(t, "click", action.Action)
	assert.True(t, action.HasScreenshot())
	assert.Equal(t, "Action: click; URL: https://example.com; Screenshot captured", action.Summary())
}

func TestBrowserActionOf_NotBrowser(t *testing.T) {
	_, ok := BrowserActionOf(NewMessage(map[string]any{"type": "rich", "message": map[string]any{"type": "card"}}))
	assert.False(t, ok)

	_, ok = BrowserActionOf(NewMessage(map[string]any{"type": "text", "message": map[string]any{"type": "browser"}}))
	assert.False(t, ok)
}

func TestBrowserAction_Summary(t *testing.T) {
	assert.Equal(t, "Browser activity", BrowserAction{}.Summary())

	long := BrowserAction{Text: strings.Repeat("a", 250)}
	assert.Equal(t, "Text: "+strings.Repeat("a", 200)+"...", long.Summary())
}

func TestBrowserAction_SummaryMultiByteText(t *testing.T) {
	action := BrowserAction{Text: "a" + strings.Repeat("é", 250)}

	summary := action.Summary()
	assert.True(t, utf8.ValidString(summary))
	assert.Equal(t, "Text: a"+strings.Repeat("é", 199)+"...", summary)
}

func TestMentionsScreenshot(t *testing.T) {
	assert.True(t, MentionsScreenshot(NewMessage(map[string]any{"content": map[string]any{"screenshot": "x"}})))
	assert.True(t, MentionsScreenshot(NewMessage(map[string]any{"content": "Opened the Browser"})))
	assert.False(t, MentionsScreenshot(NewMessage(map[string]any{"content": "a chart"})))
}
