package types

import "strings"

// maxBrowserText bounds the page text kept in a browser action summary.
const maxBrowserText = 200

// BrowserAction is the data of a rich message whose inner type is browser.
type BrowserAction struct {
	Action     string
	URL        string
	Text       string
	Screenshot string
}

// BrowserActionOf extracts the browser action carried by a rich message.
// It reports false for any other message.
func BrowserActionOf(m *Message) (BrowserAction, bool) {
	if Classify(m) != KindRich || strings.ToLower(InnerType(m)) != InnerBrowser {
		return BrowserAction{}, false
	}
	data := m.DataMap()
	return BrowserAction{
		Action:     stringOf(data["action"]),
		URL:        stringOf(data["url"]),
		Text:       stringOf(data["text"]),
		Screenshot: stringOf(data["screenshot"]),
	}, true
}

// HasScreenshot reports whether the action captured a screenshot.
func (b BrowserAction) HasScreenshot() bool {
	return b.Screenshot != ""
}

// Summary describes the action on one line, e.g.
// "Action: click; URL: https://example.com; Screenshot captured".
func (b BrowserAction) Summary() string {
	var parts []string
	if b.Action != "" {
		parts = append(parts, "Action: "+b.Action)
	}
	if b.URL != "" {
		parts = append(parts, "URL: "+b.URL)
	}
	if b.Text != "" {
		text := b.Text
		if r := []rune(text); len(r) > maxBrowserText {
			text = string(r[:maxBrowserText]) + "..."
		}
		parts = append(parts, "Text: "+text)
	}
	if b.HasScreenshot() {
		parts = append(parts, "Screenshot captured")
	}
	if len(parts) == 0 {
		return "Browser activity"
	}
	return strings.Join(parts, "; ")
}

// MentionsScreenshot reports whether a non-browser rich message carries
// screenshot or browser content.
func MentionsScreenshot(m *Message) bool {
	content := strings.ToLower(m.Content())
	return strings.Contains(content, "screenshot") || strings.Contains(content, "browser")
}
