package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPathTemplate is the session path used when none is configured.
const DefaultPathTemplate = "/v1/ws/{session_id}"

// BuildEndpoint derives the WebSocket URL of a session from the HTTP API base URL.
//
// http maps to ws and https to wss; ws and wss are kept; any other or missing
// scheme becomes wss. The host is kept and the base path is replaced by the
// session path. The API key is appended as the api_key query parameter.
func BuildEndpoint(baseURL, pathTemplate, sessionID, apiKey string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}

	raw := strings.TrimSpace(baseURL)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: missing host", baseURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}

	path := strings.ReplaceAll(pathTemplate, "{session_id}", url.PathEscape(sessionID))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	endpoint := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}
	if apiKey != "" {
		endpoint.RawQuery = url.Values{"api_key": []string{apiKey}}.Encode()
	}
	return endpoint.String(), nil
}

// redact hides the api_key query parameter for logs and errors.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
