package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mate/internal/testing/wstest"
	"github.com/entrhq/mate/pkg/config"
	"github.com/entrhq/mate/pkg/display"
	"github.com/entrhq/mate/pkg/session"
	"github.com/entrhq/mate/pkg/types"
)

const waitTimeout = 2 * time.Second

// syncBuffer is a bytes.Buffer safe for the printer and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvTeamID, "")

	path := filepath.Join(t.TempDir(), "mate.yaml")
	content := fmt.Sprintf("api_key: test-key\nbase_url: %s\nsession:\n  poll_interval: 10ms\n", baseURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

type runResult struct {
	err error
}

func startRun(t *testing.T, opts *runOptions, input string) (<-chan runResult, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	result := make(chan runResult, 1)
	go func() {
		err := runSession(context.Background(), opts, strings.NewReader(input), out)
		result <- runResult{err: err}
	}()
	return result, out
}

func waitRun(t *testing.T, result <-chan runResult) error {
	t.Helper()
	select {
	case r := <-result:
		return r.err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestParseAttachments(t *testing.T) {
	attachments, err := parseAttachments([]string{"report.pdf=https://files/r1", "https://files/data.csv"})
	require.NoError(t, err)
	assert.Equal(t, []types.Attachment{
		{FileName: "report.pdf", FileURL: "https://files/r1"},
		{FileName: "data.csv", FileURL: "https://files/data.csv"},
	}, attachments)

	for _, bad := range []string{"=https://files/r1", "name=", ""} {
		_, err := parseAttachments([]string{bad})
		assert.Error(t, err, bad)
	}

	empty, err := parseAttachments(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadConfig_Flags(t *testing.T) {
	path := writeConfig(t, "https://api.example.com")

	cfg, err := loadConfig(&runOptions{ConfigFile: path, TeamID: "team-2", NoAutoAccept: true, Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "team-2", cfg.TeamID)
	assert.False(t, cfg.Session.AutoAcceptPlan)
	assert.Equal(t, "verbose", cfg.Logging.Verbosity)
}

func TestLoadConfig_MissingCredentials(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvBaseURL, "")

	_, err := loadConfig(&runOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestRunSession_TaskCompletes(t *testing.T) {
	srv := wstest.NewServer(t)
	opts := &runOptions{
		ConfigFile:  writeConfig(t, srv.HTTPURL()),
		SessionID:   "s-1",
		Task:        "Plan a trip",
		Attachments: []string{"itinerary.pdf=https://files/itinerary.pdf"},
	}

	result, out := startRun(t, opts, "")

	start, err := srv.NextOfType("start", waitTimeout)
	require.NoError(t, err)
	data := start["data"].(map[string]any)
	assert.Len(t, data["attachments"], 1)

	require.NoError(t, srv.Send(map[string]any{
		"type":    "plan",
		"source":  "planner",
		"message": map[string]any{"type": "create_plan", "data": []any{map[string]any{"id": "1", "title": "Search flights"}}},
	}))
	require.NoError(t, srv.Send(map[string]any{
		"type":    "input",
		"message": map[string]any{"type": "text", "data": map[string]any{"request_id": "req-1"}},
	}))
	_, err = srv.NextOfType("input", waitTimeout)
	require.NoError(t, err)

	require.NoError(t, srv.Send(map[string]any{"type": "task_result", "content": "Trip planned"}))

	require.NoError(t, waitRun(t, result))

	output := out.String()
	assert.Contains(t, output, "Started task with 1 attachment(s): Plan a trip")
	assert.Contains(t, output, "Received Plan:")
	assert.Contains(t, output, "Auto-accepted plan request req-1")
	assert.Contains(t, output, "Task result: Trip planned")
	assert.Contains(t, output, "Task completed successfully!")
	assert.Contains(t, output, "Session completed (task_completed).")
}

func TestRunSession_UserExit(t *testing.T) {
	srv := wstest.NewServer(t)
	opts := &runOptions{
		ConfigFile: writeConfig(t, srv.HTTPURL()),
		SessionID:  "s-1",
		Task:       "Plan a trip",
	}

	result, out := startRun(t, opts, "hello\n\nquit\n")

	_, err := srv.NextOfType("start", waitTimeout)
	require.NoError(t, err)
	text, err := srv.NextOfType("text", waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hello", text["content"])

	require.NoError(t, waitRun(t, result))
	require.NoError(t, srv.WaitClosed(waitTimeout))

	output := out.String()
	assert.Contains(t, output, "Sent: hello")
	assert.NotContains(t, output, "closed before task completion")
}

func TestRunSession_ConnectionLost(t *testing.T) {
	srv := wstest.NewServer(t)
	opts := &runOptions{
		ConfigFile: writeConfig(t, srv.HTTPURL()),
		SessionID:  "s-1",
		Task:       "Plan a trip",
	}

	result, out := startRun(t, opts, "")

	_, err := srv.NextOfType("start", waitTimeout)
	require.NoError(t, err)
	require.NoError(t, srv.DropConn())

	err = waitRun(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task execution failed")
	assert.Contains(t, out.String(), "Session completed (error).")
}

func TestRunSession_ConnectRejected(t *testing.T) {
	srv := wstest.NewServer(t, wstest.WithReject(403))
	opts := &runOptions{
		ConfigFile: writeConfig(t, srv.HTTPURL()),
		SessionID:  "s-1",
		Task:       "Plan a trip",
	}

	err := runSession(context.Background(), opts, strings.NewReader(""), &syncBuffer{})
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	srv := wstest.NewServer(t)
	opts := session.DefaultOptions()
	opts.BaseURL = srv.HTTPURL()
	opts.APIKey = "test-key"
	s, err := session.New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background(), "s-1"))
	t.Cleanup(func() { _ = s.Disconnect() })
	require.NoError(t, srv.WaitConnected(waitTimeout))

	out := &syncBuffer{}
	printer := display.NewWriterPrinter(display.LevelNormal, out)
	ctx := context.Background()

	leave, err := dispatch(ctx, s, printer, "   ")
	require.NoError(t, err)
	assert.False(t, leave)
	assert.NoError(t, srv.ExpectSilence(50*time.Millisecond))

	leave, err = dispatch(ctx, s, printer, "STOP")
	require.NoError(t, err)
	assert.False(t, leave)
	frame, err := srv.Next(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "stop", frame["type"])

	// An input request without a preceding plan stays pending
	require.NoError(t, srv.Send(map[string]any{
		"type":    "input",
		"message": map[string]any{"type": "text", "data": map[string]any{"request_id": "req-7"}},
	}))
	require.Eventually(t, func() bool { return s.PendingRequest() == "req-7" }, waitTimeout, 10*time.Millisecond)

	_, err = dispatch(ctx, s, printer, "yes please")
	require.NoError(t, err)
	frame, err = srv.Next(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"input_type": "text", "request_id": "req-7", "text": "yes please"}, frame["data"])

	_, err = dispatch(ctx, s, printer, "thanks")
	require.NoError(t, err)
	frame, err = srv.Next(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "text", "content": "thanks"}, frame)

	for _, word := range []string{"exit", "quit", "Q"} {
		leave, err = dispatch(ctx, s, printer, word)
		require.NoError(t, err)
		assert.True(t, leave, word)
	}

	output := out.String()
	assert.Contains(t, output, "Stop command sent")
	assert.Contains(t, output, "Replied to req-7: yes please")
	assert.Contains(t, output, "Sent: thanks")
}

func TestPrintRaw(t *testing.T) {
	out := &syncBuffer{}
	printer := display.NewWriterPrinter(display.LevelNormal, out)

	printRaw(printer, types.NewMessageEvent(types.NewMessage(map[string]any{"type": "pong"})))
	printRaw(printer, types.NewConnectedEvent())

	output := out.String()
	assert.Contains(t, output, `"type": "pong"`)
	assert.Contains(t, output, `"event": "connected"`)
}
