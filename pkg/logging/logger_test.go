package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the package at a temporary log directory and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origSessionID := sessionID

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	initOnce.Do(func() {}) // keep the temp dir instead of ~/.mate/logs
	sessionID = ""
	sessionIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		if origSessionID != "" {
			sessionIDOnce.Do(func() {})
		}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("transport")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "transport", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	require.NotEmpty(t, logger.LogPath())

	_, statErr := os.Stat(logger.LogPath())
	assert.NoError(t, statErr)
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("session")
	require.NoError(t, err)
	defer logger.Close()

	logger.Printf("connected to %s", "wss://example")
	logger.Debugf("frame received")
	logger.Infof("plan changed")
	logger.Warnf("dropping malformed frame")
	logger.Errorf("receive loop failed")

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)

	for _, pattern := range []string{
		"[session] [INFO] connected to wss://example",
		"[session] [DEBUG] frame received",
		"[session] [INFO] plan changed",
		"[session] [WARN] dropping malformed frame",
		"[session] [ERROR] receive loop failed",
	} {
		assert.Contains(t, string(content), pattern)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("heartbeat", &buf)
	logger.SetLevel(LevelWarn)

	logger.Debugf("ping sent")
	logger.Infof("pong received")
	logger.Warnf("ping failed")

	out := buf.String()
	assert.NotContains(t, out, "ping sent")
	assert.NotContains(t, out, "pong received")
	assert.Contains(t, out, "[heartbeat] [WARN] ping failed")
	assert.Equal(t, LevelWarn, logger.Level())
}

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		verbosity string
		expected  Level
	}{
		{"quiet", LevelWarn},
		{"normal", LevelInfo},
		{"verbose", LevelDebug},
		{"DEBUG", LevelDebug},
		{"", LevelInfo},
		{"loud", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.verbosity, func(t *testing.T) {
			assert.Equal(t, tt.expected, LevelForVerbosity(tt.verbosity))
		})
	}
}

func TestMultipleComponents(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("transport")
	require.NoError(t, err)
	defer logger1.Close()

	logger2, err := NewLogger("session")
	require.NoError(t, err)
	defer logger2.Close()

	// Components of one process share the session ID and the log file
	assert.Equal(t, logger1.SessionID(), logger2.SessionID())
	assert.Equal(t, logger1.LogPath(), logger2.LogPath())

	logger1.Printf("from transport")
	logger2.Printf("from session")

	content, err := os.ReadFile(logger1.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[transport]")
	assert.Contains(t, string(content), "[session]")
}

func TestGetLogDirectory(t *testing.T) {
	setupTestDir(t)

	dir, err := GetLogDirectory()
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	// Writer loggers own no file
	assert.NoError(t, NewWriterLogger("test", &bytes.Buffer{}).Close())
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)
	defer logger.Close()

	fileName := filepath.Base(logger.LogPath())
	require.True(t, strings.HasSuffix(fileName, "-mate.log"), "unexpected log file name %q", fileName)

	sessionPart := strings.TrimSuffix(fileName, "-mate.log")
	assert.Contains(t, sessionPart, "-", "expected a UUID session id, got %q", sessionPart)
}

func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Infof("nothing")
	})
}
