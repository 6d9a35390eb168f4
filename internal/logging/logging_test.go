package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gnoerrors "github.com/gastoncampana/gno/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, ".gno") && strings.Contains(dir, "logs"))
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	assert.Equal(t, "engine.log", filepath.Base(path))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestDebugConfig(t *testing.T) {
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestSetup(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      3,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, logger)

	logger.Info("test message")

	_, err = os.Stat(logPath)
	assert.NoError(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, LevelFromString(tc.input).String())
	}
}

func TestErrorAttrs_StructuredError(t *testing.T) {
	err := gnoerrors.VecSyncFailed("listing durable vectors", errors.New("disk full")).
		WithDetail("model", "m1")

	attrs := ErrorAttrs(err)

	byKey := make(map[string]slog.Attr, len(attrs))
	for _, a := range attrs {
		byKey[a.Key] = a
	}
	assert.Equal(t, "VEC_SYNC_FAILED", byKey["error_kind"].Value.String())
	assert.Equal(t, "listing durable vectors", byKey["error_message"].Value.String())
	assert.Equal(t, "disk full", byKey["cause"].Value.String())
	assert.Equal(t, "m1", byKey["detail_model"].Value.String())
}

func TestErrorAttrs_PlainError(t *testing.T) {
	attrs := ErrorAttrs(errors.New("boom"))
	require.Len(t, attrs, 1)
	assert.Equal(t, "error", attrs[0].Key)
	assert.Equal(t, "boom", attrs[0].Value.String())
}

func TestLogError_WritesKindAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogError(logger, "sync failed", gnoerrors.Corrupt("bad header", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "CORRUPT", entry["error_kind"])
	assert.True(t, entry["fatal"].(bool))
}

func TestLogError_NilIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	LogError(logger, "unreachable", nil)
	assert.Empty(t, buf.Bytes())
}

func TestFindLogFile_NotFound(t *testing.T) {
	_, err := FindLogFile("/nonexistent/path/to/log.log")
	assert.Error(t, err)
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")
	require.NoError(t, os.WriteFile(logPath, []byte("line\n"), 0o644))

	found, err := FindLogFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, logPath, found)
}

func TestEnsureLogDir(t *testing.T) {
	require.NoError(t, EnsureLogDir())
	_, err := os.Stat(DefaultLogDir())
	assert.NoError(t, err)
}

func TestRotatingWriter_ImmediateSync(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.log")

	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.log")

	// maxSizeMB=0 forces rotation on (almost) every write since maxSize
	// becomes 0 bytes once converted.
	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	rotated := path + ".1"
	_, err = os.Stat(rotated)
	assert.NoError(t, err)
}

func TestRotatingWriter_CloseSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.log")

	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestRotatingWriter_SyncSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.log")

	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("x\n"))
	require.NoError(t, err)
	assert.NoError(t, w.Sync())
}
