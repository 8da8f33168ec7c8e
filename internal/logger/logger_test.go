package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestTerminalLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("api", &buf)

	l.Info("store", "item added")
	line := buf.String()
	assert.Contains(t, line, "INFO  [STORE     ] item added")
	assert.Contains(t, line, "(logger_test.go:")
}

func TestHelpersUseTheirCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("api", &buf)

	l.LogOrder("PAID", "o1", "payment intent pi_1")
	l.LogSecurity("CLUB_ADMIN_DENIED", "user u1")
	out := buf.String()
	assert.Contains(t, out, "[ORDER     ] [PAID] o1 - payment intent pi_1")
	assert.Contains(t, out, "WARN  [SECURITY  ] [CLUB_ADMIN_DENIED] user u1")
	assert.Contains(t, out, "(logger_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("api", &buf)
	l.min = WARN

	l.Debug("X", "hidden")
	l.Info("X", "hidden")
	l.Error("X", "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("loud"))
	assert.Equal(t, "WARN", WARN.String())
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir)
	t.Setenv("LOG_LEVEL", "info")

	l := NewLogger("reminder")
	l.out = &bytes.Buffer{}
	l.Warn("REMINDER", "sweep slow")
	l.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "rallysphere-reminder-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, "WARN", entries[1].Level)
	assert.Equal(t, "reminder", entries[1].Service)
	assert.Equal(t, "sweep slow", entries[1].Message)
}
