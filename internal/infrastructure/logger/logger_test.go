package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FiltersBelowConfiguredLevel(t *testing.T) {
	l := Setup("warn")
	assert.False(t, l.Enabled(nil, slog.LevelInfo))
	assert.True(t, l.Enabled(nil, slog.LevelWarn))
}

func TestSetup_UnknownLevelDefaultsToInfo(t *testing.T) {
	l := Setup("not-a-real-level")
	assert.True(t, l.Enabled(nil, slog.LevelInfo))
	assert.False(t, l.Enabled(nil, slog.LevelDebug))
}

func TestWithComponent_TagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	scoped := WithComponent(base, "scheduler")
	scoped.Info("tick")

	var entry map[string]any
	line := strings.TrimSpace(buf.String())
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "scheduler", entry["component"])
}
