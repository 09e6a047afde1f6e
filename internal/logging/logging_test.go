package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf), "semantic")
	log.Debug().Int("batch", 2).Msg("calling provider")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "semantic", line["component"])
	assert.Equal(t, float64(2), line["batch"])
	assert.Equal(t, "calling provider", line["message"])
	assert.Contains(t, line, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestNew_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "loud", Format: "json"}, &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "info", Format: "console"}, &buf)
	log.Info().Str("unit", "u1").Msg("parsed")

	out := buf.String()
	assert.Contains(t, out, "parsed")
	assert.Contains(t, out, "unit=")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
