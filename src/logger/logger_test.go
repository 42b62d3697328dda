package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hendrywilliam/sirengate/src/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("bucket", "abc").Msg("slow down")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "slow down", line["message"])
	assert.Equal(t, "abc", line["bucket"])
	assert.Contains(t, line, "time")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LoggingConfig{Level: "DEBUG", Format: "console"}, &buf)
	require.NoError(t, err)

	log.Debug().Msg("connected")
	assert.Contains(t, buf.String(), "connected")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestInvalidSettings(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Format: "xml"}, nil)
	assert.Error(t, err)
}
