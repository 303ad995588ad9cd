package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", FormatJSON)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("agent", "echo").Msg("registered")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "registered", line["message"])
	assert.Equal(t, "echo", line["agent"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "debug", FormatText)
	require.NoError(t, err)

	log.Debug().Msg("slot sealed")
	assert.Contains(t, buf.String(), "slot sealed")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
