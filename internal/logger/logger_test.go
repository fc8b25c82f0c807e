package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, "pretty", resolveFormat("auto", true))
	assert.Equal(t, "json", resolveFormat("auto", false))
	assert.Equal(t, "pretty", resolveFormat("pretty", false))
	assert.Equal(t, "json", resolveFormat("json", true))
}

func TestNewWritesJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Info().Str("attempt_id", "a1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "a1", entry["attempt_id"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	log := New(&buf, "nonsense", "json")
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
