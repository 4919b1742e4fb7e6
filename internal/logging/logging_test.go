package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "json", zerolog.InfoLevel)

	log.Debug().Msg("hidden")
	log.Info().Str("instrument", "MGC").Int("rows", 3).Msg("features built")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "features built", entry["message"])
	assert.Equal(t, "MGC", entry["instrument"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Contains(t, entry, "time")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orb.log")

	log, closer, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info().Msg("hello")
	require.NoError(t, closer.Close())
}
