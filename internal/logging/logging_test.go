package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToStdoutAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "app.log")

	log, closer, err := New(Options{Level: "debug", File: path, Stdout: &buf})
	require.NoError(t, err)
	log.Debug().Str("component", "test").Msg("hello")
	require.NoError(t, closer.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "debug", line["level"])
	assert.Contains(t, line, "time")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"hello"`)
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Options{Level: "WARN", Stdout: &buf})
	require.NoError(t, err)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	assert.Equal(t, "abcdefgh", Token("abcdefghijklmnop"))
	assert.Equal(t, "abc", Token("abc"))
}
