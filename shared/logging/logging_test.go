package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWritesStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := New("json", &stdout, &stderr)
	l.Info().Str("model", "m").Msg("hello")

	assert.Empty(t, stderr.String())
	var line map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "m", line["model"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_ConsoleWritesStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := New("console", &stdout, &stderr)
	l.Warn().Msg("careful")

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "careful")
}
