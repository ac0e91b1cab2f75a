package logx_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steplov/pvtools/src/logx"
)

func TestNewJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logx.New(&buf, "warn", true)

	log.Info().Msg("ignored")
	log.Warn().Str("volume", "vm-100-disk-0").Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"volume":"vm-100-disk-0"`)
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logx.New(&buf, "chatty", true)

	log.Debug().Msg("below info")
	log.Info().Msg("at info")

	assert.NotContains(t, buf.String(), "below info")
	assert.Contains(t, buf.String(), "at info")
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logx.New(&buf, "info", false)

	log.Info().Msg("hello")

	// Console output spells the message out instead of JSON-quoting it.
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNop(t *testing.T) {
	log := logx.Nop()
	log.Error().Msg("dropped")
}
