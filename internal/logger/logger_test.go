package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_TagsServiceAndStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("dashboard-test", &buf)

	log.Error().Stack().Err(errors.New("boom")).Msg("failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dashboard-test", line["service"])
	assert.Equal(t, "failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.NotNil(t, line["stack"], "stack should be attached to plain errors")
}
