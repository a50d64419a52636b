package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptured(t *testing.T) (*slog.Logger, func() map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil), "salt"))
	return logger, func() map[string]any {
		var out map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		return out
	}
}

func TestRedactsSensitiveKeys(t *testing.T) {
	logger, read := newCaptured(t)
	logger.Info("login", "authorization", "Bearer abc", "apiKey", "k", "documentId", "doc-1")

	got := read()
	assert.Equal(t, "[REDACTED]", got["authorization"])
	assert.Equal(t, "[REDACTED]", got["apiKey"])
	assert.Equal(t, "doc-1", got["documentId"])
}

func TestHashesUserIdentifiers(t *testing.T) {
	logger, read := newCaptured(t)
	logger.With("userId", "user-42").Info("summarize")

	got := read()
	hashed, ok := got["userId"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "user-42", hashed)
	assert.Regexp(t, `^hash:[0-9a-f]{12}$`, hashed)
}

func TestRedactsInsideGroups(t *testing.T) {
	logger, read := newCaptured(t)
	logger.Info("request", slog.Group("headers", "Authorization", "secret", "Accept", "application/json"))

	headers, ok := read()["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
}
