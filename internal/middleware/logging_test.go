package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridquery/internal/logging"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "debug", Format: "json", Output: &buf})

	var seenID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/grid/posts?action=request", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", seenID)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "request started", lines[0]["msg"])
	assert.Equal(t, "request", lines[0]["grid_action"])
	assert.Equal(t, "req-123", lines[0]["request_id"])
	assert.Equal(t, "posts", lines[0]["grid"])
	assert.Equal(t, "request completed", lines[1]["msg"])
	assert.Equal(t, float64(http.StatusTeapot), lines[1]["status"])
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})

	rr := httptest.NewRecorder()
	LoggingMiddleware(logger)(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	_, hasAction := lines[0]["grid_action"]
	assert.False(t, hasAction)
	assert.Equal(t, "INFO", lines[1]["level"])
}

func TestLoggingMiddleware_RecordsBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/grid/posts/subgrid?id=1", nil))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "posts", lines[1]["grid"])
	assert.Equal(t, float64(5), lines[1]["bytes"])
	assert.Equal(t, float64(http.StatusOK), lines[1]["status"])
	assert.Equal(t, "INFO", lines[1]["level"])
}

func TestGridFromPath(t *testing.T) {
	tests := map[string]string{
		"/grid/posts":         "posts",
		"/grid/posts/subgrid": "posts",
		"/grid/":              "",
		"/health":             "",
	}
	for path, want := range tests {
		assert.Equal(t, want, gridFromPath(path), path)
	}
}
