package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestForRunAttributes(t *testing.T) {
	var buf bytes.Buffer
	Set(New(&buf, slog.LevelInfo, "json"))
	defer Set(nil)
	ForRun("r1", "2000m").Info("trace_solve_done", "edges", 3)
	out := buf.String()
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"threshold":"2000m"`)
	assert.Contains(t, out, `"msg":"trace_solve_done"`)
}

func TestAccessMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug, "text")
	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "http_access")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=5")
}
