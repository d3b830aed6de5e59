package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/lean-server/config"
	"github.com/searchktools/lean-server/core/http"
)

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Env = "production"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	log := NewLogger(cfg, &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "shown", event["message"])
	assert.Equal(t, "v", event["k"])
	assert.Contains(t, event, "time")
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Env = "production"
	cfg.LogLevel = "loud"

	var buf bytes.Buffer
	log := NewLogger(cfg, &buf)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}

func TestAppServe(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0o644))

	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.DocRoot = root
	cfg.VirtualHosts = false
	cfg.ShutdownTimeout = 2 * time.Second

	a := NewWithLogger(cfg, zerolog.Nop())
	a.Engine().GET("/api/ping", func(c *http.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.Engine().Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	base := "http://" + a.Engine().Addr().String()

	get := func(path string) (*nethttp.Response, string) {
		resp, err := nethttp.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := get("/index.html")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<h1>hi</h1>", body)
	assert.Equal(t, "lean-server", resp.Header.Get("Server"))

	resp, body = get("/api/ping")
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, _ = get("/missing.txt")
	assert.Equal(t, 404, resp.StatusCode)

	resp, body = get("/_status")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "GET /api/ping")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestAppServeBindFailure(t *testing.T) {
	cfg := config.Default()
	cfg.BindAddress = "203.0.113.1" // TEST-NET-3, not assigned locally
	cfg.Port = 0
	cfg.DocRoot = ""

	a := NewWithLogger(cfg, zerolog.Nop())
	err := a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
