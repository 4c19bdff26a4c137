/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/config"
	"github.com/friendsincode/grimnir_signage/internal/logbuffer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:       "development",
		HTTPBind:          "127.0.0.1",
		HTTPPort:          0,
		Homepage:          "https://example.com",
		DebugPort:         9222,
		GracePeriod:       time.Second,
		BackoffCeiling:    5 * time.Second,
		MediaLocalPath:    dir,
		MetadataPath:      filepath.Join(dir, "metadata.json"),
		ImageDuration:     10 * time.Second,
		MaxUploadBytes:    1 << 20,
		FfprobeTimeout:    time.Second,
		TickInterval:      15 * time.Second,
		OverrideWindow:    30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		ClientBuffer:      8,
		TokenSecret:       "test-secret",
		TokenTTL:          time.Hour,
		PlaylistPath:      filepath.Join(dir, "playlists.json"),
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(testConfig(t), logbuffer.New(100), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestHealthEndpointOpen(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set on plain http request: %q", got)
	}
}

func TestHSTSBehindTLSProxy(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS missing on forwarded https request")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/playlists", "/api/schedules", "/api/media", "/api/system/logs"} {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rec.Code)
		}
	}
}

func TestServerTimeouts(t *testing.T) {
	srv := newTestServer(t)

	if srv.httpServer.ReadHeaderTimeout != 15*time.Second {
		t.Errorf("ReadHeaderTimeout = %v", srv.httpServer.ReadHeaderTimeout)
	}
	if srv.httpServer.ReadTimeout != 0 {
		t.Errorf("ReadTimeout = %v, want 0 for streaming uploads", srv.httpServer.ReadTimeout)
	}
}
