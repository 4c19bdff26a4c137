/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	m, generated := NewManager("test-secret", time.Hour)
	if generated {
		t.Error("explicit secret must not be replaced")
	}

	token, expires, err := m.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) < 55*time.Minute {
		t.Errorf("unexpected expiry %v", expires)
	}
	if err := m.Verify(token); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	m1, _ := NewManager("secret-one", time.Hour)
	m2, _ := NewManager("secret-two", time.Hour)

	token, _, err := m1.Issue()
	if err != nil {
		t.Fatal(err)
	}
	if err := m2.Verify(token); !errors.Is(err, models.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if err := m2.Verify("not-a-token"); !errors.Is(err, models.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}

func TestTTLFloor(t *testing.T) {
	m, _ := NewManager("s", time.Second)
	if m.TTL() != 5*time.Minute {
		t.Errorf("ttl floor not applied: %v", m.TTL())
	}
}

func TestEmptySecretIsGenerated(t *testing.T) {
	m, generated := NewManager("", time.Hour)
	if !generated {
		t.Fatal("expected generated secret")
	}
	token, _, err := m.Issue()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Verify(token); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword(hash, "hunter2"); err != nil {
		t.Errorf("CheckPassword: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, models.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, models.ErrAuth) {
		t.Errorf("expected ErrAuth for empty hash, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	m, _ := NewManager("secret", time.Hour)
	token, _, err := m.Issue()
	if err != nil {
		t.Fatal(err)
	}
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		upgrade    bool
		query      string
		wantStatus int
	}{
		{"valid bearer", "Bearer " + token, false, "", http.StatusNoContent},
		{"missing token", "", false, "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, false, "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", false, "", http.StatusUnauthorized},
		{"websocket query token", "", true, token, http.StatusNoContent},
		{"query token without upgrade", "", false, token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/api/state"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
