/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package auth guards the control surface. The device has a single admin
// identity: a bcrypt password hash in the config exchanged for a short-lived
// HS256 token.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

// Manager issues and verifies access tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager builds a token manager. An empty secret gets a random one,
// which invalidates all tokens on restart.
func NewManager(secret string, ttl time.Duration) (*Manager, bool) {
	generated := false
	if secret == "" {
		buf := make([]byte, 32)
		rand.Read(buf)
		secret = hex.EncodeToString(buf)
		generated = true
	}
	if ttl < 5*time.Minute {
		ttl = 5 * time.Minute
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, generated
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a token for the admin identity.
func (m *Manager) Issue() (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		Issuer:    "grimnir-signage",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a token.
func (m *Manager) Verify(raw string) error {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: invalid token", models.ErrAuth)
	}
	return nil
}

// CheckPassword compares a login attempt against the configured hash.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return fmt.Errorf("%w: no password configured", models.ErrAuth)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%w: bad credentials", models.ErrAuth)
	}
	return nil
}

// HashPassword produces a bcrypt hash for the config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
