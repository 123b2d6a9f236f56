// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth owns the viewer's credential: the bearer token and the
// cached profile.
//
// The token is held in a memguard enclave while in memory (locked pages,
// wiped on destruction) and persisted under the storage key "token" so a
// session survives restarts. A 401 observed anywhere in the client demotes
// to the logged-out state by calling Clear.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/kurukshetram/internal/session"
	"github.com/AleutianAI/kurukshetram/internal/storage"
)

// ErrNotAuthenticated is returned when an operation needs a credential and
// none is present.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// Profile is the subset of the upstream user object the client keeps.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Credentials stores and supplies the viewer's bearer token.
//
// # Thread Safety
//
// Safe for concurrent use.
type Credentials struct {
	mu      sync.RWMutex
	store   storage.Store
	logger  *slog.Logger
	enclave *memguard.Enclave
	profile *Profile
}

// NewCredentials creates the credential service, loading any persisted
// token and profile from the store.
func NewCredentials(store storage.Store, logger *slog.Logger) *Credentials {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Credentials{store: store, logger: logger}
	if raw, ok, err := store.Get(storage.KeyToken); err == nil && ok && len(raw) > 0 {
		c.enclave = memguard.NewEnclave(raw)
	}
	if raw, ok, err := store.Get(storage.KeyUser); err == nil && ok {
		var p Profile
		if json.Unmarshal(raw, &p) == nil {
			c.profile = &p
		} else {
			// A corrupt profile is discarded rather than trusted.
			_ = store.Delete(storage.KeyUser)
		}
	}
	return c
}

// Token implements session.TokenSource.
func (c *Credentials) Token() (string, bool) {
	c.mu.RLock()
	enclave := c.enclave
	c.mu.RUnlock()
	if enclave == nil {
		return "", false
	}
	buf, err := enclave.Open()
	if err != nil {
		c.logger.Error("failed to open token enclave", slog.String("error", err.Error()))
		return "", false
	}
	defer buf.Destroy()
	// buf.String() aliases the locked pages without copying; the byte→string
	// conversion copies so the token survives the deferred Destroy.
	return string(buf.Bytes()), true
}

// Authenticated reports whether a token is present.
func (c *Credentials) Authenticated() bool {
	_, ok := c.Token()
	return ok
}

// Profile returns the cached profile, or nil when logged out.
func (c *Credentials) Profile() *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// SetSession installs a new token and profile, persisting both.
func (c *Credentials) SetSession(token string, profile Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("auth: encode profile: %w", err)
	}
	if err := c.store.Set(storage.KeyToken, []byte(token)); err != nil {
		return err
	}
	if err := c.store.Set(storage.KeyUser, raw); err != nil {
		return err
	}
	c.mu.Lock()
	c.enclave = memguard.NewEnclave([]byte(token))
	c.profile = &profile
	c.mu.Unlock()
	return nil
}

// Clear drops the credential and profile, both in memory and on disk.
// Called on logout and whenever a 401 reveals the token expired.
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.enclave = nil
	c.profile = nil
	c.mu.Unlock()
	if err := c.store.Delete(storage.KeyToken); err != nil {
		c.logger.Warn("failed to clear stored token", slog.String("error", err.Error()))
	}
	if err := c.store.Delete(storage.KeyUser); err != nil {
		c.logger.Warn("failed to clear stored profile", slog.String("error", err.Error()))
	}
}

// loginResult is the upstream login payload.
type loginResult struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

// Login authenticates against the upstream and installs the session.
func Login(ctx context.Context, s *session.Session, creds *Credentials, emailOrPhone, password string) (*Profile, error) {
	body, err := s.Post(ctx, "/auth/userLogin", map[string]string{
		"emailOrPhone": emailOrPhone,
		"password":     password,
	})
	if err != nil {
		return nil, err
	}
	var res loginResult
	if err := session.DecodeResult(body, &res); err != nil {
		return nil, fmt.Errorf("auth: decode login response: %w", err)
	}
	if res.Token == "" {
		return nil, errors.New("auth: login response carried no token")
	}
	if err := creds.SetSession(res.Token, res.User); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// FetchProfile refreshes the cached profile from /auth/profile.
// A 401 clears the credential, matching the demote-on-expiry policy.
func FetchProfile(ctx context.Context, s *session.Session, creds *Credentials) (*Profile, error) {
	if !creds.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	body, err := s.Get(ctx, "/auth/profile", nil)
	if err != nil {
		if se, ok := session.AsError(err); ok && se.HTTPStatus == 401 {
			creds.Clear()
		}
		return nil, err
	}
	var p Profile
	if err := session.DecodeResult(body, &p); err != nil {
		return nil, fmt.Errorf("auth: decode profile: %w", err)
	}
	raw, _ := json.Marshal(p)
	_ = creds.store.Set(storage.KeyUser, raw)
	creds.mu.Lock()
	creds.profile = &p
	creds.mu.Unlock()
	return &p, nil
}
