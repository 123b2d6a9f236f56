// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kurukshetram/internal/session"
	"github.com/AleutianAI/kurukshetram/internal/storage"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *session.Session {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := session.New(session.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return s
}

func TestCredentials_SessionSurvivesRestart(t *testing.T) {
	store := storage.NewMemStore()

	creds := NewCredentials(store, nil)
	assert.False(t, creds.Authenticated())

	require.NoError(t, creds.SetSession("tok-abc", Profile{ID: "u1", DisplayName: "Asha"}))

	tok, ok := creds.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-abc", tok)

	// A fresh instance over the same store picks up the session.
	reloaded := NewCredentials(store, nil)
	assert.True(t, reloaded.Authenticated())
	require.NotNil(t, reloaded.Profile())
	assert.Equal(t, "Asha", reloaded.Profile().DisplayName)
}

func TestCredentials_ClearDropsEverything(t *testing.T) {
	store := storage.NewMemStore()
	creds := NewCredentials(store, nil)
	require.NoError(t, creds.SetSession("tok-abc", Profile{ID: "u1"}))

	creds.Clear()

	assert.False(t, creds.Authenticated())
	assert.Nil(t, creds.Profile())

	_, ok, err := store.Get(storage.KeyToken)
	require.NoError(t, err)
	assert.False(t, ok, "token must not survive Clear on disk")
}

func TestCredentials_CorruptProfileDiscarded(t *testing.T) {
	store := storage.NewMemStore()
	require.NoError(t, store.Set(storage.KeyUser, []byte("{not json")))

	creds := NewCredentials(store, nil)
	assert.Nil(t, creds.Profile())

	_, ok, err := store.Get(storage.KeyUser)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt profile entry should be deleted")
}

func TestLogin_InstallsSession(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/userLogin", r.URL.Path)
		w.Write([]byte(`{"status":1,"result":{"token":"tok-xyz","user":{"id":"u9","displayName":"Ravi","email":"ravi@example.com"}}}`))
	})
	creds := NewCredentials(storage.NewMemStore(), nil)

	p, err := Login(context.Background(), sess, creds, "ravi@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", p.DisplayName)
	assert.True(t, creds.Authenticated())
}

func TestLogin_MissingTokenRejected(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"result":{"user":{"id":"u9"}}}`))
	})
	creds := NewCredentials(storage.NewMemStore(), nil)

	_, err := Login(context.Background(), sess, creds, "x@example.com", "pw")
	require.Error(t, err)
	assert.False(t, creds.Authenticated())
}

func TestFetchProfile_ClearsOn401(t *testing.T) {
	sess := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":0,"message":"expired"}`))
	})
	creds := NewCredentials(storage.NewMemStore(), nil)
	require.NoError(t, creds.SetSession("stale", Profile{ID: "u1"}))

	_, err := FetchProfile(context.Background(), sess, creds)
	require.Error(t, err)
	assert.False(t, creds.Authenticated(), "401 must demote to logged out")
}

func TestFetchProfile_RequiresCredential(t *testing.T) {
	creds := NewCredentials(storage.NewMemStore(), nil)
	_, err := FetchProfile(context.Background(), nil, creds)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
