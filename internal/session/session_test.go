// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"

type staticTokens struct{ token string }

func (s staticTokens) Token() (string, bool) { return s.token, s.token != "" }

func newTestSession(t *testing.T, baseURL string, mutate func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		BaseURL:     baseURL,
		UserAgent:   "kuru-test/1.0",
		BackoffBase: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	// No real sleeping in tests.
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestSession_HeaderInjection(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"status":1,"result":[]}`))
	}))
	defer srv.Close()

	t.Run("desktop with token", func(t *testing.T) {
		s := newTestSession(t, srv.URL, func(c *Config) {
			c.Tokens = staticTokens{token: "jwt-abc"}
		})
		_, err := s.Get(context.Background(), "/news/languages", nil)
		require.NoError(t, err)
		assert.Equal(t, "Bearer jwt-abc", got.Get("Authorization"))
		assert.Equal(t, "desktop", got.Get("X-Client-Type"))
		assert.Equal(t, "kuru-test/1.0", got.Get("X-User-Agent"))
		assert.NotEmpty(t, got.Get("X-Request-ID"))
		assert.Equal(t, "application/json", got.Get("Content-Type"))
	})

	t.Run("mobile anonymous", func(t *testing.T) {
		s := newTestSession(t, srv.URL, func(c *Config) {
			c.UserAgent = mobileUA
		})
		_, err := s.Get(context.Background(), "/news/languages", nil)
		require.NoError(t, err)
		assert.Equal(t, "mobile", got.Get("X-Client-Type"))
		assert.Empty(t, got.Get("Authorization"))
	})
}

func TestSession_Classification(t *testing.T) {
	t.Run("no response is NETWORK", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse all connections

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Get(context.Background(), "/news/languages", nil)
		require.Error(t, err)
		se, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindNetwork, se.Kind)
		assert.Equal(t, 0, se.HTTPStatus)
	})

	t.Run("deadline is TIMEOUT", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, func(c *Config) {
			c.Timeout = 20 * time.Millisecond
			c.MaxAttempts = 1
		})
		_, err := s.Get(context.Background(), "/news/languages", nil)
		se, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindTimeout, se.Kind)
	})

	t.Run("404 on forgot-password path for mobile", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, func(c *Config) { c.UserAgent = mobileUA })
		_, err := s.Post(context.Background(), "/auth/forgot-password", map[string]string{"email": "x@y.z"})
		se, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindNotFound, se.Kind)
		assert.Equal(t, http.StatusNotFound, se.HTTPStatus)
		assert.Contains(t, se.Message, "OTP")
		assert.True(t, se.Context.IsMobileClient)
	})

	t.Run("404 generic on desktop", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, func(c *Config) { c.MaxAttempts = 1 })
		_, err := s.Get(context.Background(), "/news/missing", nil)
		se, _ := AsError(err)
		require.NotNil(t, se)
		assert.Equal(t, "Service temporarily unavailable. Please try again later.", se.Message)
	})

	t.Run("403 is FORBIDDEN and 5xx is SERVER", func(t *testing.T) {
		status := int32(http.StatusForbidden)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(atomic.LoadInt32(&status)))
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, func(c *Config) { c.MaxAttempts = 1 })
		_, err := s.Delete(context.Background(), "/news/1/likes")
		assert.Equal(t, KindForbidden, Kind(err))

		atomic.StoreInt32(&status, http.StatusBadGateway)
		_, err = s.Get(context.Background(), "/news/1", nil)
		assert.Equal(t, KindServer, Kind(err))
	})

	t.Run("server error body message is preserved", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"status":0,"message":"content must not be empty"}`))
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Post(context.Background(), "/news/1/comments", map[string]string{})
		se, _ := AsError(err)
		require.NotNil(t, se)
		assert.Equal(t, KindUnknown, se.Kind)
		assert.Equal(t, "content must not be empty", se.Message)
		assert.Equal(t, http.StatusUnprocessableEntity, se.HTTPStatus)
	})
}

func TestSession_Retry(t *testing.T) {
	t.Run("GET retries on 5xx up to three attempts", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Get(context.Background(), "/news/languages", nil)
		assert.Equal(t, KindServer, Kind(err))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("GET succeeds after transient failure", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"status":1,"result":[]}`))
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Get(context.Background(), "/news/languages", nil)
		assert.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("404 is not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Get(context.Background(), "/news/missing", nil)
		assert.Equal(t, KindNotFound, Kind(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("POST is never retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		s := newTestSession(t, srv.URL, nil)
		_, err := s.Post(context.Background(), "/news/1/likes", map[string]any{"newsId": "1"})
		assert.Equal(t, KindServer, Kind(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestDecodeLikeSummary(t *testing.T) {
	t.Run("nested result.data shape", func(t *testing.T) {
		body := []byte(`{"status":1,"result":{"success":true,"data":{"totalLikes":12,"isLikedByUser":true}}}`)
		sum, ok := DecodeLikeSummary(body)
		require.True(t, ok)
		assert.Equal(t, 12, sum.TotalLikes)
		assert.True(t, sum.IsLikedByUser)
	})

	t.Run("flat result shape", func(t *testing.T) {
		body := []byte(`{"status":1,"result":{"totalLikes":7,"isLikedByUser":false}}`)
		sum, ok := DecodeLikeSummary(body)
		require.True(t, ok)
		assert.Equal(t, 7, sum.TotalLikes)
		assert.False(t, sum.IsLikedByUser)
	})

	t.Run("nested shape wins over flat fields", func(t *testing.T) {
		body := []byte(`{"status":1,"result":{"totalLikes":1,"isLikedByUser":false,"data":{"totalLikes":2,"isLikedByUser":true}}}`)
		sum, ok := DecodeLikeSummary(body)
		require.True(t, ok)
		assert.Equal(t, 2, sum.TotalLikes)
	})

	t.Run("malformed payload reports not ok", func(t *testing.T) {
		for _, body := range []string{
			`{"status":0,"result":{"totalLikes":3,"isLikedByUser":true}}`,
			`{"status":1,"result":{"success":true}}`,
			`{"status":1}`,
			`not json`,
		} {
			_, ok := DecodeLikeSummary([]byte(body))
			assert.False(t, ok, "body: %s", body)
		}
	})
}

func TestDecodeList(t *testing.T) {
	type lang struct {
		ID string `json:"id"`
	}

	t.Run("bare array", func(t *testing.T) {
		items, err := DecodeList[lang]([]byte(`{"status":1,"result":[{"id":"a"},{"id":"b"}]}`))
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("items wrapper", func(t *testing.T) {
		items, err := DecodeList[lang]([]byte(`{"status":1,"result":{"items":[{"id":"a"}]}}`))
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("failure status yields nil", func(t *testing.T) {
		items, err := DecodeList[lang]([]byte(`{"status":0,"message":"nope","result":[]}`))
		require.NoError(t, err)
		assert.Nil(t, items)
	})
}
