// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session is the single chokepoint for calls to the upstream CMS API.
//
// It applies the cross-cutting concerns every caller needs — bearer token
// injection, client-type tagging, JSON content negotiation, a fixed per-call
// deadline — and converts every failure into the classified *Error taxonomy
// so no raw transport error ever reaches feature code.
//
// # Architecture
//
//	Caller ──► Session.Get/Post/Put/Delete
//	              │
//	              ├─► inject headers (Authorization, X-Client-Type, X-User-Agent, X-Request-ID)
//	              ├─► enforce deadline (10s default)
//	              ├─► classify failure → *Error{Kind, Message, HTTPStatus}
//	              └─► retry idempotent GETs on NETWORK/SERVER (3 attempts, exponential backoff)
//
// Mutating verbs are never retried automatically.
//
// # Thread Safety
//
// Session is safe for concurrent use.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout is the per-call deadline applied to every request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAttempts bounds automatic retries for idempotent reads.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 1 * time.Second
)

// mobileSignatures matches the fixed set of user-agent substrings that mark
// a caller as a mobile client.
var mobileSignatures = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// TokenSource supplies the bearer credential, when one is present.
type TokenSource interface {
	// Token returns the current bearer token. ok is false when the viewer
	// is not authenticated.
	Token() (token string, ok bool)
}

// Config configures a Session.
type Config struct {
	// BaseURL is the relay prefix, e.g. "http://localhost:8480/api".
	// Required.
	BaseURL string

	// UserAgent is echoed verbatim in X-User-Agent and used for the
	// mobile/desktop client-type heuristic. Optional.
	UserAgent string

	// Tokens supplies the bearer credential. Optional; anonymous when nil.
	Tokens TokenSource

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int

	// BackoffBase overrides DefaultBackoffBase when positive.
	BackoffBase time.Duration

	// Logger receives one record per request outcome. Optional.
	Logger *slog.Logger

	// HTTPClient overrides the transport; used by tests. Optional.
	HTTPClient *http.Client
}

// Session issues requests to the upstream API.
type Session struct {
	baseURL     string
	userAgent   string
	isMobile    bool
	tokens      TokenSource
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
	client      *http.Client
	tracer      trace.Tracer

	// sleep is swapped by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Session.
//
// # Inputs
//
//   - cfg: see Config. BaseURL is required; everything else has defaults.
//
// # Outputs
//
//   - *Session: ready for concurrent use.
//   - error: non-nil when BaseURL is missing or unparseable.
func New(cfg Config) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("session: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("session: invalid BaseURL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = DefaultBackoffBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Session{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		isMobile:    mobileSignatures.MatchString(cfg.UserAgent),
		tokens:      cfg.Tokens,
		timeout:     timeout,
		maxAttempts: attempts,
		backoffBase: backoff,
		logger:      logger,
		client:      client,
		tracer:      otel.Tracer("kurukshetram/session"),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}, nil
}

// IsMobileClient reports the client-type tag this session attaches.
func (s *Session) IsMobileClient() bool { return s.isMobile }

// Get issues an idempotent read. NETWORK and SERVER failures are retried
// with exponential backoff up to the configured attempt bound.
func (s *Session) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.backoffBase << (attempt - 1)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, s.classify(http.MethodGet, path, nil, err)
			}
			s.logger.Warn("retrying request",
				slog.String("path", path),
				slog.Int("attempt", attempt+1))
		}
		body, lastErr = s.do(ctx, http.MethodGet, path, params, nil)
		if lastErr == nil {
			return body, nil
		}
		se, ok := AsError(lastErr)
		if !ok || !se.Retryable() {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Post issues a mutation. Never retried automatically.
func (s *Session) Post(ctx context.Context, path string, payload any) ([]byte, error) {
	return s.do(ctx, http.MethodPost, path, nil, payload)
}

// Put issues a mutation. Never retried automatically.
func (s *Session) Put(ctx context.Context, path string, payload any) ([]byte, error) {
	return s.do(ctx, http.MethodPut, path, nil, payload)
}

// Delete issues a mutation. Never retried automatically.
func (s *Session) Delete(ctx context.Context, path string) ([]byte, error) {
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one attempt: build, send, classify.
func (s *Session) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "session.do",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	target := s.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{
				Kind:    KindUnknown,
				Message: "Something went wrong. Please try again later.",
				Context: ErrorContext{URL: path, IsMobileClient: s.isMobile},
				cause:   err,
			}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, s.classify(method, path, nil, err)
	}
	s.decorate(req)

	resp, err := s.client.Do(req)
	if err != nil {
		classified := s.classify(method, path, nil, err)
		s.observe(method, path, 0, classified)
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := s.classify(method, path, nil, err)
		s.observe(method, path, resp.StatusCode, classified)
		return nil, classified
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := s.classifyStatus(path, resp.StatusCode, body)
		s.observe(method, path, resp.StatusCode, classified)
		return nil, classified
	}

	s.observe(method, path, resp.StatusCode, nil)
	return body, nil
}

// decorate applies the cross-cutting headers to an outgoing request.
func (s *Session) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.tokens != nil {
		if tok, ok := s.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if s.isMobile {
		req.Header.Set("X-Client-Type", "mobile")
	} else {
		req.Header.Set("X-Client-Type", "desktop")
	}
	if s.userAgent != "" {
		req.Header.Set("X-User-Agent", s.userAgent)
		req.Header.Set("User-Agent", s.userAgent)
	}
}

// classify converts a transport-level failure into a *Error.
//
// Precedence: deadline → TIMEOUT, cross-origin block → CORS, everything
// else that produced no response → NETWORK.
func (s *Session) classify(method, path string, body []byte, err error) *Error {
	ctxInfo := ErrorContext{URL: path, IsMobileClient: s.isMobile}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &Error{
			Kind:    KindTimeout,
			Message: "Request timeout. Please try again.",
			Context: ctxInfo,
			cause:   err,
		}
	case isCrossOriginBlock(err):
		return &Error{
			Kind:    KindCORS,
			Message: "Connection error. Please refresh the page and try again.",
			Context: ctxInfo,
			cause:   err,
		}
	default:
		return &Error{
			Kind:    KindNetwork,
			Message: "Network error. Please check your internet connection.",
			Context: ctxInfo,
			Body:    body,
			cause:   err,
		}
	}
}

// classifyStatus converts a non-2xx response into a *Error.
func (s *Session) classifyStatus(path string, status int, body []byte) *Error {
	ctxInfo := ErrorContext{URL: path, IsMobileClient: s.isMobile}
	e := &Error{HTTPStatus: status, Body: body, Context: ctxInfo}
	switch {
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = notFoundMessage(path, s.isMobile)
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
		e.Message = "Access denied. Please check your permissions."
	case status >= 500:
		e.Kind = KindServer
		e.Message = "Server error. Please try again later."
	default:
		e.Kind = KindUnknown
		if msg := serverMessage(body); msg != "" {
			e.Message = msg
		} else {
			e.Message = "Something went wrong. Please try again later."
		}
	}
	return e
}

// observe reports a request outcome to the diagnostic sink. Not part of the
// functional contract.
func (s *Session) observe(method, path string, status int, err *Error) {
	if err == nil {
		s.logger.Debug("upstream request ok",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status))
		return
	}
	s.logger.Warn("upstream request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("kind", string(err.Kind)),
		slog.String("error", err.Message))
}

// serverMessage pulls the "message" field out of a structured error body.
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return envelope.Message
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// isCrossOriginBlock spots the browser-style cross-origin rejection some
// intermediaries emit as a plain error string.
func isCrossOriginBlock(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "CORS") || strings.Contains(msg, "Access-Control-Allow-Origin")
}
