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
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed upstream call into a fixed taxonomy.
//
// Every failure leaving this package carries exactly one kind. Downstream
// components translate a kind into a user-facing message; they never inspect
// transport details themselves.
type ErrorKind string

const (
	// KindNetwork means the request never received a response
	// (connection refused, DNS failure, broken pipe).
	KindNetwork ErrorKind = "NETWORK"

	// KindTimeout means the client-side deadline elapsed before a response.
	KindTimeout ErrorKind = "TIMEOUT"

	// KindNotFound is an HTTP 404 from the upstream.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindForbidden is an HTTP 403 from the upstream.
	KindForbidden ErrorKind = "FORBIDDEN"

	// KindServer is any HTTP 5xx from the upstream.
	KindServer ErrorKind = "SERVER"

	// KindCORS is a transport-level cross-origin block. This should not
	// happen when the relay is in place; it is kept in the taxonomy so a
	// misconfigured deployment produces a recognizable failure.
	KindCORS ErrorKind = "CORS"

	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "UNKNOWN"
)

// ErrorContext carries request metadata useful when rendering a failure.
type ErrorContext struct {
	URL            string
	IsMobileClient bool
}

// Error is the uniform error shape produced by Session.
//
// # Description
//
// Session never lets a raw transport error cross its boundary. Every failure
// is wrapped into an *Error with a classified Kind, a human-readable message,
// the HTTP status (0 when no response arrived) and, where available, the
// server's structured error body.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Body       []byte
	Context    ErrorContext

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying transport error for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether an idempotent request that failed this way may
// be retried automatically.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// AsError extracts a *Error from an error chain. The second return is false
// when err does not originate from this package.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Kind returns the classification of err, or KindUnknown for foreign errors.
func Kind(err error) ErrorKind {
	if se, ok := AsError(err); ok {
		return se.Kind
	}
	return KindUnknown
}

// authFlowPaths are the upstream auth endpoints that get a more specific
// fallback message when a mobile client sees a 404. The upstream serves
// these intermittently behind an aggressive CDN and mobile carriers are the
// usual victims.
var authFlowPaths = []string{"forgot-password", "verify-code", "reset-password"}

// notFoundMessage picks the human message for a 404 response.
//
// Desktop clients get a generic "temporarily unavailable". Mobile clients
// get a connectivity-oriented message, specialized further when the failed
// path belongs to the OTP/password flow.
func notFoundMessage(path string, isMobile bool) string {
	if !isMobile {
		return "Service temporarily unavailable. Please try again later."
	}
	for _, p := range authFlowPaths {
		if strings.Contains(path, p) {
			switch p {
			case "forgot-password":
				return "Unable to send OTP. Please check your internet connection and try again."
			case "verify-code":
				return "Unable to verify OTP. Please check your internet connection and try again."
			case "reset-password":
				return "Unable to reset password. Please check your internet connection and try again."
			}
		}
	}
	return "Connection issue detected. Please check your internet and try again."
}
