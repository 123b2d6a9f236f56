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
	"encoding/json"
)

// Envelope is the canonical wrapper the upstream puts around every payload.
//
//	{ "status": 1, "message": "...", "result": <T> }
type Envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool { return e.Status == 1 }

// DecodeEnvelope parses the outer {status, message, result} wrapper.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// LikeSummary is the authoritative like state echoed by the upstream.
type LikeSummary struct {
	TotalLikes    int  `json:"totalLikes"`
	IsLikedByUser bool `json:"isLikedByUser"`
}

// likeResult covers both observed like payload shapes:
//
//	{ status: 1, result: { success: true, data: { totalLikes, isLikedByUser } } }
//	{ status: 1, result: { totalLikes, isLikedByUser } }
//
// The upstream emits one or the other with no documented rule; callers must
// never branch on the shape, so the adapter resolves it here with a fixed
// precedence: result.data first, then result itself.
type likeResult struct {
	Success bool `json:"success"`
	Data    *struct {
		TotalLikes    *int  `json:"totalLikes"`
		IsLikedByUser *bool `json:"isLikedByUser"`
	} `json:"data"`
	TotalLikes    *int  `json:"totalLikes"`
	IsLikedByUser *bool `json:"isLikedByUser"`
}

// DecodeLikeSummary extracts the authoritative {totalLikes, isLikedByUser}
// pair from a like endpoint response.
//
// # Outputs
//
//   - LikeSummary: the extracted pair, zero-valued when absent.
//   - bool: false when the response carries no recognizable pair; callers
//     keep their optimistic values in that case.
func DecodeLikeSummary(body []byte) (LikeSummary, bool) {
	env, err := DecodeEnvelope(body)
	if err != nil || !env.OK() || len(env.Result) == 0 {
		return LikeSummary{}, false
	}
	var res likeResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return LikeSummary{}, false
	}
	if res.Data != nil && res.Data.TotalLikes != nil && res.Data.IsLikedByUser != nil {
		return LikeSummary{TotalLikes: *res.Data.TotalLikes, IsLikedByUser: *res.Data.IsLikedByUser}, true
	}
	if res.TotalLikes != nil && res.IsLikedByUser != nil {
		return LikeSummary{TotalLikes: *res.TotalLikes, IsLikedByUser: *res.IsLikedByUser}, true
	}
	return LikeSummary{}, false
}

// DecodeList extracts a list payload, tolerating both observed layouts:
//
//	result: [ ... ]
//	result: { "items": [ ... ] }
func DecodeList[T any](body []byte) ([]T, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if len(env.Result) == 0 || !env.OK() {
		return nil, nil
	}
	var direct []T
	if err := json.Unmarshal(env.Result, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(env.Result, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Items, nil
}

// DecodeResult unmarshals the inner result into out.
func DecodeResult(body []byte, out any) error {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return err
	}
	if len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}
