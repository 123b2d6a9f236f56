// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locale owns the active news scope: the cascading
// language → state → district selection.
//
// The Store is the single source of truth and the only writer of the
// selection storage keys. Every mutation clears downstream tiers first,
// persists, and broadcasts on the events bus before any dependent option
// fetch begins, so observers never see a downstream value paired with a
// mismatched upstream value.
package locale

import "context"

// LanguageRef identifies a portal language.
type LanguageRef struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

// StateRef identifies a state within the active language.
type StateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DistrictRef identifies a district within the active state.
type DistrictRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	StateID string `json:"stateId"`
}

// Selection is the active (language, state, district) triple.
//
// Invariant: District != nil ⇒ State != nil ⇒ Language != nil. The Store
// enforces this by clearing downstream tiers on every upstream change.
type Selection struct {
	Language *LanguageRef
	State    *StateRef
	District *DistrictRef
}

// Complete reports whether all three tiers are set.
func (s Selection) Complete() bool {
	return s.Language != nil && s.State != nil && s.District != nil
}

// Valid checks the tier dependency invariant.
func (s Selection) Valid() bool {
	if s.District != nil && s.State == nil {
		return false
	}
	if s.State != nil && s.Language == nil {
		return false
	}
	return true
}

// OptionProvider fetches the valid options for each tier. Implemented by
// the catalog client; tests substitute fakes.
type OptionProvider interface {
	Languages(ctx context.Context) ([]LanguageRef, error)
	States(ctx context.Context, languageID string) ([]StateRef, error)
	Districts(ctx context.Context, stateID string) ([]DistrictRef, error)
}

// Defaults names the fallback option per tier, matched case-insensitively
// against the display name. An empty name falls through to the first
// available option.
type Defaults struct {
	Language string
	State    string
	District string
}

// DefaultDefaults returns the shipped fallback configuration.
func DefaultDefaults() Defaults {
	return Defaults{Language: "English"}
}
