// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locale

import (
	"context"
	"errors"
	"fmt"
)

// Step is a wizard position.
type Step int

const (
	// StepLanguage picks the language tier.
	StepLanguage Step = iota + 1

	// StepState picks the state tier.
	StepState

	// StepDistrict picks the district tier.
	StepDistrict
)

// String returns a human-readable step name.
func (s Step) String() string {
	switch s {
	case StepLanguage:
		return "language"
	case StepState:
		return "state"
	case StepDistrict:
		return "district"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Wizard errors.
var (
	// ErrStepOrder is returned when a select call does not match the
	// wizard's current step.
	ErrStepOrder = errors.New("locale: selection does not match current wizard step")

	// ErrIncomplete is returned by Finish while the district is unset.
	ErrIncomplete = errors.New("locale: district must be selected before finishing")
)

// Wizard is the linear 3-step selection flow.
//
// # State Machine
//
//	PickLanguage ──selectLanguage──► PickState ──selectState──► PickDistrict ──finish──► closed
//	      ▲                              │  ▲                        │
//	      └──────────── back ────────────┘  └───────── back ─────────┘
//
// Selecting at any tier applies the Store's downstream-clear rule; going
// back does not clear anything. Option fetch failures are surfaced to the
// caller as retryable errors and never transition the machine.
//
// # Thread Safety
//
// Wizard is a per-dialog object driven from a single goroutine (the UI
// loop); it is not safe for concurrent use.
type Wizard struct {
	store *Store
	step  Step

	// Options delivered for the current flow. States/districts are
	// replaced whenever the tier above them changes.
	languages []LanguageRef
	states    []StateRef
	districts []DistrictRef
}

// NewWizard creates a wizard over the selection store, entering at the
// first unset tier (or the language step when everything is set, so the
// user can revisit the whole flow).
func NewWizard(store *Store) *Wizard {
	w := &Wizard{store: store}
	w.Reopen()
	return w
}

// Reopen re-enters the wizard, recomputing the entry step from the current
// selection.
func (w *Wizard) Reopen() {
	sel := w.store.Current()
	switch {
	case sel.Language == nil:
		w.step = StepLanguage
	case sel.State == nil:
		w.step = StepState
	case sel.District == nil:
		w.step = StepDistrict
	default:
		w.step = StepLanguage
	}
}

// Step returns the current position.
func (w *Wizard) Step() Step { return w.step }

// Selection returns the live selection snapshot.
func (w *Wizard) Selection() Selection { return w.store.Current() }

// CanFinish reports whether the finish action is enabled.
func (w *Wizard) CanFinish() bool { return w.store.Current().District != nil }

// LoadOptions fetches the option list for the current step.
//
// A fetch failure is returned for inline display and retry; the wizard
// stays on its step.
func (w *Wizard) LoadOptions(ctx context.Context) error {
	sel := w.store.Current()
	switch w.step {
	case StepLanguage:
		langs, err := w.store.options.Languages(ctx)
		if err != nil {
			return err
		}
		w.languages = langs
	case StepState:
		if sel.Language == nil {
			return ErrStepOrder
		}
		states, err := w.store.options.States(ctx, sel.Language.ID)
		if err != nil {
			return err
		}
		w.states = states
	case StepDistrict:
		if sel.State == nil {
			return ErrStepOrder
		}
		districts, err := w.store.options.Districts(ctx, sel.State.ID)
		if err != nil {
			return err
		}
		w.districts = districts
	}
	return nil
}

// Languages returns the loaded language options.
func (w *Wizard) Languages() []LanguageRef { return w.languages }

// States returns the loaded state options.
func (w *Wizard) States() []StateRef { return w.states }

// Districts returns the loaded district options.
func (w *Wizard) Districts() []DistrictRef { return w.districts }

// SelectLanguage applies a language pick and advances to the state step.
// The states delivered by the store's prefetch become the next step's
// options; a prefetch failure keeps the pick but reports the error so the
// next step can offer a retry.
func (w *Wizard) SelectLanguage(ctx context.Context, ref LanguageRef) error {
	if w.step != StepLanguage {
		return ErrStepOrder
	}
	states, err := w.store.SelectLanguage(ctx, ref)
	w.states = states
	w.districts = nil
	w.step = StepState
	return err
}

// SelectState applies a state pick and advances to the district step.
func (w *Wizard) SelectState(ctx context.Context, ref StateRef) error {
	if w.step != StepState {
		return ErrStepOrder
	}
	districts, err := w.store.SelectState(ctx, ref)
	w.districts = districts
	w.step = StepDistrict
	return err
}

// SelectDistrict applies a district pick. The wizard stays on the district
// step so the user can change their mind before finishing.
func (w *Wizard) SelectDistrict(ref DistrictRef) error {
	if w.step != StepDistrict {
		return ErrStepOrder
	}
	w.store.SelectDistrict(ref)
	return nil
}

// Back moves to the previous step without clearing anything. Re-selecting
// at that step still triggers the downstream-clear rule.
func (w *Wizard) Back() {
	switch w.step {
	case StepState:
		w.step = StepLanguage
	case StepDistrict:
		w.step = StepState
	}
}

// Finish closes the wizard. Only legal once a district is set; the step
// cursor resets to the language tier for the next opening.
func (w *Wizard) Finish() error {
	if !w.CanFinish() {
		return ErrIncomplete
	}
	w.step = StepLanguage
	return nil
}
