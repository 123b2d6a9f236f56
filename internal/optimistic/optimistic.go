// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimistic implements the shared mutate-locally-then-reconcile
// round trip: apply a local transform that renders immediately, issue the
// network call, install the authoritative payload on success, and restore
// the pre-transform state on failure.
//
// Every optimistic mutation in the client runs through Run so the ordering
// contract lives in exactly one place.
package optimistic

import "context"

// Mutation describes one optimistic round trip.
//
// Apply must capture (via closure) whatever state Rollback needs to restore
// the exact pre-Apply values; Run does not snapshot anything itself.
type Mutation[R any] struct {
	// Apply performs the local transform. Runs before the network call.
	Apply func()

	// Call issues the mutation and returns the authoritative payload.
	// Required.
	Call func(ctx context.Context) (R, error)

	// Reconcile installs the authoritative payload over the local guess.
	// Runs only on a successful call.
	Reconcile func(R)

	// Rollback restores the pre-Apply state. Runs only on a failed call
	// and receives the call's error so auth demotion can key off it.
	Rollback func(error)
}

// Run executes the round trip: Apply, Call, then Reconcile on success or
// Rollback on failure. The call's error is returned unchanged so callers
// keep the classified taxonomy.
func Run[R any](ctx context.Context, m Mutation[R]) error {
	if m.Apply != nil {
		m.Apply()
	}
	res, err := m.Call(ctx)
	if err != nil {
		if m.Rollback != nil {
			m.Rollback(err)
		}
		return err
	}
	if m.Reconcile != nil {
		m.Reconcile(res)
	}
	return nil
}
