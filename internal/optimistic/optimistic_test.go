// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SuccessPath(t *testing.T) {
	var order []string

	err := Run(context.Background(), Mutation[int]{
		Apply: func() { order = append(order, "apply") },
		Call: func(ctx context.Context) (int, error) {
			order = append(order, "call")
			return 42, nil
		},
		Reconcile: func(n int) {
			order = append(order, "reconcile")
			assert.Equal(t, 42, n, "reconcile receives the call's payload")
		},
		Rollback: func(error) { order = append(order, "rollback") },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"apply", "call", "reconcile"}, order)
}

func TestRun_FailurePath(t *testing.T) {
	callErr := errors.New("upstream said no")
	var order []string
	var rolledBackWith error

	err := Run(context.Background(), Mutation[int]{
		Apply: func() { order = append(order, "apply") },
		Call: func(ctx context.Context) (int, error) {
			order = append(order, "call")
			return 0, callErr
		},
		Reconcile: func(int) { order = append(order, "reconcile") },
		Rollback: func(err error) {
			order = append(order, "rollback")
			rolledBackWith = err
		},
	})

	assert.ErrorIs(t, err, callErr, "the call error passes through unchanged")
	assert.Equal(t, []string{"apply", "call", "rollback"}, order)
	assert.ErrorIs(t, rolledBackWith, callErr, "rollback sees the error for auth demotion")
}

func TestRun_OptionalHooks(t *testing.T) {
	err := Run(context.Background(), Mutation[struct{}]{
		Call: func(ctx context.Context) (struct{}, error) { return struct{}{}, nil },
	})
	require.NoError(t, err)

	err = Run(context.Background(), Mutation[struct{}]{
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, errors.New("boom")
		},
	})
	require.Error(t, err)
}
