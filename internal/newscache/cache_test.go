// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package newscache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kurukshetram/internal/catalog"
	"github.com/AleutianAI/kurukshetram/internal/events"
)

type fakeSource struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeSource) NewsByCategories(ctx context.Context, q catalog.NewsQuery) ([]catalog.NewsItem, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return []catalog.NewsItem{{ID: "n-" + q.CategoryIDs[0], Title: "story"}}, nil
}

func testKey(category string) Key {
	return Key{CategoryID: category, LanguageID: "l1", StateID: "s1", DistrictID: "d1"}
}

func TestCache_ReadThrough(t *testing.T) {
	src := &fakeSource{}
	bus := events.NewBus()
	c := NewCache(src, bus, nil)
	defer c.Close()
	ctx := context.Background()

	items, err := c.Get(ctx, testKey("c1"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n-c1", items[0].ID)

	_, err = c.Get(ctx, testKey("c1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.calls.Load(), "second read served from cache")

	_, err = c.Get(ctx, testKey("c2"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load(), "distinct category is a distinct entry")
}

func TestCache_KeyIncludesEveryTier(t *testing.T) {
	src := &fakeSource{}
	bus := events.NewBus()
	c := NewCache(src, bus, nil)
	defer c.Close()
	ctx := context.Background()

	base := testKey("c1")
	_, err := c.Get(ctx, base)
	require.NoError(t, err)

	other := base
	other.DistrictID = "d2"
	_, err = c.Get(ctx, other)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load(), "district change misses the cache")
}

func TestCache_FailureCachesEmpty(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(true)
	bus := events.NewBus()
	c := NewCache(src, bus, nil)
	defer c.Close()
	ctx := context.Background()

	items, err := c.Get(ctx, testKey("c1"))
	require.Error(t, err)
	assert.Empty(t, items)

	// The empty entry serves without touching the upstream again.
	src.fail.Store(false)
	items, err = c.Get(ctx, testKey("c1"))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.EqualValues(t, 1, src.calls.Load())

	// Invalidation heals it.
	c.InvalidateAll()
	items, err = c.Get(ctx, testKey("c1"))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCache_SelectionChangeInvalidates(t *testing.T) {
	src := &fakeSource{}
	bus := events.NewBus()
	c := NewCache(src, bus, nil)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, testKey("c1"))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	bus.Publish(events.TopicSelectionChanged, nil)
	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 5*time.Millisecond, "selection change should wipe the cache")
}
