// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package newscache memoizes per-category news lists under the active
// selection.
//
// Entries key on the full (category, language, state, district) tuple, so a
// stale mix of tiers can never serve. Any selection change wipes the whole
// cache; category lists are cheap to re-fetch and partial invalidation is
// not worth the bookkeeping.
package newscache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/kurukshetram/internal/catalog"
	"github.com/AleutianAI/kurukshetram/internal/events"
)

// DefaultLimit is the per-category item cap requested from the upstream.
const DefaultLimit = 20

// Key identifies one cache entry. All four tiers participate.
type Key struct {
	CategoryID string
	LanguageID string
	StateID    string
	DistrictID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.CategoryID, k.LanguageID, k.StateID, k.DistrictID)
}

// Source fetches news for a key; satisfied by *catalog.Client.
type Source interface {
	NewsByCategories(ctx context.Context, q catalog.NewsQuery) ([]catalog.NewsItem, error)
}

// Cache is the read-through news cache.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent misses on the same key coalesce into
// one upstream fetch.
type Cache struct {
	source Source
	logger *slog.Logger
	limit  int
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[Key][]catalog.NewsItem

	unsubscribe func()
	done        chan struct{}
}

// NewCache creates the cache and subscribes it to selection changes; every
// selection mutation invalidates everything. Call Close to detach.
func NewCache(source Source, bus *events.Bus, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		source:  source,
		logger:  logger,
		limit:   DefaultLimit,
		entries: make(map[Key][]catalog.NewsItem),
		done:    make(chan struct{}),
	}
	ch, cancel := bus.Subscribe(events.TopicSelectionChanged)
	c.unsubscribe = cancel
	go func() {
		for {
			select {
			case <-c.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				c.InvalidateAll()
			}
		}
	}()
	return c
}

// Get returns the news list for a key, fetching on miss.
//
// # Description
//
// A failed fetch caches an empty list and returns the error: the category
// renders empty instead of erroring on every scroll, and the entry heals
// on the next selection change (or explicit invalidation).
func (c *Cache) Get(ctx context.Context, key Key) ([]catalog.NewsItem, error) {
	c.mu.RLock()
	items, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return items, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		items, fetchErr := c.source.NewsByCategories(ctx, catalog.NewsQuery{
			CategoryIDs: []string{key.CategoryID},
			LanguageID:  key.LanguageID,
			StateID:     key.StateID,
			DistrictID:  key.DistrictID,
			Limit:       c.limit,
		})
		if fetchErr != nil {
			c.logger.Warn("news fetch failed, caching empty list",
				slog.String("category_id", key.CategoryID),
				slog.String("error", fetchErr.Error()))
			items = []catalog.NewsItem{}
		}
		c.mu.Lock()
		c.entries[key] = items
		c.mu.Unlock()
		return items, fetchErr
	})
	items, _ = v.([]catalog.NewsItem)
	return items, err
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[Key][]catalog.NewsItem)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close detaches the cache from the event bus.
func (c *Cache) Close() {
	close(c.done)
	c.unsubscribe()
}
