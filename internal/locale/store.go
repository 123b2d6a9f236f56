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
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/kurukshetram/internal/events"
	"github.com/AleutianAI/kurukshetram/internal/storage"
)

// Store owns the Selection.
//
// # Description
//
// Store hydrates the persisted selection against freshly fetched option
// lists, applies the downstream-clear rule on every tier mutation, persists
// each mutation and broadcasts events.TopicSelectionChanged.
//
// # Concurrency
//
// Mutations are synchronous with respect to the caller: the state clear,
// persist and broadcast complete before the dependent option fetch starts.
// Safe for concurrent use.
//
// # Mirroring
//
// The store watches its storage for selection-key writes made through
// other Store instances over the same storage and mirrors them into its
// own state and bus, so every consumer sees a change no matter which
// instance applied it. Its own writes are filtered out to keep the
// one-broadcast-per-mutation contract.
type Store struct {
	mu        sync.RWMutex
	selection Selection

	store    storage.Store
	bus      *events.Bus
	options  OptionProvider
	defaults Defaults
	logger   *slog.Logger

	// ownWrites is non-zero while this instance is mutating storage, so
	// the watch callback can tell its own writes from foreign ones.
	ownWrites atomic.Int64
	unwatch   func()
}

// NewStore wires the selection store. All collaborators are required
// except logger.
func NewStore(st storage.Store, bus *events.Bus, options OptionProvider, defaults Defaults, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		store:    st,
		bus:      bus,
		options:  options,
		defaults: defaults,
		logger:   logger,
	}
	s.unwatch = st.Watch(s.onStoreChange)
	return s
}

// Close detaches the storage watch. The store itself holds no other
// resources.
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
}

// Current returns a snapshot of the active selection.
func (s *Store) Current() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Hydrate resolves the persisted selection against freshly fetched option
// lists, tier by tier.
//
// # Description
//
// For each tier in order (language, state, district):
//
//  1. Fetch the valid options. A fetch failure leaves this tier and every
//     downstream tier unset; stored values are kept so the next Hydrate
//     can recover.
//  2. Resolve the stored reference by id against the fetched list. A
//     stored id that no longer exists is discarded.
//  3. Fall back to the configured default (display name, case-insensitive),
//     else the first available option.
//
// The state tier is only attempted once language resolved; district only
// once state resolved. Resolved values are re-persisted and a change event
// is broadcast.
func (s *Store) Hydrate(ctx context.Context) Selection {
	var sel Selection

	langs, err := s.options.Languages(ctx)
	if err != nil || len(langs) == 0 {
		s.logger.Warn("language options unavailable, selection left unset",
			slog.Any("error", err))
		s.apply(sel)
		return sel
	}
	sel.Language = s.resolveLanguage(langs)
	s.persist(storage.KeySelectedLanguage, sel.Language)

	states, err := s.options.States(ctx, sel.Language.ID)
	if err != nil || len(states) == 0 {
		s.logger.Warn("state options unavailable, downstream tiers left unset",
			slog.Any("error", err))
		s.apply(sel)
		return sel
	}
	sel.State = s.resolveState(states)
	s.persist(storage.KeySelectedState, sel.State)

	districts, err := s.options.Districts(ctx, sel.State.ID)
	if err != nil || len(districts) == 0 {
		s.logger.Warn("district options unavailable, tier left unset",
			slog.Any("error", err))
		s.apply(sel)
		return sel
	}
	sel.District = s.resolveDistrict(districts)
	s.persist(storage.KeySelectedDistrict, sel.District)

	s.apply(sel)
	return sel
}

// SelectLanguage activates a language, clearing state and district.
//
// The downstream clear, persist and broadcast are synchronous; the states
// prefetch for the next tier runs after them and its result is returned so
// callers (the wizard) can present it. A prefetch failure does not undo
// the selection.
func (s *Store) SelectLanguage(ctx context.Context, ref LanguageRef) ([]StateRef, error) {
	s.mu.Lock()
	s.selection = Selection{Language: &ref}
	s.mu.Unlock()

	s.persist(storage.KeySelectedLanguage, &ref)
	s.discard(storage.KeySelectedState)
	s.discard(storage.KeySelectedDistrict)
	s.broadcast()

	return s.options.States(ctx, ref.ID)
}

// SelectState activates a state, clearing the district. See SelectLanguage
// for the ordering contract; the returned list is the district prefetch.
func (s *Store) SelectState(ctx context.Context, ref StateRef) ([]DistrictRef, error) {
	s.mu.Lock()
	s.selection.State = &ref
	s.selection.District = nil
	s.mu.Unlock()

	s.persist(storage.KeySelectedState, &ref)
	s.discard(storage.KeySelectedDistrict)
	s.broadcast()

	return s.options.Districts(ctx, ref.ID)
}

// SelectDistrict activates a district. Nothing is downstream of it.
func (s *Store) SelectDistrict(ref DistrictRef) {
	s.mu.Lock()
	s.selection.District = &ref
	s.mu.Unlock()

	s.persist(storage.KeySelectedDistrict, &ref)
	s.broadcast()
}

// ResetToDefault clears the persisted selection and re-runs Hydrate.
func (s *Store) ResetToDefault(ctx context.Context) Selection {
	s.discard(storage.KeySelectedLanguage)
	s.discard(storage.KeySelectedState)
	s.discard(storage.KeySelectedDistrict)

	s.mu.Lock()
	s.selection = Selection{}
	s.mu.Unlock()
	s.broadcast()

	return s.Hydrate(ctx)
}

// Subscribe returns a channel of selection-change notifications.
func (s *Store) Subscribe() (<-chan events.Event, func()) {
	return s.bus.Subscribe(events.TopicSelectionChanged)
}

// apply installs a hydrated selection and broadcasts once.
func (s *Store) apply(sel Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	s.broadcast()
}

func (s *Store) broadcast() {
	s.bus.Publish(events.TopicSelectionChanged, s.Current())
}

// onStoreChange mirrors a selection-key write made through another Store
// instance sharing this storage. The mirrored refs are taken as persisted;
// validation against live options happened in the writing instance.
func (s *Store) onStoreChange(key string) {
	switch key {
	case storage.KeySelectedLanguage, storage.KeySelectedState, storage.KeySelectedDistrict:
	default:
		return
	}
	if s.ownWrites.Load() > 0 {
		return
	}
	var sel Selection
	if ref, ok := load[LanguageRef](s, storage.KeySelectedLanguage); ok {
		sel.Language = &ref
	}
	if ref, ok := load[StateRef](s, storage.KeySelectedState); ok && sel.Language != nil {
		sel.State = &ref
	}
	if ref, ok := load[DistrictRef](s, storage.KeySelectedDistrict); ok && sel.State != nil {
		sel.District = &ref
	}
	s.apply(sel)
}

// resolveLanguage picks the stored language if still offered, else the
// default, else the first option.
func (s *Store) resolveLanguage(options []LanguageRef) *LanguageRef {
	if stored, ok := load[LanguageRef](s, storage.KeySelectedLanguage); ok {
		for i := range options {
			if options[i].ID == stored.ID {
				return &options[i]
			}
		}
		// Stored id vanished from the upstream list; fall through.
	}
	for i := range options {
		if strings.EqualFold(options[i].DisplayName, s.defaults.Language) {
			return &options[i]
		}
	}
	return &options[0]
}

func (s *Store) resolveState(options []StateRef) *StateRef {
	if stored, ok := load[StateRef](s, storage.KeySelectedState); ok {
		for i := range options {
			if options[i].ID == stored.ID {
				return &options[i]
			}
		}
	}
	for i := range options {
		if strings.EqualFold(options[i].Name, s.defaults.State) {
			return &options[i]
		}
	}
	return &options[0]
}

func (s *Store) resolveDistrict(options []DistrictRef) *DistrictRef {
	if stored, ok := load[DistrictRef](s, storage.KeySelectedDistrict); ok {
		for i := range options {
			if options[i].ID == stored.ID {
				return &options[i]
			}
		}
	}
	for i := range options {
		if strings.EqualFold(options[i].Name, s.defaults.District) {
			return &options[i]
		}
	}
	return &options[0]
}

// load reads and decodes a persisted ref. Corrupt values are discarded, as
// a bad entry must not wedge hydration forever.
func load[T any](s *Store, key string) (T, bool) {
	var out T
	raw, ok, err := s.store.Get(key)
	if err != nil || !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("discarding corrupt stored selection",
			slog.String("key", key),
			slog.String("error", err.Error()))
		_ = s.store.Delete(key)
		return out, false
	}
	return out, true
}

func (s *Store) persist(key string, ref any) {
	raw, err := json.Marshal(ref)
	if err != nil {
		s.logger.Error("failed to encode selection", slog.String("key", key))
		return
	}
	s.ownWrites.Add(1)
	defer s.ownWrites.Add(-1)
	if err := s.store.Set(key, raw); err != nil {
		s.logger.Error("failed to persist selection",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

func (s *Store) discard(key string) {
	s.ownWrites.Add(1)
	defer s.ownWrites.Add(-1)
	if err := s.store.Delete(key); err != nil {
		s.logger.Warn("failed to clear stored selection",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
