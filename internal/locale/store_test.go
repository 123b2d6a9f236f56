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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kurukshetram/internal/events"
	"github.com/AleutianAI/kurukshetram/internal/storage"
)

// fakeProvider serves canned option lists and records calls. Any tier can
// be forced to fail.
type fakeProvider struct {
	languages []LanguageRef
	states    map[string][]StateRef
	districts map[string][]DistrictRef

	failLanguages bool
	failStates    bool
	failDistricts bool

	statesCalls int

	// onStates observes the store from inside the prefetch; used to
	// verify the clear-before-fetch ordering.
	onStates func()
}

var errProvider = errors.New("option fetch failed")

func (f *fakeProvider) Languages(ctx context.Context) ([]LanguageRef, error) {
	if f.failLanguages {
		return nil, errProvider
	}
	return f.languages, nil
}

func (f *fakeProvider) States(ctx context.Context, languageID string) ([]StateRef, error) {
	f.statesCalls++
	if f.onStates != nil {
		f.onStates()
	}
	if f.failStates {
		return nil, errProvider
	}
	return f.states[languageID], nil
}

func (f *fakeProvider) Districts(ctx context.Context, stateID string) ([]DistrictRef, error) {
	if f.failDistricts {
		return nil, errProvider
	}
	return f.districts[stateID], nil
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		languages: []LanguageRef{
			{ID: "l1", Code: "te", DisplayName: "Telugu"},
			{ID: "l2", Code: "en", DisplayName: "English"},
		},
		states: map[string][]StateRef{
			"l1": {{ID: "s1", Name: "Telangana"}, {ID: "s2", Name: "Andhra Pradesh"}},
			"l2": {{ID: "s3", Name: "Telangana"}},
		},
		districts: map[string][]DistrictRef{
			"s1": {{ID: "d1", Name: "Hyderabad", StateID: "s1"}, {ID: "d2", Name: "Warangal", StateID: "s1"}},
			"s2": {{ID: "d3", Name: "Guntur", StateID: "s2"}},
			"s3": {{ID: "d4", Name: "Hyderabad", StateID: "s3"}},
		},
	}
}

func newTestStore(provider OptionProvider) (*Store, *storage.MemStore, *events.Bus) {
	mem := storage.NewMemStore()
	bus := events.NewBus()
	st := NewStore(mem, bus, provider, DefaultDefaults(), nil)
	return st, mem, bus
}

func TestStore_SelectionInvariant(t *testing.T) {
	provider := newFakeProvider()
	st, _, _ := newTestStore(provider)
	ctx := context.Background()

	_, err := st.SelectLanguage(ctx, provider.languages[0])
	require.NoError(t, err)
	_, err = st.SelectState(ctx, provider.states["l1"][0])
	require.NoError(t, err)
	st.SelectDistrict(provider.districts["s1"][0])
	require.True(t, st.Current().Complete())

	t.Run("language change clears state and district", func(t *testing.T) {
		_, err := st.SelectLanguage(ctx, provider.languages[1])
		require.NoError(t, err)
		sel := st.Current()
		assert.True(t, sel.Valid())
		assert.Equal(t, "l2", sel.Language.ID)
		assert.Nil(t, sel.State)
		assert.Nil(t, sel.District)
	})

	t.Run("state change clears district", func(t *testing.T) {
		_, err := st.SelectState(ctx, provider.states["l2"][0])
		require.NoError(t, err)
		st.SelectDistrict(provider.districts["s3"][0])
		require.NotNil(t, st.Current().District)

		_, err = st.SelectState(ctx, provider.states["l2"][0])
		require.NoError(t, err)
		sel := st.Current()
		assert.True(t, sel.Valid())
		assert.Nil(t, sel.District)
	})
}

func TestStore_DownstreamClearIsObservableBeforePrefetch(t *testing.T) {
	provider := newFakeProvider()
	st, _, _ := newTestStore(provider)
	ctx := context.Background()

	_, err := st.SelectLanguage(ctx, provider.languages[0])
	require.NoError(t, err)
	_, err = st.SelectState(ctx, provider.states["l1"][0])
	require.NoError(t, err)
	st.SelectDistrict(provider.districts["s1"][0])

	var observed Selection
	provider.onStates = func() { observed = st.Current() }

	_, err = st.SelectLanguage(ctx, provider.languages[1])
	require.NoError(t, err)

	// By the time the states prefetch ran, the downstream tiers were
	// already cleared and the new language installed.
	assert.Equal(t, "l2", observed.Language.ID)
	assert.Nil(t, observed.State)
	assert.Nil(t, observed.District)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	provider := newFakeProvider()
	st, mem, bus := newTestStore(provider)
	ctx := context.Background()

	_, err := st.SelectLanguage(ctx, provider.languages[0])
	require.NoError(t, err)
	_, err = st.SelectState(ctx, provider.states["l1"][1])
	require.NoError(t, err)

	// Simulate a reload: a fresh store over the same durable storage.
	st2 := NewStore(mem, bus, provider, DefaultDefaults(), nil)
	sel := st2.Hydrate(ctx)

	require.NotNil(t, sel.State)
	assert.Equal(t, "s2", sel.State.ID)
	assert.Equal(t, "Andhra Pradesh", sel.State.Name)
	assert.Equal(t, "l1", sel.Language.ID)
}

func TestStore_HydrateFallbacks(t *testing.T) {
	t.Run("no stored selection resolves default language by name", func(t *testing.T) {
		provider := newFakeProvider()
		st, _, _ := newTestStore(provider)

		sel := st.Hydrate(context.Background())
		require.NotNil(t, sel.Language)
		assert.Equal(t, "English", sel.Language.DisplayName)
		assert.Equal(t, "l2", sel.Language.ID)
	})

	t.Run("stale stored id falls back to default", func(t *testing.T) {
		provider := newFakeProvider()
		st, mem, _ := newTestStore(provider)
		require.NoError(t, mem.Set(storage.KeySelectedLanguage, []byte(`{"id":"gone","displayName":"Kannada"}`)))

		sel := st.Hydrate(context.Background())
		assert.Equal(t, "l2", sel.Language.ID)
	})

	t.Run("no default match uses first option", func(t *testing.T) {
		provider := newFakeProvider()
		provider.languages = []LanguageRef{
			{ID: "l9", Code: "hi", DisplayName: "Hindi"},
			{ID: "l8", Code: "ta", DisplayName: "Tamil"},
		}
		st, _, _ := newTestStore(provider)

		sel := st.Hydrate(context.Background())
		assert.Equal(t, "l9", sel.Language.ID)
	})

	t.Run("corrupt stored value is discarded", func(t *testing.T) {
		provider := newFakeProvider()
		st, mem, _ := newTestStore(provider)
		require.NoError(t, mem.Set(storage.KeySelectedLanguage, []byte(`{{not json`)))

		sel := st.Hydrate(context.Background())
		assert.Equal(t, "l2", sel.Language.ID)
		_, ok, _ := mem.Get(storage.KeySelectedLanguage)
		assert.True(t, ok, "resolved fallback should be re-persisted")
	})
}

func TestStore_HydrateFetchFailures(t *testing.T) {
	t.Run("language fetch failure leaves everything unset", func(t *testing.T) {
		provider := newFakeProvider()
		provider.failLanguages = true
		st, _, _ := newTestStore(provider)

		sel := st.Hydrate(context.Background())
		assert.Nil(t, sel.Language)
		assert.Nil(t, sel.State)
		assert.Nil(t, sel.District)
	})

	t.Run("state fetch failure leaves downstream unset and is recoverable", func(t *testing.T) {
		provider := newFakeProvider()
		provider.failStates = true
		st, _, _ := newTestStore(provider)

		sel := st.Hydrate(context.Background())
		require.NotNil(t, sel.Language)
		assert.Nil(t, sel.State)
		assert.Nil(t, sel.District)

		provider.failStates = false
		sel = st.Hydrate(context.Background())
		require.NotNil(t, sel.State)
		require.NotNil(t, sel.District)
		assert.True(t, sel.Complete())
	})
}

func TestStore_ResetToDefault(t *testing.T) {
	provider := newFakeProvider()
	st, mem, _ := newTestStore(provider)
	ctx := context.Background()

	_, err := st.SelectLanguage(ctx, provider.languages[0])
	require.NoError(t, err)

	sel := st.ResetToDefault(ctx)
	require.NotNil(t, sel.Language)
	assert.Equal(t, "English", sel.Language.DisplayName)
	assert.True(t, sel.Complete())

	raw, ok, err := mem.Get(storage.KeySelectedLanguage)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), "l2")
}

func TestStore_BroadcastOnMutation(t *testing.T) {
	provider := newFakeProvider()
	st, _, bus := newTestStore(provider)

	ch, cancel := bus.Subscribe(events.TopicSelectionChanged)
	defer cancel()

	_, err := st.SelectLanguage(context.Background(), provider.languages[0])
	require.NoError(t, err)

	select {
	case ev := <-ch:
		sel, ok := ev.Data.(Selection)
		require.True(t, ok)
		assert.Equal(t, "l1", sel.Language.ID)
	default:
		t.Fatal("no selection-change event broadcast")
	}
}

func TestStore_MirrorsExternalWrites(t *testing.T) {
	provider := newFakeProvider()
	mem := storage.NewMemStore()
	writerBus, mirrorBus := events.NewBus(), events.NewBus()
	writer := NewStore(mem, writerBus, provider, DefaultDefaults(), nil)
	defer writer.Close()
	mirror := NewStore(mem, mirrorBus, provider, DefaultDefaults(), nil)
	defer mirror.Close()

	ch, cancel := mirrorBus.Subscribe(events.TopicSelectionChanged)
	defer cancel()

	_, err := writer.SelectLanguage(context.Background(), provider.languages[0])
	require.NoError(t, err)

	sel := mirror.Current()
	require.NotNil(t, sel.Language, "mirror picks up the foreign write")
	assert.Equal(t, "l1", sel.Language.ID)

	select {
	case <-ch:
	default:
		t.Fatal("mirror did not broadcast the foreign change on its own bus")
	}
}

func TestStore_OwnWritesBroadcastOnce(t *testing.T) {
	provider := newFakeProvider()
	st, _, bus := newTestStore(provider)
	defer st.Close()
	ctx := context.Background()

	_, err := st.SelectLanguage(ctx, provider.languages[0])
	require.NoError(t, err)
	_, err = st.SelectState(ctx, provider.states["l1"][0])
	require.NoError(t, err)

	ch, cancel := bus.Subscribe(events.TopicSelectionChanged)
	defer cancel()

	st.SelectDistrict(provider.districts["s1"][0])

	broadcasts := 0
	for {
		select {
		case <-ch:
			broadcasts++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, broadcasts, "the storage watch must not echo the store's own mutation")
}
