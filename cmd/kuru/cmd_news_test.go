// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"strings"
	"testing"

	"github.com/AleutianAI/kurukshetram/internal/catalog"
	"github.com/AleutianAI/kurukshetram/internal/locale"
)

func TestRenderNewsItem(t *testing.T) {
	item := catalog.NewsItem{
		ID:           "n1",
		Title:        "Water works resume",
		CategoryName: "Civic",
		DistrictName: "Warangal",
		ReadTime:     "2 min",
	}
	out := renderNewsItem(item)
	for _, want := range []string{"Water works resume", "n1", "Civic", "Warangal", "2 min"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered item missing %q:\n%s", want, out)
		}
	}

	bare := renderNewsItem(catalog.NewsItem{ID: "n2", Title: "Short"})
	if strings.Count(bare, "\n") != 0 {
		t.Errorf("item without metadata should be one line:\n%q", bare)
	}
}

func TestCacheKey(t *testing.T) {
	cat := catalog.Category{ID: "c1"}

	t.Run("full selection", func(t *testing.T) {
		sel := locale.Selection{
			Language: &locale.LanguageRef{ID: "l1"},
			State:    &locale.StateRef{ID: "s1"},
			District: &locale.DistrictRef{ID: "d1"},
		}
		got := cacheKey(cat, sel)
		want := "c1|l1|s1|d1"
		if got.String() != want {
			t.Errorf("cacheKey = %q, want %q", got.String(), want)
		}
	})

	t.Run("partial selection leaves tiers empty", func(t *testing.T) {
		sel := locale.Selection{Language: &locale.LanguageRef{ID: "l1"}}
		got := cacheKey(cat, sel)
		if got.StateID != "" || got.DistrictID != "" {
			t.Errorf("unset tiers must stay empty: %+v", got)
		}
	})
}

func TestFindByName(t *testing.T) {
	langs := []locale.LanguageRef{
		{ID: "l1", DisplayName: "Telugu"},
		{ID: "l2", DisplayName: "English"},
	}

	ref, err := findLanguage(langs, "english")
	if err != nil {
		t.Fatalf("findLanguage: %v", err)
	}
	if ref.ID != "l2" {
		t.Errorf("matched %q, want l2", ref.ID)
	}

	if _, err := findLanguage(langs, "Kannada"); err == nil {
		t.Error("expected an error for an unknown name")
	}
}
