// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog is the read-side client for the upstream CMS catalogs:
// languages, states, districts, categories and news queries.
//
// It is the option provider the locale store hydrates against. Upstream
// field naming is inconsistent between endpoints (name vs districtName vs
// category_name); the raw types here absorb that so the rest of the client
// sees one canonical shape.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/AleutianAI/kurukshetram/internal/locale"
	"github.com/AleutianAI/kurukshetram/internal/session"
)

// Category is an active news category for a language.
type Category struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LanguageID string `json:"language_id"`
	Icon       string `json:"icon,omitempty"`
	Color      string `json:"color,omitempty"`
}

// NewsItem is a news card as served by the list endpoints.
type NewsItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ShortContent string `json:"shortNewsContent"`
	CategoryName string `json:"categoryName"`
	DistrictName string `json:"districtName"`
	StateName    string `json:"stateName"`
	AuthorName   string `json:"authorName"`
	ReadTime     string `json:"readTime"`
	CreatedAt    string `json:"createdAt"`
}

// Article is a full single-news payload.
type Article struct {
	NewsItem
	Content string `json:"content"`
	Excerpt string `json:"excerpt"`
}

// Client serves catalog reads through the session chokepoint.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	session *session.Session
}

// NewClient creates a catalog client.
func NewClient(s *session.Session) *Client {
	return &Client{session: s}
}

// rawLanguage matches /news/languages items.
type rawLanguage struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	LanguageName string `json:"languageName"`
	IsActive     int    `json:"is_active"`
}

// Languages implements locale.OptionProvider.
func (c *Client) Languages(ctx context.Context) ([]locale.LanguageRef, error) {
	body, err := c.session.Get(ctx, "/news/languages", nil)
	if err != nil {
		return nil, err
	}
	raw, err := session.DecodeList[rawLanguage](body)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode languages: %w", err)
	}
	out := make([]locale.LanguageRef, 0, len(raw))
	for _, l := range raw {
		out = append(out, locale.LanguageRef{ID: l.ID, Code: l.Code, DisplayName: l.LanguageName})
	}
	return out, nil
}

// rawState matches /news/states items. The endpoint nests its list under
// result.items and uses booleans where the others use 0/1.
type rawState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsDeleted bool   `json:"isDeleted"`
}

// States implements locale.OptionProvider.
func (c *Client) States(ctx context.Context, languageID string) ([]locale.StateRef, error) {
	params := url.Values{"language_id": {languageID}}
	body, err := c.session.Get(ctx, "/news/states", params)
	if err != nil {
		return nil, err
	}
	raw, err := session.DecodeList[rawState](body)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode states: %w", err)
	}
	out := make([]locale.StateRef, 0, len(raw))
	for _, s := range raw {
		if s.IsDeleted {
			continue
		}
		out = append(out, locale.StateRef{ID: s.ID, Name: s.Name})
	}
	return out, nil
}

// rawDistrict matches /news/districts items. Some deployments serve "name",
// others "districtName".
type rawDistrict struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DistrictName string `json:"districtName"`
	StateID      string `json:"state_id"`
	IsDeleted    int    `json:"isDeleted"`
}

// Districts implements locale.OptionProvider.
func (c *Client) Districts(ctx context.Context, stateID string) ([]locale.DistrictRef, error) {
	params := url.Values{"state_id": {stateID}}
	body, err := c.session.Get(ctx, "/news/districts", params)
	if err != nil {
		return nil, err
	}
	raw, err := session.DecodeList[rawDistrict](body)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode districts: %w", err)
	}
	out := make([]locale.DistrictRef, 0, len(raw))
	for _, d := range raw {
		if d.IsDeleted == 1 {
			continue
		}
		name := d.Name
		if name == "" {
			name = d.DistrictName
		}
		out = append(out, locale.DistrictRef{ID: d.ID, Name: name, StateID: d.StateID})
	}
	return out, nil
}

// rawCategory matches /news/categories items, coalescing the two observed
// name fields.
type rawCategory struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	LanguageID   string `json:"language_id"`
	Icon         string `json:"icon"`
	Color        string `json:"color"`
	IsActive     int    `json:"is_active"`
}

// Categories returns the active categories for a language.
//
// # Description
//
// Prefers server-side filtering via the language_id parameter. When the
// response does not look language-filtered, everything is fetched and
// filtered client-side. Duplicate ids are dropped; the upstream is known
// to emit them occasionally.
func (c *Client) Categories(ctx context.Context, languageID string) ([]Category, error) {
	params := url.Values{"language_id": {languageID}}
	body, err := c.session.Get(ctx, "/news/categories", params)
	if err != nil {
		return nil, err
	}
	raw, err := session.DecodeList[rawCategory](body)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode categories: %w", err)
	}

	filtered := raw
	if !looksFiltered(raw, languageID) {
		body, err = c.session.Get(ctx, "/news/categories", nil)
		if err != nil {
			return nil, err
		}
		all, err := session.DecodeList[rawCategory](body)
		if err != nil {
			return nil, fmt.Errorf("catalog: decode categories: %w", err)
		}
		filtered = filtered[:0]
		for _, cat := range all {
			if cat.LanguageID == languageID {
				filtered = append(filtered, cat)
			}
		}
	}

	seen := make(map[string]bool, len(filtered))
	out := make([]Category, 0, len(filtered))
	for _, cat := range filtered {
		if cat.IsActive != 1 || seen[cat.ID] {
			continue
		}
		seen[cat.ID] = true
		name := cat.Name
		if name == "" {
			name = cat.CategoryName
		}
		out = append(out, Category{
			ID:         cat.ID,
			Name:       name,
			LanguageID: cat.LanguageID,
			Icon:       cat.Icon,
			Color:      cat.Color,
		})
	}
	return out, nil
}

// looksFiltered reports whether every returned category already belongs to
// the requested language.
func looksFiltered(raw []rawCategory, languageID string) bool {
	if len(raw) == 0 {
		return false
	}
	for _, cat := range raw {
		if cat.LanguageID != languageID {
			return false
		}
	}
	return true
}

// NewsQuery parameterizes a multi-category news fetch under the active
// selection.
type NewsQuery struct {
	CategoryIDs []string
	LanguageID  string
	StateID     string
	DistrictID  string
	Limit       int
	Page        int
}

// NewsByCategories fetches news cards for one or more categories scoped to
// the active selection.
func (c *Client) NewsByCategories(ctx context.Context, q NewsQuery) ([]NewsItem, error) {
	params := url.Values{
		"categoryIds": {strings.Join(q.CategoryIDs, ",")},
		"language_id": {q.LanguageID},
	}
	if q.StateID != "" {
		params.Set("state_id", q.StateID)
	}
	if q.DistrictID != "" {
		params.Set("district_id", q.DistrictID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	body, err := c.session.Get(ctx, "/news/filter-multi-categories", params)
	if err != nil {
		return nil, err
	}
	items, err := session.DecodeList[NewsItem](body)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode news list: %w", err)
	}
	return items, nil
}

// Article fetches one full article.
func (c *Client) Article(ctx context.Context, newsID string) (*Article, error) {
	body, err := c.session.Get(ctx, "/news/"+newsID, nil)
	if err != nil {
		return nil, err
	}
	var a Article
	if err := session.DecodeResult(body, &a); err != nil {
		return nil, fmt.Errorf("catalog: decode article: %w", err)
	}
	return &a, nil
}
