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
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/kurukshetram/internal/catalog"
	"github.com/AleutianAI/kurukshetram/internal/engage"
	"github.com/AleutianAI/kurukshetram/internal/locale"
	"github.com/AleutianAI/kurukshetram/internal/newscache"
)

var (
	newsCmd = &cobra.Command{
		Use:   "news [category]",
		Short: "List categories, or the news in one category",
		Long: `Without arguments, lists the active categories for your language.
With a category name, shows its news under your current selection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runNews,
	}

	readLike     bool
	readComment  string
	readMorePage int

	readCmd = &cobra.Command{
		Use:   "read [news-id]",
		Short: "Read an article and its engagement",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
)

func init() {
	readCmd.Flags().BoolVar(&readLike, "like", false, "toggle your like on the article")
	readCmd.Flags().StringVar(&readComment, "comment", "", "post a comment")
	readCmd.Flags().IntVar(&readMorePage, "comments-page", 1, "comment page to show")
}

var (
	headlineStyle = lipgloss.NewStyle().Bold(true)
	bylineStyle   = lipgloss.NewStyle().Faint(true)
)

func runNews(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sel := cli.locale.Hydrate(ctx)
	if sel.Language == nil {
		return errors.New("no language available; check the upstream and try kuru select")
	}

	categories, err := cli.catalog.Categories(ctx, sel.Language.ID)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if len(categories) == 0 {
			fmt.Println("No categories for your language yet.")
			return nil
		}
		for _, c := range categories {
			fmt.Println(c.Name)
		}
		return nil
	}

	wanted := args[0]
	var category *catalog.Category
	for i := range categories {
		if strings.EqualFold(categories[i].Name, wanted) {
			category = &categories[i]
			break
		}
	}
	if category == nil {
		return fmt.Errorf("no category named %q; run kuru news to list them", wanted)
	}

	items, err := cli.cache.Get(ctx, cacheKey(*category, sel))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing here yet.")
		return nil
	}
	for _, item := range items {
		fmt.Println(renderNewsItem(item))
	}
	return nil
}

// cacheKey builds the full four-tier cache key; unset tiers stay empty.
func cacheKey(category catalog.Category, sel locale.Selection) newscache.Key {
	key := newscache.Key{CategoryID: category.ID}
	if sel.Language != nil {
		key.LanguageID = sel.Language.ID
	}
	if sel.State != nil {
		key.StateID = sel.State.ID
	}
	if sel.District != nil {
		key.DistrictID = sel.District.ID
	}
	return key
}

// renderNewsItem formats one news card as a two-line terminal entry.
func renderNewsItem(item catalog.NewsItem) string {
	var meta []string
	if item.CategoryName != "" {
		meta = append(meta, item.CategoryName)
	}
	if item.DistrictName != "" {
		meta = append(meta, item.DistrictName)
	}
	if item.ReadTime != "" {
		meta = append(meta, item.ReadTime)
	}
	line := headlineStyle.Render(item.Title) + "  " + bylineStyle.Render("["+item.ID+"]")
	if len(meta) > 0 {
		line += "\n  " + bylineStyle.Render(strings.Join(meta, " · "))
	}
	return line
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	newsID := args[0]

	article, err := cli.catalog.Article(ctx, newsID)
	if err != nil {
		return err
	}

	snap, err := cli.engage.Open(ctx, newsID)
	if err != nil {
		cli.logger.Warn("engagement unavailable", "news_id", newsID, "error", err)
	}

	if readLike {
		snap, err = cli.engage.ToggleLike(ctx, newsID)
		if err != nil {
			if errors.Is(err, engage.ErrAuthRequired) {
				return errors.New("sign in to like articles: kuru login")
			}
			return err
		}
	}
	if readComment != "" {
		snap, err = cli.engage.PostComment(ctx, newsID, readComment)
		if err != nil {
			if errors.Is(err, engage.ErrAuthRequired) {
				return errors.New("sign in to comment: kuru login")
			}
			return err
		}
	}
	if readMorePage > 1 {
		for page := 2; page <= readMorePage && snap.HasMoreComments(); page++ {
			snap, err = cli.engage.FetchComments(ctx, newsID, page)
			if err != nil {
				return err
			}
		}
	}

	printArticle(article, snap)
	return nil
}

func printArticle(article *catalog.Article, snap engage.Snapshot) {
	fmt.Println(headlineStyle.Render(article.Title))
	if article.AuthorName != "" {
		fmt.Println(bylineStyle.Render("by " + article.AuthorName))
	}
	fmt.Println()
	if article.Content != "" {
		fmt.Println(article.Content)
	} else {
		fmt.Println(article.ShortContent)
	}
	fmt.Println()

	liked := ""
	if snap.ViewerHasLiked {
		liked = " (you liked this)"
	}
	fmt.Printf("%d likes%s · %d comments\n", snap.LikeCount, liked, snap.CommentCount)
	for _, c := range snap.Comments {
		author := c.AuthorName
		if author == "" {
			author = "anonymous"
		}
		fmt.Printf("  %s: %s\n", author, c.Content)
	}
	if snap.HasMoreComments() {
		fmt.Println(bylineStyle.Render("  … more with --comments-page " +
			fmt.Sprint(snap.CommentPage+1)))
	}
}
