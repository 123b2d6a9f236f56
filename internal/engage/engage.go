// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engage reconciles per-article engagement state (likes, comments)
// between the UI's optimistic view and the upstream's authoritative counts.
//
// # Description
//
// Likes toggle optimistically: the local flip renders immediately, the
// mutation goes out, and the server's echoed totals overwrite the guess.
// A failed mutation restores the exact pre-toggle values. Comments are the
// opposite: nothing is inserted until the server confirms the post.
//
// # Thread Safety
//
// Reconciler is safe for concurrent use. Like toggles are non-reentrant
// per article: a second toggle while one is in flight is a no-op.
package engage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/AleutianAI/kurukshetram/internal/auth"
	"github.com/AleutianAI/kurukshetram/internal/optimistic"
	"github.com/AleutianAI/kurukshetram/internal/session"
)

// CommentPageSize is the fixed page size for comment pagination.
const CommentPageSize = 5

// Reconciler errors.
var (
	// ErrAuthRequired is returned when a mutation needs a signed-in viewer.
	ErrAuthRequired = errors.New("engage: sign in to continue")

	// ErrEmptyComment is returned when a comment is blank after trimming.
	ErrEmptyComment = errors.New("engage: comment text is empty")
)

// Comment is one comment as rendered in a thread.
type Comment struct {
	ID         string `json:"id"`
	NewsID     string `json:"newsId"`
	Content    string `json:"content"`
	AuthorName string `json:"authorName"`
	CreatedAt  string `json:"createdAt"`
}

// Snapshot is an article's engagement state at a point in time.
type Snapshot struct {
	LikeCount      int
	ViewerHasLiked bool

	CommentCount      int
	Comments          []Comment
	CommentPage       int
	CommentTotalPages int
}

// HasMoreComments reports whether another comment page can be fetched.
func (s Snapshot) HasMoreComments() bool {
	return s.CommentPage < s.CommentTotalPages
}

// articleState is the mutable per-article record.
type articleState struct {
	snap         Snapshot
	likeInFlight bool
}

// Reconciler drives engagement reads and mutations through the session.
type Reconciler struct {
	session *session.Session
	creds   *auth.Credentials
	logger  *slog.Logger

	mu       sync.Mutex
	articles map[string]*articleState
}

// NewReconciler wires the engagement service.
func NewReconciler(s *session.Session, creds *auth.Credentials, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		session:  s,
		creds:    creds,
		logger:   logger,
		articles: make(map[string]*articleState),
	}
}

// state returns the record for an article, creating it on first touch.
// Callers hold r.mu.
func (r *Reconciler) state(newsID string) *articleState {
	st, ok := r.articles[newsID]
	if !ok {
		st = &articleState{}
		r.articles[newsID] = st
	}
	return st
}

// snapshotLocked copies the state so callers cannot alias the live comment
// slice. Callers hold r.mu.
func (st *articleState) snapshotLocked() Snapshot {
	snap := st.snap
	snap.Comments = append([]Comment(nil), st.snap.Comments...)
	return snap
}

// Snapshot returns the current engagement view for an article.
func (r *Reconciler) Snapshot(newsID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(newsID).snapshotLocked()
}

// Open primes an article's engagement state: like summary, comment count
// and the first comment page.
//
// The like and count fetches are best-effort; their failures leave zeros
// and the article still opens. A first-page comment failure is returned.
func (r *Reconciler) Open(ctx context.Context, newsID string) (Snapshot, error) {
	if body, err := r.session.Get(ctx, likesPath(newsID), nil); err != nil {
		r.logger.Warn("like summary unavailable",
			slog.String("news_id", newsID),
			slog.String("error", err.Error()))
	} else if summary, ok := session.DecodeLikeSummary(body); ok {
		r.mu.Lock()
		st := r.state(newsID)
		st.snap.LikeCount = summary.TotalLikes
		st.snap.ViewerHasLiked = summary.IsLikedByUser
		r.mu.Unlock()
	}

	count := r.fetchCommentCount(ctx, newsID)
	r.mu.Lock()
	r.state(newsID).snap.CommentCount = count
	r.mu.Unlock()

	return r.FetchComments(ctx, newsID, 1)
}

// ToggleLike flips the viewer's like optimistically and reconciles against
// the server's echoed totals.
//
// # Description
//
//  1. Unauthenticated viewers get ErrAuthRequired before any state or
//     network activity.
//  2. A toggle already in flight for this article makes the call a no-op.
//  3. The local state flips immediately (unlike floors the count at zero),
//     then POST (like) or DELETE (unlike) goes out.
//  4. On success the server's {totalLikes, isLikedByUser} overwrite the
//     optimistic values; an unrecognizable payload keeps them.
//  5. On failure the exact pre-toggle values are restored. A 401 also
//     clears the stored credential.
func (r *Reconciler) ToggleLike(ctx context.Context, newsID string) (Snapshot, error) {
	if !r.creds.Authenticated() {
		return r.Snapshot(newsID), ErrAuthRequired
	}

	r.mu.Lock()
	st := r.state(newsID)
	if st.likeInFlight {
		snap := st.snapshotLocked()
		r.mu.Unlock()
		return snap, nil
	}
	st.likeInFlight = true
	prevCount, prevLiked := st.snap.LikeCount, st.snap.ViewerHasLiked
	r.mu.Unlock()

	err := optimistic.Run(ctx, optimistic.Mutation[[]byte]{
		Apply: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if prevLiked {
				st.snap.ViewerHasLiked = false
				st.snap.LikeCount = max(0, prevCount-1)
			} else {
				st.snap.ViewerHasLiked = true
				st.snap.LikeCount = prevCount + 1
			}
		},
		Call: func(ctx context.Context) ([]byte, error) {
			if prevLiked {
				return r.session.Delete(ctx, likesPath(newsID))
			}
			return r.session.Post(ctx, likesPath(newsID), nil)
		},
		Reconcile: func(body []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if summary, ok := session.DecodeLikeSummary(body); ok {
				st.snap.LikeCount = summary.TotalLikes
				st.snap.ViewerHasLiked = summary.IsLikedByUser
			}
			// An unrecognizable success payload keeps the optimistic values.
		},
		Rollback: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			st.snap.LikeCount, st.snap.ViewerHasLiked = prevCount, prevLiked
			if se, ok := session.AsError(err); ok && se.HTTPStatus == http.StatusUnauthorized {
				r.creds.Clear()
			}
		},
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	st.likeInFlight = false
	return st.snapshotLocked(), err
}

// PostComment submits a comment and prepends the server's echo.
//
// There is no optimistic insert: the thread changes only after the server
// confirms. The comment count bumps locally, then a best-effort re-fetch
// replaces it with the authoritative value.
func (r *Reconciler) PostComment(ctx context.Context, newsID, content string) (Snapshot, error) {
	if !r.creds.Authenticated() {
		return r.Snapshot(newsID), ErrAuthRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return r.Snapshot(newsID), ErrEmptyComment
	}

	// The article id rides in the body as well as the path; the upstream's
	// create handler reads it from the payload.
	body, err := r.session.Post(ctx, commentsPath(newsID), map[string]string{
		"content": content,
		"newsId":  newsID,
	})
	if err != nil {
		if se, ok := session.AsError(err); ok && se.HTTPStatus == http.StatusUnauthorized {
			r.creds.Clear()
		}
		return r.Snapshot(newsID), err
	}

	echo := r.decodeEcho(newsID, content, body)

	r.mu.Lock()
	st := r.state(newsID)
	st.snap.Comments = append([]Comment{echo}, st.snap.Comments...)
	st.snap.CommentCount++
	r.mu.Unlock()

	// Authoritative count, when reachable, wins over the local bump.
	if count, ok := r.tryCommentCount(ctx, newsID); ok {
		r.mu.Lock()
		st.snap.CommentCount = count
		r.mu.Unlock()
	}
	return r.Snapshot(newsID), nil
}

// decodeEcho extracts the created comment from the post response, falling
// back to a locally assembled echo when the payload is unusable.
func (r *Reconciler) decodeEcho(newsID, content string, body []byte) Comment {
	var echo Comment
	if err := session.DecodeResult(body, &echo); err == nil && echo.ID != "" {
		if echo.Content == "" {
			echo.Content = content
		}
		return echo
	}
	r.logger.Debug("comment echo unusable, assembling locally",
		slog.String("news_id", newsID))
	echo = Comment{NewsID: newsID, Content: content}
	if p := r.creds.Profile(); p != nil {
		echo.AuthorName = p.DisplayName
	}
	return echo
}

// commentPage is the decoded shape of one comment page.
type commentPage struct {
	Items      []Comment
	Total      int
	TotalPages int
}

// FetchComments loads one comment page.
//
// Page 1 replaces the thread; later pages append. A request beyond the
// known last page is a no-op, so repeated load-more taps at the end cost
// nothing.
func (r *Reconciler) FetchComments(ctx context.Context, newsID string, page int) (Snapshot, error) {
	if page < 1 {
		page = 1
	}

	r.mu.Lock()
	st := r.state(newsID)
	if page > 1 && st.snap.CommentTotalPages > 0 && page > st.snap.CommentTotalPages {
		snap := st.snapshotLocked()
		r.mu.Unlock()
		return snap, nil
	}
	r.mu.Unlock()

	params := url.Values{
		"page":    {strconv.Itoa(page)},
		"perPage": {strconv.Itoa(CommentPageSize)},
	}
	body, err := r.session.Get(ctx, commentsPath(newsID), params)
	if err != nil {
		return r.Snapshot(newsID), err
	}
	decoded, err := decodeCommentPage(body)
	if err != nil {
		return r.Snapshot(newsID), fmt.Errorf("engage: decode comments: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if page == 1 {
		st.snap.Comments = decoded.Items
	} else {
		st.snap.Comments = append(st.snap.Comments, decoded.Items...)
	}
	st.snap.CommentPage = page
	st.snap.CommentTotalPages = decoded.TotalPages
	return st.snapshotLocked(), nil
}

// decodeCommentPage tolerates the observed payload layouts: a paginated
// object keyed "items" or "comments", or a bare array.
func decodeCommentPage(body []byte) (commentPage, error) {
	var wrapped struct {
		Items      []Comment `json:"items"`
		Comments   []Comment `json:"comments"`
		Total      int       `json:"total"`
		TotalPages int       `json:"totalPages"`
	}
	if err := session.DecodeResult(body, &wrapped); err == nil {
		items := wrapped.Items
		if items == nil {
			items = wrapped.Comments
		}
		if items != nil || wrapped.TotalPages > 0 {
			return commentPage{Items: items, Total: wrapped.Total, TotalPages: wrapped.TotalPages}, nil
		}
	}
	items, err := session.DecodeList[Comment](body)
	if err != nil {
		return commentPage{}, err
	}
	pages := 0
	if len(items) > 0 {
		pages = 1
	}
	return commentPage{Items: items, Total: len(items), TotalPages: pages}, nil
}

// decodeCommentTotal reads the dedicated count payload, a {"total": n}
// object served bare or inside the result envelope. ok is false when no
// total field is present, so the caller falls through to the page-based
// count instead of installing a zero.
func decodeCommentTotal(body []byte) (int, bool) {
	var bare struct {
		Total *int `json:"total"`
	}
	if json.Unmarshal(body, &bare) == nil && bare.Total != nil {
		return *bare.Total, true
	}
	var wrapped struct {
		Total *int `json:"total"`
	}
	if session.DecodeResult(body, &wrapped) == nil && wrapped.Total != nil {
		return *wrapped.Total, true
	}
	return 0, false
}

// fetchCommentCount resolves the comment count through the fallback chain,
// bottoming out at zero.
//
//	/news/{id}/comments/count  →  comments page 1, size 1, total  →  0
func (r *Reconciler) fetchCommentCount(ctx context.Context, newsID string) int {
	count, ok := r.tryCommentCount(ctx, newsID)
	if !ok {
		return 0
	}
	return count
}

// tryCommentCount is fetchCommentCount with an explicit success flag, so
// best-effort refreshes can skip overwriting on total failure.
func (r *Reconciler) tryCommentCount(ctx context.Context, newsID string) (int, bool) {
	if body, err := r.session.Get(ctx, commentsPath(newsID)+"/count", nil); err == nil {
		if total, ok := decodeCommentTotal(body); ok {
			return total, true
		}
	}

	params := url.Values{"page": {"1"}, "perPage": {"1"}}
	body, err := r.session.Get(ctx, commentsPath(newsID), params)
	if err != nil {
		return 0, false
	}
	decoded, err := decodeCommentPage(body)
	if err != nil {
		return 0, false
	}
	return decoded.Total, true
}

func likesPath(newsID string) string    { return "/news/" + newsID + "/likes" }
func commentsPath(newsID string) string { return "/news/" + newsID + "/comments" }
