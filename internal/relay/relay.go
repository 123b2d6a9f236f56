// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay implements the local CORS relay in front of the upstream
// CMS API.
//
// Browsers and embedded webviews cannot call the upstream directly because
// it sends no CORS headers. The relay answers every preflight itself,
// forwards everything else verbatim under /api/, and stamps permissive
// CORS headers on the way back. Failures crossing the relay become the
// upstream's own JSON envelope shape so clients never special-case the
// hop.
package relay

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/kurukshetram/internal/config"
)

// forwardedHeaders are copied from the caller to the upstream. Everything
// else is dropped; hop-by-hop headers must not leak through.
var forwardedHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
	"X-Client-Type",
	"X-User-Agent",
	"X-Request-ID",
}

// Relay forwards /api traffic to the upstream CMS.
//
// # Thread Safety
//
// Safe for concurrent use. Apply swaps tunables (origins, rate limit)
// without restarting the listener, which is how config hot reload lands.
type Relay struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
	metrics  *Metrics
	limiter  *rate.Limiter

	mu             sync.RWMutex
	allowedOrigins string
}

// New creates a relay for the given upstream base URL.
func New(upstreamBase string, proxyCfg config.ProxyConfig, metrics *Metrics, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, err
	}
	limit := rate.Limit(proxyCfg.RateLimit)
	if proxyCfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &Relay{
		upstream:       u,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
		metrics:        metrics,
		limiter:        rate.NewLimiter(limit, max(proxyCfg.RateBurst, 1)),
		allowedOrigins: proxyCfg.AllowedOrigins,
	}, nil
}

// Apply installs updated proxy tunables from a config reload.
func (r *Relay) Apply(proxyCfg config.ProxyConfig) {
	limit := rate.Limit(proxyCfg.RateLimit)
	if proxyCfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	r.limiter.SetLimit(limit)
	r.limiter.SetBurst(max(proxyCfg.RateBurst, 1))

	r.mu.Lock()
	r.allowedOrigins = proxyCfg.AllowedOrigins
	r.mu.Unlock()
	r.logger.Info("relay tunables updated",
		slog.Float64("rate_limit", proxyCfg.RateLimit),
		slog.Int("rate_burst", proxyCfg.RateBurst))
}

// Router builds the gin engine: health, metrics, and the /api catch-all.
func (r *Relay) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("newsproxy"))
	router.Use(r.corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(r.rateLimitMiddleware())
	api.Any("/*path", r.forward)
	return router
}

// corsMiddleware stamps CORS headers on every response and terminates
// preflights with a bare 200.
func (r *Relay) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		r.mu.RLock()
		origins := r.allowedOrigins
		r.mu.RUnlock()
		if origins == "" {
			origins = "*"
		}
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join(forwardedHeaders, ", "))
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware sheds load above the configured rate.
func (r *Relay) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.limiter.Allow() {
			r.metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  0,
				"message": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// forward relays one request to the upstream and copies the response back.
func (r *Relay) forward(c *gin.Context) {
	started := time.Now()

	target := *r.upstream
	target.Path = strings.TrimRight(target.Path, "/") + c.Param("path")
	target.RawQuery = c.Request.URL.RawQuery

	var body io.Reader
	if c.Request.Body != nil {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			r.fail(c, http.StatusBadRequest, "Unable to read request body.")
			return
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), body)
	if err != nil {
		r.fail(c, http.StatusBadGateway, "Unable to reach the news service.")
		return
	}
	for _, h := range forwardedHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("upstream unreachable",
			slog.String("path", c.Param("path")),
			slog.String("error", err.Error()))
		r.metrics.Observe(c.Request.Method, http.StatusBadGateway, time.Since(started))
		r.fail(c, http.StatusBadGateway, "Unable to reach the news service.")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		r.logger.Warn("response copy interrupted", slog.String("error", err.Error()))
	}
	r.metrics.Observe(c.Request.Method, resp.StatusCode, time.Since(started))
}

// fail answers with the upstream's envelope shape so clients parse relay
// failures the same way as API failures.
func (r *Relay) fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": 0, "message": message})
}
