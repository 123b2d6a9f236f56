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
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/kurukshetram/internal/auth"
	"github.com/AleutianAI/kurukshetram/internal/catalog"
	"github.com/AleutianAI/kurukshetram/internal/config"
	"github.com/AleutianAI/kurukshetram/internal/engage"
	"github.com/AleutianAI/kurukshetram/internal/events"
	"github.com/AleutianAI/kurukshetram/internal/locale"
	"github.com/AleutianAI/kurukshetram/internal/newscache"
	"github.com/AleutianAI/kurukshetram/internal/session"
	"github.com/AleutianAI/kurukshetram/internal/storage"
	"github.com/AleutianAI/kurukshetram/pkg/logging"
)

// app is the wired client: one session, one durable store, and the
// services that hang off them. Commands receive it via the root
// PersistentPreRun.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	store   storage.Store
	bus     *events.Bus
	creds   *auth.Credentials
	session *session.Session
	catalog *catalog.Client
	locale  *locale.Store
	engage  *engage.Reconciler
	cache   *newscache.Cache
}

func newApp(cfg config.Config) (*app, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Observability.LogLevel),
		LogDir:  "~/.kurukshetram/logs",
		Service: "kuru",
		Quiet:   true, // TUI owns the terminal; logs go to file only
	})
	slogger := logger.Slog()

	storePath := cfg.Storage.Path
	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		storePath = filepath.Join(home, config.DefaultDirName, "store")
	}
	store, err := storage.OpenBadger(storage.BadgerConfig{
		Path:     storePath,
		InMemory: cfg.Storage.InMemory,
		Logger:   slogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.NewBus()
	creds := auth.NewCredentials(store, slogger)

	sess, err := session.New(session.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		UserAgent:   "kuru/cli",
		Tokens:      creds,
		Timeout:     cfg.Upstream.Timeout,
		MaxAttempts: cfg.Upstream.MaxAttempts,
		BackoffBase: cfg.Upstream.BackoffBase,
		Logger:      slogger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	cat := catalog.NewClient(sess)
	loc := locale.NewStore(store, bus, cat, locale.Defaults{
		Language: cfg.Defaults.Language,
		State:    cfg.Defaults.State,
		District: cfg.Defaults.District,
	}, slogger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		bus:     bus,
		creds:   creds,
		session: sess,
		catalog: cat,
		locale:  loc,
		engage:  engage.NewReconciler(sess, creds, slogger),
		cache:   newscache.NewCache(cat, bus, slogger),
	}, nil
}

func (a *app) Close() {
	a.cache.Close()
	a.locale.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	a.logger.Close()
}
