// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// newsproxy is the local CORS relay in front of the upstream CMS API.
//
// It exists because the upstream sends no CORS headers: browser-based
// frontends point at this relay instead. Run it next to the frontend,
// configure the upstream in ~/.kurukshetram/kurukshetram.yaml, and the
// proxy tunables (origins, rate limit) hot-reload on config edits.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/kurukshetram/internal/config"
	"github.com/AleutianAI/kurukshetram/internal/relay"
	"github.com/AleutianAI/kurukshetram/pkg/logging"
)

// UpstreamBaseEnv overrides the configured upstream, mirroring how the
// frontend build injects its API base.
const UpstreamBaseEnv = "KURUKSHETRAM_UPSTREAM_URL"

func initTracer(cfg config.ObservabilityConfig) (func(context.Context), error) {
	ctx := context.Background()

	endpoint := cfg.OTLPEndpoint
	if env := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); env != "" {
		endpoint = env
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("newsproxy")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	cfgPath := os.Getenv("KURUKSHETRAM_CONFIG")
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			log.Fatalf("cannot resolve config path: %v", err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Observability.LogLevel),
		LogDir:  "~/.kurukshetram/logs",
		Service: "newsproxy",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if cfg.Observability.TracingEnabled {
		cleanup, err := initTracer(cfg.Observability)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	upstream := cfg.Upstream.BaseURL
	if env := os.Getenv(UpstreamBaseEnv); env != "" {
		upstream = env
	}

	metrics := relay.NewMetrics(prometheus.DefaultRegisterer)
	rly, err := relay.New(upstream, cfg.Proxy, metrics, logger.Slog())
	if err != nil {
		log.Fatalf("invalid upstream URL %q: %v", upstream, err)
	}

	watcher, err := config.NewWatcher(cfgPath, func(next config.Config) {
		rly.Apply(next.Proxy)
	}, logger.Slog())
	if err != nil {
		logger.Warn("config hot reload unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:              cfg.Proxy.ListenAddr,
		Handler:           rly.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("newsproxy listening",
			"addr", cfg.Proxy.ListenAddr,
			"upstream", upstream)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
