/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the device components together and runs the HTTP
// surface plus the background workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/api"
	"github.com/friendsincode/grimnir_signage/internal/arbiter"
	"github.com/friendsincode/grimnir_signage/internal/auth"
	"github.com/friendsincode/grimnir_signage/internal/broadcast"
	"github.com/friendsincode/grimnir_signage/internal/config"
	"github.com/friendsincode/grimnir_signage/internal/display"
	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/health"
	"github.com/friendsincode/grimnir_signage/internal/logbuffer"
	"github.com/friendsincode/grimnir_signage/internal/media"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/scheduler"
	"github.com/friendsincode/grimnir_signage/internal/store"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

// Server bundles the HTTP surface and the device workers.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	router chi.Router

	httpServer    *http.Server
	metricsServer *http.Server

	store       *store.Store
	tags        *store.TagStore
	index       *media.Index
	watcher     *media.Watcher
	displayCtl  *display.Controller
	arbiter     *arbiter.Arbiter
	engine      *scheduler.Engine
	monitor     *health.Monitor
	broadcaster *broadcast.Broadcaster
	bus         *events.Bus

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	bus := events.NewBus()

	st, err := store.New(cfg.PlaylistPath, logger)
	if err != nil {
		return nil, fmt.Errorf("playlist store: %w", err)
	}
	tags, err := store.NewTagStore(cfg.MetadataPath, logger)
	if err != nil {
		return nil, fmt.Errorf("tag store: %w", err)
	}

	prober := media.NewProber("", cfg.FfprobeTimeout, logger)
	index := media.NewIndex(map[string]string{
		"local":   cfg.MediaLocalPath,
		"cache":   cfg.MediaCachePath,
		"network": cfg.MediaNetworkPath,
	}, prober, tags, logger)
	watcher := media.NewWatcher(index, 2*time.Second, logger)

	launcher := display.NewExecLauncher(display.Options{
		ChromiumBinary: cfg.ChromiumBinary,
		FlagsFile:      cfg.FlagsFile,
		DebugPort:      cfg.DebugPort,
		MpvBinary:      cfg.MpvBinary,
		ImvBinary:      cfg.ImvBinary,
	})
	devtools := display.NewDevTools(cfg.DebugPort, logger)
	blanker := display.NewDPMSBlanker(logger)
	displayCtl := display.NewController(launcher, devtools, blanker, cfg.GracePeriod, cfg.BackoffCeiling, logger)

	// The arbiter re-reads the engine's current target when applying a
	// schedule change, and the engine pushes changes into the arbiter. The
	// closure breaks the construction cycle.
	var engine *scheduler.Engine
	arb := arbiter.New(displayCtl, index, st, bus, func() models.Target {
		return engine.Current()
	}, cfg.ImageDuration, cfg.OverrideWindow, cfg.Homepage, logger)
	engine = scheduler.NewEngine(st, cfg.Homepage, cfg.TickInterval, arb.ApplySchedule, bus, logger)
	watcher.OnRefresh(arb.Resync)

	monitor := health.NewMonitor(30*time.Second, bus, logger)
	broadcaster := broadcast.New(bus, arb.State, cfg.HeartbeatInterval, cfg.ClientBuffer, logger)

	tokens, generated := auth.NewManager(cfg.TokenSecret, cfg.TokenTTL)
	if generated {
		logger.Warn().Msg("no token secret configured, sessions will not survive a restart")
	}
	if cfg.PasswordHash == "" {
		logger.Warn().Msg("no admin password configured, logins will be rejected")
	}

	apiHandler := api.New(arb, engine, st, tags, index, watcher, monitor, broadcaster, tokens, cfg.PasswordHash, cfg.Homepage, cfg.MaxUploadBytes, logBuf, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-signage-api"))
	router.Use(telemetry.MetricsMiddleware)
	// skip the request timeout for websocket upgrades and uploads
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			if r.URL.Path == "/api/media/upload" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})
	apiHandler.Routes(router)

	srv := &Server{
		cfg:         cfg,
		logger:      logger,
		router:      router,
		store:       st,
		tags:        tags,
		index:       index,
		watcher:     watcher,
		displayCtl:  displayCtl,
		arbiter:     arb,
		engine:      engine,
		monitor:     monitor,
		broadcaster: broadcaster,
		bus:         bus,
	}

	srv.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler: router,
		// header deadline guards against slowloris; no full-body deadline so
		// uploads are not cut off mid-request
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
	}
	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' data: blob:; frame-ancestors 'none'; base-uri 'self'")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// Start launches the background workers and the HTTP listeners. It blocks
// until the HTTP server stops.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	s.bgCancel = cancel
	s.worker("arbiter", func() error { return s.arbiter.Run(bgCtx) })
	s.worker("scheduler", func() error { return s.engine.Run(bgCtx) })
	s.worker("media_watcher", func() error { return s.watcher.Run(bgCtx) })
	s.worker("health_monitor", func() error { return s.monitor.Run(bgCtx) })
	s.worker("broadcaster", func() error { return s.broadcaster.Run(bgCtx) })

	if s.metricsServer != nil {
		s.worker("metrics", func() error {
			s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics listener started")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) worker(name string, fn func() error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("worker", name).Msg("worker stopped")
		}
	}()
}

// Shutdown stops the HTTP surface, the workers and the renderer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown failed")
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("metrics shutdown failed")
		}
	}

	if s.bgCancel != nil {
		s.bgCancel()
	}
	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn().Msg("workers did not stop in time")
	}
	return nil
}
