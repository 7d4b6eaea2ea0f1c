/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

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
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/tokencast/internal/api"
	"github.com/friendsincode/tokencast/internal/cache"
	"github.com/friendsincode/tokencast/internal/config"
	"github.com/friendsincode/tokencast/internal/db"
	"github.com/friendsincode/tokencast/internal/eventbus"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/orchestrator"
	"github.com/friendsincode/tokencast/internal/pumpfun"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/segments"
	"github.com/friendsincode/tokencast/internal/store"
	"github.com/friendsincode/tokencast/internal/swarm"
	"github.com/friendsincode/tokencast/internal/telegram"
	"github.com/friendsincode/tokencast/internal/telemetry"
)

const dbMetricsInterval = 15 * time.Second

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db           *gorm.DB
	store        store.Store
	cache        *cache.Cache
	bus          *events.Bus
	orchestrator *orchestrator.Orchestrator
	api          *api.API
	rotation     []rotation.Entry

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("tokencast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long-lived and must not be cut by the request timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		srv.runClosers()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// The event stream writes indefinitely; handlers manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.db = database
	s.store = store.NewGormStore(database)

	entries := rotation.Default()
	if s.cfg.ShowRotationFile != "" {
		entries, err = rotation.LoadFile(s.cfg.ShowRotationFile)
		if err != nil {
			return err
		}
		s.logger.Info().Str("path", s.cfg.ShowRotationFile).Int("entries", len(entries)).Msg("rotation loaded")
	}
	s.rotation = entries

	// Redis fronts the SWARM API; an unreachable Redis leaves the cache disabled.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	if s.cfg.CacheTTL > 0 {
		cacheCfg.AnalysisTTL = s.cfg.CacheTTL
	}
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(s.cache.Close)

	var analyzer swarm.Analyzer
	switch client, err := swarm.NewClient(s.cfg.SwarmAPIURL, s.cfg.SwarmAPIKey, s.cfg.SwarmTimeout); {
	case errors.Is(err, swarm.ErrNotConfigured):
		s.logger.Warn().Msg("SWARM API not configured, analysis segments use fallback content")
	case err != nil:
		return fmt.Errorf("swarm client: %w", err)
	default:
		analyzer = cache.NewAnalyzer(client, s.cache)
	}

	var launches segments.LaunchSource
	if s.cfg.PumpFunAPIURL != "" {
		detector, err := pumpfun.NewDetector(s.cfg.PumpFunAPIURL, s.cfg.SwarmTimeout, nil)
		if err != nil {
			return fmt.Errorf("pump.fun detector: %w", err)
		}
		launches = detector
	}

	var notifier orchestrator.Notifier
	switch n, err := telegram.NewNotifier("", s.cfg.TelegramToken, s.logger); {
	case errors.Is(err, telegram.ErrNoToken):
		s.logger.Info().Msg("telegram bot token not set, show announcements disabled")
	case err != nil:
		return fmt.Errorf("telegram notifier: %w", err)
	default:
		notifier = n
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.SubjectPrefix = s.cfg.NATSSubject
		mirror, err := eventbus.NewNATSMirror(natsCfg, s.bus, s.logger)
		if err != nil {
			// Overlay fan-out is optional; local subscribers still see every event.
			s.logger.Warn().Err(err).Msg("nats mirror unavailable, continuing with local events only")
		} else {
			s.DeferClose(mirror.Close)
		}
	}

	registry := generator.NewRegistry()
	segments.RegisterAll(registry, segments.Deps{
		Swarm:    analyzer,
		Launches: launches,
		Logger:   s.logger,
	})

	opts := orchestrator.DefaultOptions()
	opts.GeneratorTimeout = s.cfg.GeneratorTimeout
	opts.BroadcastOnStart = s.cfg.ShowBroadcastOnStart
	opts.BroadcastChannels = s.cfg.TelegramGroups
	s.orchestrator = orchestrator.New(orchestrator.Deps{
		Store:    s.store,
		Registry: registry,
		Notifier: notifier,
		Bus:      s.bus,
		Logger:   s.logger,
	}, opts)

	s.api = api.New(api.Deps{
		Orchestrator: s.orchestrator,
		Store:        s.store,
		Bus:          s.bus,
		Cache:        s.cache,
		JWTSecret:    []byte(s.cfg.JWTSigningKey),
		ShowDefaults: s.ShowDefaults,
		Logger:       s.logger,
	})
	return nil
}

// ShowDefaults builds a show config from the process configuration.
func (s *Server) ShowDefaults() *orchestrator.ShowConfig {
	entries := make([]rotation.Entry, len(s.rotation))
	copy(entries, s.rotation)
	return &orchestrator.ShowConfig{
		Rotation:          entries,
		AutoTransition:    s.cfg.ShowAutoTransition,
		EstimatedDuration: s.cfg.ShowEstimatedDuration,
		AdvanceFirst:      s.cfg.ShowAdvanceFirst,
	}
}

// Start completes shows a previous process left live, launches background
// workers and, when configured, puts a new show on air.
func (s *Server) Start(ctx context.Context) error {
	recovered, err := s.orchestrator.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover shows: %w", err)
	}
	if recovered > 0 {
		s.logger.Warn().Int("count", recovered).Msg("closed shows left live by a previous run")
	}

	s.startBackgroundWorkers()

	if s.cfg.ShowAutoStart {
		show, err := s.orchestrator.StartShow(ctx, s.ShowDefaults())
		if err != nil {
			// A halted show stays live and waits for an operator.
			s.logger.Error().Err(err).Msg("auto-start show failed")
		} else {
			s.logger.Info().Int("show_number", show.ShowNumber).Msg("show auto-started")
		}
	}
	return nil
}

// HTTPServer exposes the API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus scrape server.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends the live show and releases resources.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if s.orchestrator != nil {
		if err := s.orchestrator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close orchestrator: %w", err))
		}
	}
	s.stopBackgroundWorkers()
	if err := s.runClosers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeferClose registers fn to run on Close, last registered first.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) runClosers() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(dbMetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runTransitionFailureLogger(ctx)
	}()
}

// runTransitionFailureLogger surfaces halted shows so operators notice them.
func (s *Server) runTransitionFailureLogger(ctx context.Context) {
	sub := s.bus.Subscribe(events.EventTransitionFailed)
	defer s.bus.Unsubscribe(events.EventTransitionFailed, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			s.logger.Error().
				Interface("show_id", payload["show_id"]).
				Interface("phase", payload["phase"]).
				Interface("error", payload["error"]).
				Msg("show halted; POST /api/v1/tokencast/segments/transition to resume")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if s.orchestrator.CurrentState().Live {
			_, _ = w.Write([]byte(`{"status":"ok","live":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","live":false}`))
	})

	s.api.Routes(s.router)
}
