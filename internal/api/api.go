/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the show control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/tokencast/internal/auth"
	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/orchestrator"
	"github.com/friendsincode/tokencast/internal/store"
)

// CacheFlusher drops cached upstream responses.
type CacheFlusher interface {
	FlushAll(ctx context.Context) error
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Bus          *events.Bus
	Cache        CacheFlusher
	Clock        clock.Clock
	JWTSecret    []byte
	// ShowDefaults builds the config used when POST /start has no body.
	ShowDefaults func() *orchestrator.ShowConfig
	Logger       zerolog.Logger
}

// API exposes HTTP handlers.
type API struct {
	orch         *orchestrator.Orchestrator
	store        store.Store
	bus          *events.Bus
	cache        CacheFlusher
	clock        clock.Clock
	jwtSecret    []byte
	showDefaults func() *orchestrator.ShowConfig
	logger       zerolog.Logger
}

// New creates the API router wrapper.
func New(deps Deps) *API {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if deps.ShowDefaults == nil {
		deps.ShowDefaults = orchestrator.DefaultShowConfig
	}
	return &API{
		orch:         deps.Orchestrator,
		store:        deps.Store,
		bus:          deps.Bus,
		cache:        deps.Cache,
		clock:        deps.Clock,
		jwtSecret:    deps.JWTSecret,
		showDefaults: deps.ShowDefaults,
		logger:       deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers every route on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/tokencast", func(r chi.Router) {
			r.Get("/current", a.handleCurrent)
			r.Get("/segments/current", a.handleCurrentSegment)
			r.Get("/upcoming", a.handleUpcoming)
			r.Get("/shows", a.handleShowsList)
			r.Get("/shows/{showID}", a.handleShowsGet)
			r.Get("/generators", a.handleGenerators)
			r.Get("/gamba/rounds/{roundID}", a.handleGambaRound)

			r.Group(func(pr chi.Router) {
				pr.Use(auth.Middleware(a.jwtSecret))

				pr.With(auth.RequireRole(auth.RoleAdmin)).Post("/start", a.handleStart)
				pr.With(auth.RequireRole(auth.RoleAdmin)).Post("/end", a.handleEnd)
				pr.With(auth.RequireRole(auth.RoleAdmin)).Post("/segments/transition", a.handleTransition)
				pr.With(auth.RequireRole(auth.RoleAdmin)).Post("/cache/flush", a.handleCacheFlush)
				pr.With(auth.RequireRole(auth.RoleAdmin, auth.RoleOperator)).Post("/interactions", a.handleInteractionCreate)
			})
		})

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))
			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeOrchestratorError maps orchestrator errors to HTTP responses.
func (a *API) writeOrchestratorError(w http.ResponseWriter, err error) {
	var terr *orchestrator.TransitionError
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "show_already_running")
	case errors.Is(err, orchestrator.ErrNoActiveShow):
		writeError(w, http.StatusConflict, "no_active_show")
	case errors.Is(err, orchestrator.ErrStaleTransition):
		writeError(w, http.StatusConflict, "stale_transition")
	case errors.As(err, &terr):
		a.logger.Error().Err(err).Str("phase", terr.Phase).Msg("transition failed")
		writeError(w, http.StatusInternalServerError, "transition_failed")
	default:
		a.logger.Error().Err(err).Msg("orchestrator call failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
