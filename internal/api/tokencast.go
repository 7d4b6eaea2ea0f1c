/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendsincode/tokencast/internal/auth"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/models"
	"github.com/friendsincode/tokencast/internal/orchestrator"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/segments"
	"github.com/friendsincode/tokencast/internal/store"
)

const (
	defaultUpcoming = 3
	maxUpcoming     = 20
	maxShowsListed  = 100
	maxContentBytes = 4096
)

type rotationEntryRequest struct {
	Kind    string `json:"kind"`
	Seconds *int   `json:"seconds,omitempty"`
}

type startRequest struct {
	Rotation          []rotationEntryRequest `json:"rotation"`
	AutoTransition    *bool                  `json:"auto_transition"`
	EstimatedMinutes  *int                   `json:"estimated_minutes"`
	AdvanceFirst      *bool                  `json:"advance_first"`
	BroadcastChannels []string               `json:"broadcast_channels"`
	FeaturedTokens    []string               `json:"featured_tokens"`
}

type entryResponse struct {
	Kind            rotation.Kind `json:"kind"`
	DurationSeconds float64       `json:"duration_seconds"`
}

func toEntryResponses(entries []rotation.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{Kind: e.Kind, DurationSeconds: e.Duration.Seconds()})
	}
	return out
}

// showConfig overlays the request on the configured defaults.
func (a *API) showConfig(req startRequest) (*orchestrator.ShowConfig, error) {
	cfg := a.showDefaults()

	if len(req.Rotation) > 0 {
		kinds := make([]rotation.Kind, 0, len(req.Rotation))
		for _, e := range req.Rotation {
			k, err := rotation.ParseKind(e.Kind)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
		entries, err := rotation.Build(kinds, nil)
		if err != nil {
			return nil, err
		}
		for i, e := range req.Rotation {
			if e.Seconds == nil {
				continue
			}
			if *e.Seconds < 0 {
				return nil, fmt.Errorf("position %d: %w", i, rotation.ErrNegativeDuration)
			}
			entries[i].Duration = time.Duration(*e.Seconds) * time.Second
		}
		cfg.Rotation = entries
	}
	if req.AutoTransition != nil {
		cfg.AutoTransition = *req.AutoTransition
	}
	if req.EstimatedMinutes != nil {
		if *req.EstimatedMinutes <= 0 {
			return nil, errors.New("estimated_minutes must be positive")
		}
		cfg.EstimatedDuration = time.Duration(*req.EstimatedMinutes) * time.Minute
	}
	if req.AdvanceFirst != nil {
		cfg.AdvanceFirst = *req.AdvanceFirst
	}
	if len(req.BroadcastChannels) > 0 {
		cfg.BroadcastChannels = req.BroadcastChannels
	}
	if len(req.FeaturedTokens) > 0 {
		cfg.FeaturedTokens = req.FeaturedTokens
	}
	return cfg, nil
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	cfg, err := a.showConfig(req)
	if err != nil {
		a.logger.Debug().Err(err).Msg("rejected show config")
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	show, err := a.orch.StartShow(r.Context(), cfg)
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}

	resp := map[string]any{"show": show}
	if seg, ok := a.orch.CurrentSegment(); ok {
		resp["segment"] = seg
	}
	a.logger.Info().Str("show_id", show.ID).Str("user_id", userID(r)).Msg("show started via api")
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleEnd(w http.ResponseWriter, r *http.Request) {
	show, err := a.orch.EndShow(r.Context())
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}
	a.logger.Info().Str("show_id", show.ID).Str("user_id", userID(r)).Msg("show ended via api")
	writeJSON(w, http.StatusOK, map[string]any{"show": show})
}

func (a *API) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromSegmentID string `json:"from_segment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var (
		seg models.Segment
		err error
	)
	if req.FromSegmentID != "" {
		seg, err = a.orch.ManualTransitionFrom(r.Context(), req.FromSegmentID)
	} else {
		seg, err = a.orch.ManualTransition(r.Context())
	}
	if err != nil {
		a.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segment": seg})
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	st := a.orch.CurrentState()
	resp := map[string]any{
		"live":   st.Live,
		"halted": st.Halted,
	}
	if st.Show != nil {
		resp["show"] = st.Show
	}
	if st.Segment != nil {
		resp["segment"] = st.Segment
		resp["time_remaining_seconds"] = st.TimeRemaining.Seconds()
	}
	if st.NextTransitionAt != nil {
		resp["next_transition_at"] = st.NextTransitionAt
	}
	if st.Live {
		resp["upcoming"] = toEntryResponses(a.orch.Upcoming(defaultUpcoming))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCurrentSegment(w http.ResponseWriter, r *http.Request) {
	seg, ok := a.orch.CurrentSegment()
	if !ok {
		writeError(w, http.StatusNotFound, "no_live_segment")
		return
	}
	st := a.orch.CurrentState()
	writeJSON(w, http.StatusOK, map[string]any{
		"segment":                seg,
		"time_remaining_seconds": st.TimeRemaining.Seconds(),
	})
}

func (a *API) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	count := defaultUpcoming
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		count = min(n, maxUpcoming)
	}
	writeJSON(w, http.StatusOK, map[string]any{"upcoming": toEntryResponses(a.orch.Upcoming(count))})
}

func (a *API) handleShowsList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		limit = min(n, maxShowsListed)
	}
	shows, err := a.store.ListShows(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list shows failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shows": shows})
}

func (a *API) handleShowsGet(w http.ResponseWriter, r *http.Request) {
	show, err := a.store.GetShow(r.Context(), chi.URLParam(r, "showID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get show failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, show)
}

type generatorInfo struct {
	Kind            rotation.Kind `json:"kind"`
	Registered      bool          `json:"registered"`
	DefaultSeconds  float64       `json:"default_seconds"`
	InDefaultLineup bool          `json:"in_default_rotation"`
}

func (a *API) handleGenerators(w http.ResponseWriter, r *http.Request) {
	registered := make(map[rotation.Kind]bool)
	for _, k := range a.orch.Registry().Kinds() {
		registered[k] = true
	}
	lineup := make(map[rotation.Kind]bool, len(rotation.DefaultKinds))
	for _, k := range rotation.DefaultKinds {
		lineup[k] = true
	}

	kinds := make([]rotation.Kind, 0, len(rotation.DefaultDurations))
	for k := range rotation.DefaultDurations {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]generatorInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, generatorInfo{
			Kind:            k,
			Registered:      registered[k],
			DefaultSeconds:  rotation.DefaultDuration(k).Seconds(),
			InDefaultLineup: lineup[k],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"generators": out})
}

type interactionRequest struct {
	UserID   string                 `json:"user_id"`
	Type     models.InteractionType `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]any         `json:"metadata"`
}

func (a *API) handleInteractionCreate(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.UserID == "" || !models.ValidInteractionType(req.Type) || req.Content == "" || len(req.Content) > maxContentBytes {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	st := a.orch.CurrentState()
	if !st.Live || st.Show == nil {
		writeError(w, http.StatusConflict, "no_active_show")
		return
	}

	in := &models.CommunityInteraction{
		ID:        uuid.NewString(),
		ShowID:    st.Show.ID,
		UserID:    req.UserID,
		Type:      req.Type,
		Content:   req.Content,
		Metadata:  req.Metadata,
		CreatedAt: a.clock.Now().UTC(),
	}
	if st.Segment != nil && st.Segment.Status == models.SegmentLive {
		segID := st.Segment.ID
		in.SegmentID = &segID
	}
	if err := a.store.CreateInteraction(r.Context(), in); err != nil {
		a.logger.Error().Err(err).Msg("record interaction failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventInteraction, events.Payload{
		"interaction_id": in.ID,
		"show_id":        in.ShowID,
		"type":           string(in.Type),
		"user_id":        in.UserID,
		"content":        in.Content,
	})
	writeJSON(w, http.StatusCreated, in)
}

// roundRevealer is implemented by the GAMBA generator.
type roundRevealer interface {
	Reveal(roundID string) (segments.Round, error)
}

func (a *API) handleGambaRound(w http.ResponseWriter, r *http.Request) {
	g, ok := a.orch.Registry().Lookup(rotation.KindGamba)
	rev, isRevealer := g.(roundRevealer)
	if !ok || !isRevealer {
		writeError(w, http.StatusNotFound, "gamba_unavailable")
		return
	}

	round, err := rev.Reveal(chi.URLParam(r, "roundID"))
	switch {
	case errors.Is(err, segments.ErrUnknownRound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, segments.ErrBettingOpen):
		writeJSON(w, http.StatusOK, map[string]any{"round": round, "status": "betting_open"})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"round": round, "status": "revealed"})
	}
}

func (a *API) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		writeError(w, http.StatusNotFound, "cache_unavailable")
		return
	}
	if err := a.cache.FlushAll(r.Context()); err != nil {
		a.logger.Error().Err(err).Msg("cache flush failed")
		writeError(w, http.StatusInternalServerError, "cache_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func userID(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}
