package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/tokencast/internal/auth"
	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/db"
	"github.com/friendsincode/tokencast/internal/events"
	"github.com/friendsincode/tokencast/internal/orchestrator"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/segments"
	"github.com/friendsincode/tokencast/internal/store"
)

var testSecret = []byte("test-secret")

type fakeFlusher struct {
	calls int
	err   error
}

func (f *fakeFlusher) FlushAll(ctx context.Context) error {
	f.calls++
	return f.err
}

type testEnv struct {
	api    *API
	router http.Handler
	orch   *orchestrator.Orchestrator
	bus    *events.Bus
	clock  *clock.Fake
	store  store.Store
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func newTestEnv(t *testing.T, cache CacheFlusher) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 4, 20, 16, 20, 0, 0, time.UTC))
	st := store.NewGormStore(setupTestDB(t))
	bus := events.NewBus()
	opts := orchestrator.DefaultOptions()
	opts.BroadcastOnStart = false
	orch := orchestrator.New(orchestrator.Deps{
		Store:  st,
		Bus:    bus,
		Clock:  clk,
		Logger: zerolog.Nop(),
	}, opts)
	orch.RegisterGenerator(rotation.KindGamba, segments.NewGamba(nil, clk))
	t.Cleanup(func() { _ = orch.Close(context.Background()) })

	a := New(Deps{
		Orchestrator: orch,
		Store:        st,
		Bus:          bus,
		Cache:        cache,
		Clock:        clk,
		JWTSecret:    testSecret,
		ShowDefaults: func() *orchestrator.ShowConfig {
			return &orchestrator.ShowConfig{
				Rotation: []rotation.Entry{
					{Kind: rotation.KindTokenLaunchLive, Duration: 5 * time.Second},
					{Kind: rotation.KindGamba, Duration: 400 * time.Second},
					{Kind: rotation.KindSwarmAnalysis, Duration: 5 * time.Second},
				},
				EstimatedDuration: time.Hour,
			}
		},
		Logger: zerolog.Nop(),
	})
	r := chi.NewRouter()
	a.Routes(r)
	return &testEnv{api: a, router: r, orch: orch, bus: bus, clock: clk, store: st}
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, auth.Claims{UserID: "u1", Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["error"]; got != code {
		t.Fatalf("expected error %q, got %v", code, got)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestStart_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/start", "", nil), http.StatusUnauthorized, "unauthorized")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/start", token(t, auth.RoleViewer), nil), http.StatusForbidden, "insufficient_role")
	if env.orch.CurrentState().Live {
		t.Fatalf("show should not have started")
	}
}

func TestStartAndEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)

	rr := env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	seg, _ := body["segment"].(map[string]any)
	if seg["kind"] != string(rotation.KindTokenLaunchLive) || seg["segment_number"] != float64(1) {
		t.Fatalf("unexpected first segment: %v", seg)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil), http.StatusConflict, "show_already_running")

	rr = env.do(t, http.MethodPost, "/api/v1/tokencast/end", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	show, _ := decode(t, rr)["show"].(map[string]any)
	if show["status"] != "completed" {
		t.Fatalf("expected completed show, got %v", show["status"])
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/end", admin, nil), http.StatusConflict, "no_active_show")
}

func TestStart_CustomRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)

	secs := 30
	advance := true
	rr := env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, startRequest{
		Rotation: []rotationEntryRequest{
			{Kind: "meme_economy"},
			{Kind: "INTERMISSION", Seconds: &secs},
		},
		AdvanceFirst: &advance,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	seg, ok := env.orch.CurrentSegment()
	if !ok {
		t.Fatalf("expected live segment")
	}
	if seg.Kind != rotation.KindIntermission || seg.PlannedSeconds != 30 {
		t.Fatalf("expected 30s INTERMISSION first, got %s %ds", seg.Kind, seg.PlannedSeconds)
	}
}

func TestStart_InvalidRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)
	negative := -1
	zero := 0

	tests := []struct {
		name string
		body any
	}{
		{"unknown kind", startRequest{Rotation: []rotationEntryRequest{{Kind: "NOPE"}}}},
		{"negative seconds", startRequest{Rotation: []rotationEntryRequest{{Kind: "GAMBA", Seconds: &negative}}}},
		{"zero estimate", startRequest{EstimatedMinutes: &zero}},
		{"malformed", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, tt.body), http.StatusBadRequest, "invalid_request")
		})
	}
	if env.orch.CurrentState().Live {
		t.Fatalf("invalid requests must not start a show")
	}
}

func TestTransition(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)

	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/segments/transition", admin, nil), http.StatusConflict, "no_active_show")

	if rr := env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil); rr.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}
	first, _ := env.orch.CurrentSegment()

	rr := env.do(t, http.MethodPost, "/api/v1/tokencast/segments/transition", admin, map[string]string{"from_segment_id": first.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	seg, _ := decode(t, rr)["segment"].(map[string]any)
	if seg["segment_number"] != float64(2) || seg["kind"] != string(rotation.KindGamba) {
		t.Fatalf("unexpected second segment: %v", seg)
	}

	// A second request naming the same segment arrives after it was replaced.
	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/segments/transition", admin, map[string]string{"from_segment_id": first.ID}), http.StatusConflict, "stale_transition")

	rr = env.do(t, http.MethodPost, "/api/v1/tokencast/segments/transition", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if cur, _ := env.orch.CurrentSegment(); cur.SegmentNumber != 3 {
		t.Fatalf("expected segment 3, got %d", cur.SegmentNumber)
	}
}

func TestCurrentAndUpcoming(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/tokencast/current", "", nil))
	if body["live"] != false {
		t.Fatalf("expected not live, got %v", body)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/v1/tokencast/segments/current", "", nil), http.StatusNotFound, "no_live_segment")

	env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil)

	body = decode(t, env.do(t, http.MethodGet, "/api/v1/tokencast/current", "", nil))
	if body["live"] != true {
		t.Fatalf("expected live, got %v", body)
	}
	if up, _ := body["upcoming"].([]any); len(up) != defaultUpcoming {
		t.Fatalf("expected %d upcoming, got %v", defaultUpcoming, body["upcoming"])
	}

	rr := env.do(t, http.MethodGet, "/api/v1/tokencast/upcoming?count=4", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	up, _ := decode(t, rr)["upcoming"].([]any)
	want := []string{"GAMBA", "SWARM_ANALYSIS", "TOKEN_LAUNCH_LIVE", "GAMBA"}
	if len(up) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), up)
	}
	for i, e := range up {
		if kind := e.(map[string]any)["kind"]; kind != want[i] {
			t.Fatalf("upcoming[%d]: expected %s, got %v", i, want[i], kind)
		}
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/tokencast/upcoming?count=x", "", nil), http.StatusBadRequest, "invalid_request")

	rr = env.do(t, http.MethodGet, "/api/v1/tokencast/segments/current", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if remaining := decode(t, rr)["time_remaining_seconds"]; remaining != float64(5) {
		t.Fatalf("expected 5s remaining, got %v", remaining)
	}
}

func TestShows(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)
	env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil)
	show := env.orch.CurrentState().Show

	list, _ := decode(t, env.do(t, http.MethodGet, "/api/v1/tokencast/shows", "", nil))["shows"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 show, got %d", len(list))
	}

	rr := env.do(t, http.MethodGet, "/api/v1/tokencast/shows/"+show.ID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode(t, rr)
	if segs, _ := got["segments"].([]any); len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %v", got["segments"])
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/tokencast/shows/missing", "", nil), http.StatusNotFound, "not_found")
	expectError(t, env.do(t, http.MethodGet, "/api/v1/tokencast/shows?limit=0", "", nil), http.StatusBadRequest, "invalid_request")
}

func TestInteractions(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)
	operator := token(t, auth.RoleOperator)
	valid := map[string]any{"user_id": "tg:42", "type": "token_mention", "content": "$wif"}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/interactions", operator, valid), http.StatusConflict, "no_active_show")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/interactions", token(t, auth.RoleViewer), valid), http.StatusForbidden, "insufficient_role")

	env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil)
	sub := env.bus.Subscribe(events.EventInteraction)
	defer env.bus.Unsubscribe(events.EventInteraction, sub)

	rr := env.do(t, http.MethodPost, "/api/v1/tokencast/interactions", operator, valid)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	got := decode(t, rr)
	seg, _ := env.orch.CurrentSegment()
	if got["segment_id"] != seg.ID {
		t.Fatalf("expected interaction tied to %s, got %v", seg.ID, got["segment_id"])
	}

	select {
	case payload := <-sub:
		if payload["content"] != "$wif" {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected interaction event")
	}

	stored, err := env.store.ListInteractions(context.Background(), env.orch.CurrentState().Show.ID, time.Time{})
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored interaction, got %d", len(stored))
	}

	for _, bad := range []map[string]any{
		{"user_id": "tg:42", "type": "shout", "content": "hi"},
		{"user_id": "", "type": "comment", "content": "hi"},
		{"user_id": "tg:42", "type": "comment", "content": "   "},
		{"user_id": "tg:42", "type": "comment", "content": strings.Repeat("x", maxContentBytes+1)},
	} {
		expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/interactions", operator, bad), http.StatusBadRequest, "invalid_request")
	}
}

func TestGenerators(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/v1/tokencast/generators", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	list, _ := decode(t, rr)["generators"].([]any)
	if len(list) != len(rotation.DefaultDurations) {
		t.Fatalf("expected %d kinds, got %d", len(rotation.DefaultDurations), len(list))
	}
	for _, item := range list {
		g := item.(map[string]any)
		wantRegistered := g["kind"] == string(rotation.KindGamba)
		if g["registered"] != wantRegistered {
			t.Fatalf("%v: expected registered=%v", g["kind"], wantRegistered)
		}
	}
}

func TestGambaRound(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := token(t, auth.RoleAdmin)
	env.do(t, http.MethodPost, "/api/v1/tokencast/start", admin, nil)
	env.do(t, http.MethodPost, "/api/v1/tokencast/segments/transition", admin, nil)

	seg, _ := env.orch.CurrentSegment()
	roundID, _ := seg.Content.Metadata["round_id"].(string)
	if roundID == "" {
		t.Fatalf("expected round id in %v", seg.Content.Metadata)
	}

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/tokencast/gamba/rounds/"+roundID, "", nil))
	round, _ := body["round"].(map[string]any)
	if body["status"] != "betting_open" || round["house_choice"] != nil {
		t.Fatalf("house choice must stay hidden while betting is open: %v", body)
	}

	env.clock.Set(env.clock.Now().Add(241 * time.Second))
	body = decode(t, env.do(t, http.MethodGet, "/api/v1/tokencast/gamba/rounds/"+roundID, "", nil))
	round, _ = body["round"].(map[string]any)
	choice, _ := round["house_choice"].(string)
	nonce, _ := round["nonce"].(string)
	if body["status"] != "revealed" || choice == "" {
		t.Fatalf("expected revealed round, got %v", body)
	}
	if segments.Commit(segments.Choice(choice), nonce, seg.ShowID, seg.SegmentNumber) != round["commitment"] {
		t.Fatalf("revealed move does not match commitment")
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/tokencast/gamba/rounds/rps_x_1", "", nil), http.StatusNotFound, "not_found")
}

func TestCacheFlush(t *testing.T) {
	admin := token(t, auth.RoleAdmin)

	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/cache/flush", admin, nil), http.StatusNotFound, "cache_unavailable")

	flusher := &fakeFlusher{}
	env = newTestEnv(t, flusher)
	if rr := env.do(t, http.MethodPost, "/api/v1/tokencast/cache/flush", admin, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if flusher.calls != 1 {
		t.Fatalf("expected one flush, got %d", flusher.calls)
	}

	flusher.err = errors.New("redis down")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/tokencast/cache/flush", admin, nil), http.StatusInternalServerError, "cache_error")
}

func TestParseEventTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"segment.start", 1},
		{"segment.start, show.end ,bogus", 2},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseEventTypes(tt.raw); len(got) != tt.want {
				t.Fatalf("parseEventTypes(%q) = %v, want %d types", tt.raw, got, tt.want)
			}
		})
	}
}
