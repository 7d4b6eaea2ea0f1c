package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tokencast/internal/config"
	"github.com/friendsincode/tokencast/internal/rotation"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:           "test",
		HTTPBind:              "127.0.0.1",
		HTTPPort:              0,
		MetricsBind:           "127.0.0.1:0",
		DBBackend:             config.DatabaseSQLite,
		DBDSN:                 filepath.Join(t.TempDir(), "tokencast.db"),
		JWTSigningKey:         "test-secret",
		ShowAutoTransition:    true,
		ShowEstimatedDuration: time.Hour,
		GeneratorTimeout:      5 * time.Second,
	}
}

func TestServer_StartsShowAndServesRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShowAutoStart = true

	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["live"] != true {
		t.Fatalf("expected auto-started show, got %v", health)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tokencast/segments/current", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("current segment: %d %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected security headers on API routes")
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/tokencast/end", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected mutating route to require auth, got %d", rr.Code)
	}
}

func TestServer_RecoversOrphanedShow(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShowAutoStart = true

	first, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Simulate a crash: stop workers and release the database without ending the show.
	first.stopBackgroundWorkers()
	if err := first.runClosers(); err != nil {
		t.Fatalf("close resources: %v", err)
	}

	cfg.ShowAutoStart = false
	second, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	live, err := second.store.FindLiveShows(context.Background())
	if err != nil {
		t.Fatalf("FindLiveShows: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected orphaned show to be completed, %d still live", len(live))
	}
	if second.orchestrator.CurrentState().Live {
		t.Fatalf("recovered show must not resume")
	}
}

func TestServer_RotationFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "rotation.yaml")
	doc := "rotation:\n  - kind: GAMBA\n    seconds: 90\n  - kind: community_interaction\n"
	if err := writeFile(path, doc); err != nil {
		t.Fatalf("write rotation: %v", err)
	}
	cfg.ShowRotationFile = path

	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	show := srv.ShowDefaults()
	if len(show.Rotation) != 2 || show.Rotation[0].Kind != rotation.KindGamba || show.Rotation[0].Duration != 90*time.Second {
		t.Fatalf("unexpected rotation %+v", show.Rotation)
	}
	show.Rotation[0].Duration = time.Second
	if srv.ShowDefaults().Rotation[0].Duration != 90*time.Second {
		t.Fatalf("ShowDefaults must hand out independent copies")
	}
}

func TestServer_RejectsBadRotationFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShowRotationFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected missing rotation file to fail startup")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
