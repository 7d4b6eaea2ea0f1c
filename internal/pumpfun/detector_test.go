package pumpfun

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
)

func TestDetectLaunchesFiltersAndDeduplicates(t *testing.T) {
	now := time.Date(2026, 4, 20, 16, 20, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	recent := now.Add(-2 * time.Minute).UnixMilli()
	old := now.Add(-30 * time.Minute).UnixMilli()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins" || r.URL.Query().Get("sort") != "created_timestamp" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `[
			{"mint":"mintA","symbol":"gizmo","name":"Gizmo","created_timestamp":%d,"usd_market_cap":4200.5},
			{"mint":"mintB","symbol":"EYE","created_timestamp":%d},
			{"mint":"","symbol":"NOMINT","created_timestamp":%d}
		]`, recent, old, recent)
	}))
	defer srv.Close()

	d, err := NewDetector(srv.URL, time.Second, clk)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	launches, err := d.DetectLaunches(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(launches) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(launches))
	}
	l := launches[0]
	if l.TokenAddress != "mintA" || l.Ticker != "GIZMO" || l.MarketCapUSD != 4200.5 {
		t.Fatalf("unexpected launch %+v", l)
	}
	if !l.DiscoveredAt.Equal(now) {
		t.Fatalf("unexpected discovery time %v", l.DiscoveredAt)
	}

	again, err := d.DetectLaunches(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("detect again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected seen launches to be skipped, got %d", len(again))
	}
}

func TestDetectLaunchesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cloudflare", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := NewDetector(srv.URL, time.Second, nil)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if _, err := d.DetectLaunches(context.Background(), time.Minute); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestSeenCacheIsBounded(t *testing.T) {
	d, err := NewDetector("", 0, nil)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if d.baseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %s", d.baseURL)
	}

	for i := 0; i < maxSeenCache+10; i++ {
		d.markSeenLocked(fmt.Sprintf("mint-%d", i))
	}
	if len(d.seen) != maxSeenCache || len(d.seenList) != maxSeenCache {
		t.Fatalf("expected cache capped at %d, got %d/%d", maxSeenCache, len(d.seen), len(d.seenList))
	}
	if _, ok := d.seen["mint-0"]; ok {
		t.Fatal("expected oldest entry evicted")
	}
}
