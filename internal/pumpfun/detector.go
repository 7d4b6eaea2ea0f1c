/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pumpfun polls pump.fun for fresh token launches.
package pumpfun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName = "pumpfun"

	// DefaultBaseURL is the public frontend API.
	DefaultBaseURL = "https://frontend-api.pump.fun"

	pageSize     = 50
	maxSeenCache = 10000
)

// Launch is a token first seen by the detector.
type Launch struct {
	TokenAddress        string         `json:"token_address"`
	Ticker              string         `json:"ticker"`
	Name                string         `json:"name,omitempty"`
	Creator             string         `json:"creator,omitempty"`
	BondingCurveAddress string         `json:"bonding_curve_address,omitempty"`
	MarketCapUSD        float64        `json:"market_cap_usd"`
	CreatedAt           time.Time      `json:"created_at"`
	DiscoveredAt        time.Time      `json:"discovered_at"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// coin is the upstream listing shape.
type coin struct {
	Mint             string  `json:"mint"`
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Description      string  `json:"description"`
	ImageURI         string  `json:"image_uri"`
	Creator          string  `json:"creator"`
	BondingCurve     string  `json:"bonding_curve"`
	CreatedTimestamp int64   `json:"created_timestamp"`
	USDMarketCap     float64 `json:"usd_market_cap"`
}

// Detector reports launches it has not reported before.
type Detector struct {
	baseURL    string
	httpClient *http.Client
	clock      clock.Clock

	mu       sync.Mutex
	seen     map[string]struct{}
	seenList []string
}

// NewDetector creates a detector for baseURL, or DefaultBaseURL when empty.
func NewDetector(baseURL string, timeout time.Duration, clk clock.Clock) (*Detector, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pump.fun url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Detector{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clock: clk,
		seen:  make(map[string]struct{}),
	}, nil
}

// DetectLaunches returns tokens created within lookback that have not been
// returned by an earlier call, newest first.
func (d *Detector) DetectLaunches(ctx context.Context, lookback time.Duration) ([]Launch, error) {
	coins, err := d.fetchLatest(ctx)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	cutoff := now.Add(-lookback)

	d.mu.Lock()
	defer d.mu.Unlock()

	launches := make([]Launch, 0, len(coins))
	for _, c := range coins {
		if c.Mint == "" {
			continue
		}
		created := time.UnixMilli(c.CreatedTimestamp).UTC()
		if c.CreatedTimestamp > 0 && created.Before(cutoff) {
			continue
		}
		if _, ok := d.seen[c.Mint]; ok {
			continue
		}
		d.markSeenLocked(c.Mint)

		launches = append(launches, Launch{
			TokenAddress:        c.Mint,
			Ticker:              strings.ToUpper(c.Symbol),
			Name:                c.Name,
			Creator:             c.Creator,
			BondingCurveAddress: c.BondingCurve,
			MarketCapUSD:        c.USDMarketCap,
			CreatedAt:           created,
			DiscoveredAt:        now,
			Metadata: map[string]any{
				"description": c.Description,
				"image":       c.ImageURI,
			},
		})
	}
	return launches, nil
}

// markSeenLocked records addr, evicting the oldest entry past the cap.
func (d *Detector) markSeenLocked(addr string) {
	d.seen[addr] = struct{}{}
	d.seenList = append(d.seenList, addr)
	if len(d.seenList) > maxSeenCache {
		delete(d.seen, d.seenList[0])
		d.seenList = d.seenList[1:]
	}
}

func (d *Detector) fetchLatest(ctx context.Context) ([]coin, error) {
	q := url.Values{}
	q.Set("offset", "0")
	q.Set("limit", fmt.Sprint(pageSize))
	q.Set("sort", "created_timestamp")
	q.Set("order", "DESC")
	q.Set("includeNsfw", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/coins?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return nil, fmt.Errorf("fetch launches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch launches: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var coins []coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return nil, fmt.Errorf("decode launches: %w", err)
	}
	telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "ok").Inc()
	return coins, nil
}
