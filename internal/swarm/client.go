/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package swarm is a client for the SWARM market intelligence API.
package swarm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "swarm"

// ErrNotConfigured is returned when no API URL was provided.
var ErrNotConfigured = errors.New("swarm api url not configured")

// Analysis is the combined agent verdict for a token.
type Analysis struct {
	Ticker                 string  `json:"ticker"`
	TokenAddress           string  `json:"token_address,omitempty"`
	Regime                 string  `json:"regime"`
	Confidence             float64 `json:"confidence"`
	RiskScore              float64 `json:"risk_score"`
	PositionRecommendation string  `json:"position_recommendation,omitempty"`
	NarrativePhase         string  `json:"narrative_phase"`
	AzokaResponse          string  `json:"azoka_response,omitempty"`
	DivergenceDetected     bool    `json:"divergence_detected"`
	ChromaticState         string  `json:"chromatic_state,omitempty"`
}

// QueryResult is the answer to a free-form question.
type QueryResult struct {
	Response       string `json:"response"`
	NarrativePhase string `json:"narrative_phase,omitempty"`
	Ticker         string `json:"ticker,omitempty"`
}

// Analyzer is implemented by the client and by caching wrappers around it.
type Analyzer interface {
	AnalyzeToken(ctx context.Context, ticker, address string) (*Analysis, error)
	Query(ctx context.Context, question, ticker string) (*QueryResult, error)
}

// Client calls the SWARM HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. apiKey is sent as a bearer token
// when set.
func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid swarm url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// AnalyzeToken runs the full agent analysis for a token.
func (c *Client) AnalyzeToken(ctx context.Context, ticker, address string) (*Analysis, error) {
	body := map[string]string{"ticker": ticker, "token_address": address}
	var out Analysis
	if err := c.post(ctx, "/api/analyze-token", body, &out); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", ticker, err)
	}
	if out.Ticker == "" {
		out.Ticker = ticker
	}
	if out.TokenAddress == "" {
		out.TokenAddress = address
	}
	return &out, nil
}

// Query asks a free-form question, optionally scoped to a ticker.
func (c *Client) Query(ctx context.Context, question, ticker string) (*QueryResult, error) {
	body := map[string]string{"question": question, "ticker": ticker}
	var out QueryResult
	if err := c.post(ctx, "/api/swarm/query", body, &out); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "ok").Inc()
	return nil
}
