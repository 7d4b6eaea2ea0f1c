/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telegram sends show announcements through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName = "telegram"

	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"
)

// ErrNoToken is returned when the bot token is empty.
var ErrNoToken = errors.New("telegram bot token not configured")

// Notifier posts messages to chats with sendMessage.
type Notifier struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNotifier creates a notifier. apiURL defaults to DefaultAPIURL.
func NewNotifier(apiURL, token string, logger zerolog.Logger) (*Notifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}
	apiURL = strings.TrimSuffix(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Notifier{
		apiURL: apiURL,
		token:  token,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends text to every chat. Delivery to one chat does not depend on
// another; all failures are returned joined.
func (n *Notifier) Notify(ctx context.Context, chatIDs []string, text string) error {
	var errs []error
	for _, id := range chatIDs {
		if err := n.send(ctx, id, text); err != nil {
			n.logger.Warn().Err(err).Str("chat_id", id).Msg("send message failed")
			errs = append(errs, fmt.Errorf("chat %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("send message: %w", uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "error").Inc()
		return fmt.Errorf("status %d: %s", resp.StatusCode, out.Description)
	}
	telemetry.UpstreamRequestsTotal.WithLabelValues(serviceName, "ok").Inc()
	return nil
}
