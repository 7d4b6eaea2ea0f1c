/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package segments holds the content generators for the built-in segment
// kinds. Kinds without a generator here are filled by the orchestrator's
// fallback content.
package segments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/pumpfun"
	"github.com/friendsincode/tokencast/internal/rotation"
	"github.com/friendsincode/tokencast/internal/swarm"
	"github.com/rs/zerolog"
)

// LaunchSource reports fresh token launches.
type LaunchSource interface {
	DetectLaunches(ctx context.Context, lookback time.Duration) ([]pumpfun.Launch, error)
}

// Deps are the collaborators generators draw on. Any of them may be nil.
type Deps struct {
	Swarm    swarm.Analyzer
	Launches LaunchSource
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// RegisterAll installs every generator whose collaborators are available
// and returns the kinds it registered.
func RegisterAll(reg *generator.Registry, deps Deps) []rotation.Kind {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	logger := deps.Logger.With().Str("component", "segments").Logger()

	var kinds []rotation.Kind
	add := func(k rotation.Kind, g generator.Generator) {
		reg.Register(k, g)
		kinds = append(kinds, k)
	}

	if deps.Launches != nil {
		add(rotation.KindTokenLaunchLive, &TokenLaunch{Launches: deps.Launches, Swarm: deps.Swarm, Logger: logger})
	}
	if deps.Swarm != nil {
		add(rotation.KindSwarmAnalysis, &SwarmAnalysis{Swarm: deps.Swarm})
		add(rotation.KindMemeEconomy, &MemeEconomy{Swarm: deps.Swarm, Logger: logger})
	}
	add(rotation.KindCommunityInteraction, CommunityInteraction{})
	add(rotation.KindGamba, NewGamba(deps.Swarm, deps.Clock))

	logger.Info().Int("count", len(kinds)).Msg("segment generators registered")
	return kinds
}

// riskLabel buckets a 0..1 risk score.
func riskLabel(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.4:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// phaseCommentary is a one-line read on a narrative phase.
func phaseCommentary(phase string) string {
	p := strings.ToLower(phase)
	switch {
	case p == "" || p == "unknown":
		return "No strong narrative signal"
	case strings.Contains(p, "discovery"):
		return "Early stage, watch for validation"
	case strings.Contains(p, "validation"):
		return "Building momentum"
	case strings.Contains(p, "peak"):
		return "Peak hype, consider exit timing"
	case strings.Contains(p, "doubt"):
		return "Losing steam"
	case strings.Contains(p, "dead"):
		return "Narrative collapsed"
	default:
		return "Monitoring"
	}
}

func analysisMap(a *swarm.Analysis) map[string]any {
	return map[string]any{
		"token":               a.Ticker,
		"token_address":       a.TokenAddress,
		"regime":              orUnknown(a.Regime),
		"confidence":          a.Confidence,
		"risk_score":          a.RiskScore,
		"narrative_phase":     orUnknown(a.NarrativePhase),
		"divergence_detected": a.DivergenceDetected,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}

func ticker(s string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "$"))
}

func formatUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}
