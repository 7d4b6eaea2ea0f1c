package segments

import (
	"context"
	"fmt"
	"strings"

	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/swarm"
)

// DefaultAnalysisTicker is analysed when nothing else is featured.
const DefaultAnalysisTicker = "PEPE"

// SwarmAnalysis is a deep dive on one token.
type SwarmAnalysis struct {
	Swarm swarm.Analyzer
}

// Generate implements generator.Generator.
func (g *SwarmAnalysis) Generate(ctx context.Context, in generator.Context) (*generator.Output, error) {
	tick, addr := pickToken(in)

	a, err := g.Swarm.AnalyzeToken(ctx, tick, addr)
	if err != nil {
		return nil, err
	}

	return &generator.Output{
		SpeakerNotes:  formatSwarmAnalysis(tick, a),
		FeaturedItems: []map[string]any{{"ticker": tick, "token_address": addr}},
		Analyses:      []map[string]any{analysisMap(a)},
		VisualData: map[string]any{
			"layout":     "deep_dive",
			"ticker":     tick,
			"regime":     orUnknown(a.Regime),
			"risk_score": a.RiskScore,
		},
		Metadata: map[string]any{"analyzed_token": tick},
	}, nil
}

// pickToken prefers an explicitly featured token, then whatever the previous
// segment featured, then the default.
func pickToken(in generator.Context) (string, string) {
	for _, t := range in.FeaturedTokens {
		if t = ticker(t); t != "" {
			return t, ""
		}
	}
	if in.Previous != nil {
		for _, item := range in.Previous.FeaturedItems {
			t, _ := item["ticker"].(string)
			if t = ticker(t); t != "" {
				addr, _ := item["token_address"].(string)
				return t, addr
			}
		}
	}
	return DefaultAnalysisTicker, ""
}

func formatSwarmAnalysis(tick string, a *swarm.Analysis) string {
	divergence := "None"
	if a.DivergenceDetected {
		divergence = "DETECTED"
	}
	position := a.PositionRecommendation
	if position == "" {
		position = "None"
	}
	azoka := a.AzokaResponse
	if azoka == "" {
		azoka = "Pass"
	}

	lines := []string{
		"=== SWARM ANALYSIS ===",
		"",
		"Token: $" + tick,
		"",
		"PERCEPTRON (Charts & Risk):",
		"  - Regime: " + orUnknown(a.Regime),
		fmt.Sprintf("  - Confidence: %.1f%%", a.Confidence*100),
		fmt.Sprintf("  - Risk Score: %.2f", a.RiskScore),
		"  - Position: " + position,
		"",
		"FOOLIO (Social & Narrative):",
		"  - Narrative Phase: " + orUnknown(a.NarrativePhase),
		"  - Social Sentiment: " + sentiment(a.NarrativePhase),
		"",
		"AZOKA (Divergence & Judgment):",
		"  - Response: " + azoka,
		"  - Divergence: " + divergence,
		"  - Chromatic State: " + orUnknown(a.ChromaticState),
		"",
		"FINAL ASSESSMENT:",
		"  " + Assess(a),
	}
	return strings.Join(lines, "\n")
}

func sentiment(phase string) string {
	p := strings.ToLower(phase)
	switch {
	case strings.Contains(p, "peak"), strings.Contains(p, "euphoria"):
		return "Euphoric"
	case strings.Contains(p, "discovery"), strings.Contains(p, "validation"):
		return "Building"
	case strings.Contains(p, "doubt"), strings.Contains(p, "decline"):
		return "Declining"
	default:
		return "Neutral"
	}
}

// Assess turns an analysis into a one-line call.
func Assess(a *swarm.Analysis) string {
	regime := strings.ToLower(a.Regime)
	switch {
	case a.DivergenceDetected:
		return "CAUTION: Divergence detected. Price and narrative misaligned."
	case strings.Contains(regime, "breakout") && a.RiskScore < 0.5:
		return "OPPORTUNITY: Low risk breakout forming."
	case strings.Contains(regime, "euphoria") || a.RiskScore > 0.7:
		return "HIGH RISK: Euphoric conditions, consider taking profits."
	case strings.Contains(regime, "accumulation"):
		return "WATCH: Accumulation phase, build position carefully."
	default:
		return "NEUTRAL: No strong signal, monitor for changes."
	}
}
