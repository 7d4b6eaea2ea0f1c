package segments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/pumpfun"
	"github.com/friendsincode/tokencast/internal/swarm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLaunchLookback = 5 * time.Minute
	defaultMaxLaunches    = 3
)

// TokenLaunch covers the newest pump.fun launches, each with a SWARM read
// when the analyzer is available.
type TokenLaunch struct {
	Launches LaunchSource
	Swarm    swarm.Analyzer
	Lookback time.Duration
	Max      int
	Logger   zerolog.Logger
}

// Generate implements generator.Generator.
func (g *TokenLaunch) Generate(ctx context.Context, in generator.Context) (*generator.Output, error) {
	lookback := g.Lookback
	if lookback <= 0 {
		lookback = defaultLaunchLookback
	}
	max := g.Max
	if max <= 0 {
		max = defaultMaxLaunches
	}

	launches, err := g.Launches.DetectLaunches(ctx, lookback)
	if err != nil {
		return nil, fmt.Errorf("detect launches: %w", err)
	}
	if len(launches) > max {
		launches = launches[:max]
	}
	if len(launches) == 0 {
		return &generator.Output{
			SpeakerNotes: quietLaunchNotes(lookback),
			Metadata:     map[string]any{"launch_count": 0},
		}, nil
	}

	analyses := g.analyze(ctx, launches)

	featured := make([]map[string]any, 0, len(launches))
	var rendered []map[string]any
	for i, l := range launches {
		featured = append(featured, map[string]any{
			"ticker":         l.Ticker,
			"token_address":  l.TokenAddress,
			"name":           l.Name,
			"market_cap_usd": l.MarketCapUSD,
			"discovered_at":  l.DiscoveredAt,
		})
		if analyses[i] != nil {
			rendered = append(rendered, analysisMap(analyses[i]))
		}
	}

	return &generator.Output{
		SpeakerNotes:  formatLaunchNotes(launches, analyses, lookback),
		FeaturedItems: featured,
		Analyses:      rendered,
		VisualData:    map[string]any{"layout": "launch_board", "tokens": featured},
		Metadata:      map[string]any{"launch_count": len(launches)},
	}, nil
}

// analyze looks up every launch concurrently. A failed lookup leaves a nil
// slot; the launch is still covered without analysis.
func (g *TokenLaunch) analyze(ctx context.Context, launches []pumpfun.Launch) []*swarm.Analysis {
	out := make([]*swarm.Analysis, len(launches))
	if g.Swarm == nil {
		return out
	}

	var eg errgroup.Group
	for i, l := range launches {
		eg.Go(func() error {
			a, err := g.Swarm.AnalyzeToken(ctx, l.Ticker, l.TokenAddress)
			if err != nil {
				g.Logger.Warn().Err(err).Str("ticker", l.Ticker).Msg("launch analysis failed")
				return nil
			}
			out[i] = a
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func quietLaunchNotes(lookback time.Duration) string {
	return fmt.Sprintf(`TOKEN LAUNCH LIVE

No new launches detected in the past %d minutes.
The pump.fun pipeline is quiet right now.

We'll check back next segment for fresh deployments.`, int(lookback/time.Minute))
}

func formatLaunchNotes(launches []pumpfun.Launch, analyses []*swarm.Analysis, lookback time.Duration) string {
	var b strings.Builder
	b.WriteString("=== TOKEN LAUNCH LIVE ===\n\n")
	fmt.Fprintf(&b, "Detected %d fresh launches in the past %d minutes:\n\n", len(launches), int(lookback/time.Minute))

	for i, l := range launches {
		fmt.Fprintf(&b, "%d. $%s\n", i+1, l.Ticker)
		if l.Name != "" {
			fmt.Fprintf(&b, "   Name: %s\n", l.Name)
		}
		fmt.Fprintf(&b, "   Address: %s\n", shortAddress(l.TokenAddress))
		fmt.Fprintf(&b, "   Market Cap: %s\n", formatUSD(l.MarketCapUSD))
		if a := analyses[i]; a != nil {
			fmt.Fprintf(&b, "   Regime: %s\n", orUnknown(a.Regime))
			fmt.Fprintf(&b, "   Narrative: %s\n", orUnknown(a.NarrativePhase))
			fmt.Fprintf(&b, "   Risk: %.2f (%s)\n", a.RiskScore, riskLabel(a.RiskScore))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
