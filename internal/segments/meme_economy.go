package segments

import (
	"context"
	"fmt"
	"strings"

	"github.com/friendsincode/tokencast/internal/generator"
	"github.com/friendsincode/tokencast/internal/swarm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MemeCoin is a coin tracked by the meme economy segment.
type MemeCoin struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// DefaultMemeCoins is the watch list, most prominent first.
var DefaultMemeCoins = []MemeCoin{
	{Ticker: "PEPE", Name: "Pepe"},
	{Ticker: "DOGE", Name: "Dogecoin"},
	{Ticker: "SHIB", Name: "Shiba Inu"},
	{Ticker: "WIF", Name: "Dogwifhat"},
	{Ticker: "BONK", Name: "Bonk"},
}

const defaultMemeCount = 3

// MemeEconomy reads the narrative phase of the top meme coins.
type MemeEconomy struct {
	Swarm  swarm.Analyzer
	Coins  []MemeCoin
	Count  int
	Logger zerolog.Logger
}

// Generate implements generator.Generator.
func (g *MemeEconomy) Generate(ctx context.Context, in generator.Context) (*generator.Output, error) {
	coins := g.Coins
	if len(coins) == 0 {
		coins = DefaultMemeCoins
	}
	n := g.Count
	if n <= 0 {
		n = defaultMemeCount
	}
	if len(coins) > n {
		coins = coins[:n]
	}

	phases := make([]string, len(coins))
	var eg errgroup.Group
	for i, c := range coins {
		eg.Go(func() error {
			res, err := g.Swarm.Query(ctx, fmt.Sprintf("What's the narrative phase on $%s?", c.Ticker), c.Ticker)
			if err != nil {
				g.Logger.Warn().Err(err).Str("ticker", c.Ticker).Msg("narrative query failed")
				return nil
			}
			phases[i] = orUnknown(res.NarrativePhase)
			return nil
		})
	}
	_ = eg.Wait()

	var b strings.Builder
	b.WriteString("=== MEME ECONOMY ===\n\nTracking narrative phases across top meme coins:\n\n")

	featured := make([]map[string]any, 0, len(coins))
	var analyses []map[string]any
	for i, c := range coins {
		featured = append(featured, map[string]any{"ticker": c.Ticker, "name": c.Name})
		if phases[i] == "" {
			continue
		}
		analyses = append(analyses, map[string]any{"token": c.Ticker, "narrative_phase": phases[i]})
		fmt.Fprintf(&b, "$%s (%s)\n  Narrative: %s\n  %s\n\n", c.Ticker, c.Name, phases[i], phaseCommentary(phases[i]))
	}
	if len(analyses) == 0 {
		b.WriteString("Narrative reads are unavailable right now.\n\n")
	}
	b.WriteString("The meme economy is constantly evolving, stay vigilant!")

	return &generator.Output{
		SpeakerNotes:  b.String(),
		FeaturedItems: featured,
		Analyses:      analyses,
		Metadata:      map[string]any{"meme_count": len(coins), "analyzed": len(analyses)},
	}, nil
}
