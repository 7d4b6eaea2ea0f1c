package cache

import (
	"context"

	"github.com/friendsincode/tokencast/internal/swarm"
)

// Analyzer serves SWARM lookups from the cache and fills it on a miss.
type Analyzer struct {
	inner swarm.Analyzer
	cache *Cache
}

// NewAnalyzer wraps inner with c.
func NewAnalyzer(inner swarm.Analyzer, c *Cache) *Analyzer {
	return &Analyzer{inner: inner, cache: c}
}

// AnalyzeToken implements swarm.Analyzer.
func (a *Analyzer) AnalyzeToken(ctx context.Context, ticker, address string) (*swarm.Analysis, error) {
	if hit, ok := a.cache.GetAnalysis(ctx, ticker, address); ok {
		return hit, nil
	}
	res, err := a.inner.AnalyzeToken(ctx, ticker, address)
	if err != nil {
		return nil, err
	}
	if err := a.cache.SetAnalysis(ctx, ticker, address, res); err != nil {
		a.cache.logger.Debug().Err(err).Str("ticker", ticker).Msg("cache analysis")
	}
	return res, nil
}

// Query implements swarm.Analyzer.
func (a *Analyzer) Query(ctx context.Context, question, ticker string) (*swarm.QueryResult, error) {
	if hit, ok := a.cache.GetQuery(ctx, question, ticker); ok {
		return hit, nil
	}
	res, err := a.inner.Query(ctx, question, ticker)
	if err != nil {
		return nil, err
	}
	if err := a.cache.SetQuery(ctx, question, ticker, res); err != nil {
		a.cache.logger.Debug().Err(err).Str("ticker", ticker).Msg("cache query")
	}
	return res, nil
}
