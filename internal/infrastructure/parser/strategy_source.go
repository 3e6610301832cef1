package parser

import (
	"context"
	"fmt"
	"log/slog"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
	"FeedHighlights/internal/scanner"
)

// StrategySource implements ListingSource via a registered scanner strategy.
type StrategySource struct {
	registry *scanner.Registry
	strategy string
	logger   *slog.Logger
}

var _ ports.ListingSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the configured strategy name.
func NewStrategySource(reg *scanner.Registry, strategy string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		strategy: strategy,
		logger:   log,
	}
}

// Listing resolves the strategy and executes one listing read.
func (s *StrategySource) Listing(ctx context.Context, q ports.ListingQuery) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	strategy, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, err
	}

	s.debug("scan listing", "scanner", s.strategy, "subreddit", q.Subreddit, "order", q.Order, "limit", q.Limit)
	results, err := strategy.Scan(ctx, scanner.Request{
		Subreddit: q.Subreddit,
		Order:     q.Order,
		Period:    q.Period,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("scan r/%s with %s: %w", q.Subreddit, s.strategy, err)
	}

	for i := range results {
		if results[i].Subreddit == "" {
			results[i].Subreddit = q.Subreddit
		}
	}
	s.debug("listing produced candidates", "order", q.Order, "count", len(results))
	return results, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
