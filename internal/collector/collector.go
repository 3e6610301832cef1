// Package collector merges the recency and top-of-period listings into one
// deduplicated, time-windowed candidate set.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

// ErrSourceInaccessible is terminal for the run: the feed refused one of the listings.
var ErrSourceInaccessible = errors.New("source inaccessible")

// DefaultWindowDays is the trailing window length used when none is configured.
const DefaultWindowDays = 7

// TopPeriod is the listing period requested for the top-of-period listing.
const TopPeriod = "week"

// Window is an inclusive time range. A zero Until leaves it open-ended.
type Window struct {
	Since time.Time
	Until time.Time
}

// TrailingWindow returns the window starting days before now, in UTC. It has
// no upper bound so posts stamped slightly ahead of the local clock are kept.
func TrailingWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return Window{Since: now.UTC().AddDate(0, 0, -days)}
}

// Contains reports whether t falls inside the window, both ends included.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Since) {
		return false
	}
	return w.Until.IsZero() || !t.After(w.Until)
}

// Request carries the parameters of one collection.
type Request struct {
	Subreddit string
	Window    Window
	ScanLimit int
}

// Stats counts why items were skipped.
type Stats struct {
	Scanned      int
	SkippedAdult int
	Duplicates   int
	OutOfWindow  int
}

// Result is the accepted candidate set in deterministic encounter order.
type Result struct {
	Candidates []domain.Candidate
	Stats      Stats
}

// Collector reads both listings from a ListingSource.
type Collector struct {
	source ports.ListingSource
	logger *slog.Logger
}

// New builds a Collector.
func New(source ports.ListingSource, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: source, logger: logger}
}

// Collect fetches the recency and top listings and merges them. Recency items are
// always processed before top items so the first occurrence of an id wins.
func (c *Collector) Collect(ctx context.Context, req Request) (Result, error) {
	if c.source == nil {
		return Result{}, fmt.Errorf("listing source is not configured")
	}

	var recent, top []domain.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.source.Listing(gctx, ports.ListingQuery{
			Subreddit: req.Subreddit,
			Order:     ports.OrderNew,
			Limit:     req.ScanLimit,
		})
		if err != nil {
			return fmt.Errorf("listing new: %w", err)
		}
		recent = items
		return nil
	})
	g.Go(func() error {
		items, err := c.source.Listing(gctx, ports.ListingQuery{
			Subreddit: req.Subreddit,
			Order:     ports.OrderTop,
			Period:    TopPeriod,
			Limit:     TopLimit(req.ScanLimit),
		})
		if err != nil {
			return fmt.Errorf("listing top: %w", err)
		}
		top = items
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ports.ErrAccessDenied) {
			c.logger.Error("no access to source feed; make sure it is public or the account is approved",
				"subreddit", req.Subreddit, "error", err)
			return Result{}, fmt.Errorf("%w: r/%s: %v", ErrSourceInaccessible, req.Subreddit, err)
		}
		return Result{}, err
	}

	res := Merge(req.Window, recent, top)
	c.logger.Debug("candidates collected",
		"subreddit", req.Subreddit,
		"accepted", len(res.Candidates),
		"scanned", res.Stats.Scanned,
		"adult", res.Stats.SkippedAdult,
		"duplicates", res.Stats.Duplicates,
		"out_of_window", res.Stats.OutOfWindow,
	)
	return res, nil
}

// TopLimit is the scan size used for the top-of-period supplement.
func TopLimit(scanLimit int) int {
	return max(1, scanLimit/2)
}

// Merge applies the adult, dedup and window filters to the listings in the order given.
func Merge(window Window, listings ...[]domain.Candidate) Result {
	var res Result
	seen := make(map[string]struct{})
	for _, listing := range listings {
		for _, cand := range listing {
			res.Stats.Scanned++
			if cand.Adult {
				res.Stats.SkippedAdult++
				continue
			}
			if _, ok := seen[cand.ID]; ok {
				res.Stats.Duplicates++
				continue
			}
			if !window.Contains(cand.CreatedAt) {
				res.Stats.OutOfWindow++
				continue
			}
			seen[cand.ID] = struct{}{}
			res.Candidates = append(res.Candidates, cand)
		}
	}
	return res
}
