package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

type fakeSource struct {
	mu       sync.Mutex
	listings map[ports.ListingOrder][]domain.Candidate
	errs     map[ports.ListingOrder]error
	queries  []ports.ListingQuery
}

func (f *fakeSource) Listing(_ context.Context, q ports.ListingQuery) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if err := f.errs[q.Order]; err != nil {
		return nil, err
	}
	return f.listings[q.Order], nil
}

var runStart = time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)

func cand(id string, age time.Duration) domain.Candidate {
	return domain.Candidate{ID: id, Title: "post " + id, Score: 1, CreatedAt: runStart.Add(-age)}
}

func ids(cands []domain.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.ID)
	}
	return out
}

func TestCollectDeduplicatesAcrossListings(t *testing.T) {
	t.Parallel()

	x := cand("x", time.Hour)
	x.Score = 10
	x.FlairText = "Drama Review"
	staleX := x
	staleX.Score = 99

	src := &fakeSource{listings: map[ports.ListingOrder][]domain.Candidate{
		ports.OrderNew: {x, cand("a", 2*time.Hour)},
		ports.OrderTop: {staleX, cand("b", 3*time.Hour), cand("a", 2*time.Hour)},
	}}

	res, err := New(src, nil).Collect(context.Background(), Request{
		Subreddit: "CShortDramas",
		Window:    TrailingWindow(runStart, 7),
		ScanLimit: 100,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "a", "b"}, ids(res.Candidates))
	require.Equal(t, 10, res.Candidates[0].Score, "recency copy wins")
	require.Equal(t, 2, res.Stats.Duplicates)
	require.Equal(t, 5, res.Stats.Scanned)
}

func TestCollectQueriesBothListings(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	_, err := New(src, nil).Collect(context.Background(), Request{
		Subreddit: "sub",
		Window:    TrailingWindow(runStart, 7),
		ScanLimit: 1500,
	})
	require.NoError(t, err)
	require.Len(t, src.queries, 2)

	byOrder := map[ports.ListingOrder]ports.ListingQuery{}
	for _, q := range src.queries {
		byOrder[q.Order] = q
	}
	require.Equal(t, 1500, byOrder[ports.OrderNew].Limit)
	require.Equal(t, 750, byOrder[ports.OrderTop].Limit)
	require.Equal(t, TopPeriod, byOrder[ports.OrderTop].Period)
}

func TestCollectSkipsAdultAndOutOfWindow(t *testing.T) {
	t.Parallel()

	adult := cand("nsfw", time.Hour)
	adult.Adult = true

	src := &fakeSource{listings: map[ports.ListingOrder][]domain.Candidate{
		ports.OrderNew: {adult, cand("old", 8*24*time.Hour), cand("fresh", time.Minute)},
	}}

	res, err := New(src, nil).Collect(context.Background(), Request{Window: TrailingWindow(runStart, 7), ScanLimit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"fresh"}, ids(res.Candidates))
	require.Equal(t, 1, res.Stats.SkippedAdult)
	require.Equal(t, 1, res.Stats.OutOfWindow)
}

func TestCollectWindowBoundary(t *testing.T) {
	t.Parallel()

	window := TrailingWindow(runStart, 7)
	edge := domain.Candidate{ID: "edge", CreatedAt: runStart.AddDate(0, 0, -7)}
	before := domain.Candidate{ID: "before", CreatedAt: runStart.AddDate(0, 0, -7).Add(-time.Nanosecond)}

	res := Merge(window, []domain.Candidate{edge, before})
	require.Equal(t, []string{"edge"}, ids(res.Candidates))
}

func TestCollectKeepsPostsAheadOfRunClock(t *testing.T) {
	t.Parallel()

	ahead := domain.Candidate{ID: "ahead", CreatedAt: runStart.Add(90 * time.Second)}

	res := Merge(TrailingWindow(runStart, 7), []domain.Candidate{ahead})
	require.Equal(t, []string{"ahead"}, ids(res.Candidates))
	require.Zero(t, res.Stats.OutOfWindow)
}

func TestCollectIsIdempotent(t *testing.T) {
	t.Parallel()

	recent := []domain.Candidate{cand("a", time.Hour), cand("b", time.Hour), cand("a", time.Hour)}
	top := []domain.Candidate{cand("b", time.Hour), cand("c", time.Hour), cand("a", time.Hour), cand("c", time.Hour)}
	window := TrailingWindow(runStart, 7)

	first := Merge(window, recent, top)
	for i := 0; i < 3; i++ {
		again := Merge(window, recent, top)
		require.Equal(t, ids(first.Candidates), ids(again.Candidates))
	}
	require.Equal(t, []string{"a", "b", "c"}, ids(first.Candidates))
}

func TestCollectInaccessibleSource(t *testing.T) {
	t.Parallel()

	for _, order := range []ports.ListingOrder{ports.OrderNew, ports.OrderTop} {
		t.Run(string(order), func(t *testing.T) {
			src := &fakeSource{
				listings: map[ports.ListingOrder][]domain.Candidate{ports.OrderNew: {cand("a", time.Hour)}},
				errs:     map[ports.ListingOrder]error{order: fmt.Errorf("r/private: %w", ports.ErrAccessDenied)},
			}
			res, err := New(src, nil).Collect(context.Background(), Request{Subreddit: "private", Window: TrailingWindow(runStart, 7), ScanLimit: 10})
			require.ErrorIs(t, err, ErrSourceInaccessible)
			require.Empty(t, res.Candidates)
		})
	}
}

func TestCollectOtherErrorsAreNotInaccessible(t *testing.T) {
	t.Parallel()

	src := &fakeSource{errs: map[ports.ListingOrder]error{ports.OrderNew: errors.New("boom")}}
	_, err := New(src, nil).Collect(context.Background(), Request{Window: TrailingWindow(runStart, 7), ScanLimit: 10})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSourceInaccessible)
}

func TestTopLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, TopLimit(0))
	require.Equal(t, 1, TopLimit(1))
	require.Equal(t, 50, TopLimit(100))
}
