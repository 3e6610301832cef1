// Package classify maps candidates onto the category taxonomy, filters them by
// score and keeps the top entries of every category.
package classify

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/labels"
)

// ErrOverlappingAliases is returned when two categories accept the same normalized label.
var ErrOverlappingAliases = errors.New("overlapping category aliases")

// rule pairs a predicate over the normalized label with the category it selects.
// Rules are evaluated in declared scan order and the first match wins.
type rule struct {
	category domain.Category
	matches  func(normalized string) bool
}

// Stats holds observational counters; none of them is an error.
type Stats struct {
	Matched         map[string]int
	DroppedForScore map[string]int
	Unmatched       int
}

// Result is the finalized mapping plus counters.
type Result struct {
	Sections domain.Sections
	Stats    Stats
}

// Classifier is immutable once built and safe for concurrent use.
type Classifier struct {
	rules    []rule
	minScore int
}

// New compiles the category table in scan order.
func New(categories []domain.Category, minScore int) (*Classifier, error) {
	owner := make(map[string]string)
	rules := make([]rule, 0, len(categories))
	for _, cat := range categories {
		if cat.Key == "" {
			return nil, fmt.Errorf("category without key")
		}
		if cat.Cap < 0 {
			return nil, fmt.Errorf("category %s: negative cap %d", cat.Key, cat.Cap)
		}
		aliases := labels.NormalizeAll(cat.Aliases)
		set := make(map[string]struct{}, len(aliases))
		for _, alias := range aliases {
			if prev, ok := owner[alias]; ok && prev != cat.Key {
				return nil, fmt.Errorf("%w: %q is accepted by %s and %s", ErrOverlappingAliases, alias, prev, cat.Key)
			}
			owner[alias] = cat.Key
			set[alias] = struct{}{}
		}
		rules = append(rules, rule{
			category: cat,
			matches: func(normalized string) bool {
				_, ok := set[normalized]
				return ok
			},
		})
	}
	return &Classifier{rules: rules, minScore: minScore}, nil
}

// Match returns the first category accepting the raw label.
func (c *Classifier) Match(rawLabel string) (domain.Category, bool) {
	normalized := labels.Normalize(rawLabel)
	if normalized == "" {
		return domain.Category{}, false
	}
	for _, r := range c.rules {
		if r.matches(normalized) {
			return r.category, true
		}
	}
	return domain.Category{}, false
}

// Classify assigns every candidate to at most one section, then ranks and truncates.
func (c *Classifier) Classify(candidates []domain.Candidate) Result {
	res := Result{
		Sections: make(domain.Sections, len(c.rules)),
		Stats: Stats{
			Matched:         make(map[string]int, len(c.rules)),
			DroppedForScore: make(map[string]int, len(c.rules)),
		},
	}
	for _, r := range c.rules {
		res.Sections[r.category.Key] = []domain.Candidate{}
	}

	for _, cand := range candidates {
		cat, ok := c.Match(cand.FlairText)
		if !ok {
			res.Stats.Unmatched++
			continue
		}
		res.Stats.Matched[cat.Key]++
		if cand.Score < c.minScore {
			res.Stats.DroppedForScore[cat.Key]++
			continue
		}
		res.Sections[cat.Key] = append(res.Sections[cat.Key], cand)
	}

	for _, r := range c.rules {
		res.Sections[r.category.Key] = Rank(res.Sections[r.category.Key], r.category.Cap)
	}
	return res
}

// Rank stable-sorts by descending score and truncates to limit (0 keeps all).
func Rank(items []domain.Candidate, limit int) []domain.Candidate {
	slices.SortStableFunc(items, func(a, b domain.Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
