package domain

import (
	"fmt"
	"time"
)

// Candidate is a feed item considered for inclusion in a digest.
type Candidate struct {
	ID        string
	Subreddit string
	Title     string
	// Author is empty when the account was deleted.
	Author    string
	Score     int
	CreatedAt time.Time
	FlairText string
	Adult     bool
	Thumbnail string
}

// Link derives the canonical permalink of the candidate.
func (c Candidate) Link() string {
	if c.Subreddit == "" {
		return fmt.Sprintf("https://redd.it/%s", c.ID)
	}
	return fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s/", c.Subreddit, c.ID)
}

// AuthorKnown reports whether the author identity is still available.
func (c Candidate) AuthorKnown() bool {
	return c.Author != ""
}
