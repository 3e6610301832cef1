package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
	"FeedHighlights/internal/scanner"
)

// maxPageSize is the largest page the listing endpoints serve.
const maxPageSize = 100

type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Subreddit     string  `json:"subreddit"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Score         int     `json:"score"`
	CreatedUTC    float64 `json:"created_utc"`
	LinkFlairText *string `json:"link_flair_text"`
	Over18        bool    `json:"over_18"`
	Thumbnail     string  `json:"thumbnail"`
}

func (p post) candidate() domain.Candidate {
	id := p.ID
	if id == "" {
		id = shortID(p.Name)
	}
	author := p.Author
	if author == "[deleted]" {
		author = ""
	}
	flair := ""
	if p.LinkFlairText != nil {
		flair = *p.LinkFlairText
	}
	sec, frac := splitSeconds(p.CreatedUTC)
	return domain.Candidate{
		ID:        id,
		Subreddit: p.Subreddit,
		Title:     p.Title,
		Author:    author,
		Score:     p.Score,
		CreatedAt: time.Unix(sec, frac).UTC(),
		FlairText: flair,
		Adult:     p.Over18,
		Thumbnail: thumbnailURL(p.Thumbnail),
	}
}

func splitSeconds(v float64) (int64, int64) {
	sec := int64(v)
	return sec, int64((v - float64(sec)) * float64(time.Second))
}

// thumbnailURL drops the placeholder keywords Reddit puts in the thumbnail field.
func thumbnailURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

// Listing reads up to q.Limit items of a subreddit listing, following the after cursor.
func (c *Client) Listing(ctx context.Context, q ports.ListingQuery) ([]domain.Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	order := q.Order
	if order == "" {
		order = ports.OrderNew
	}
	path := fmt.Sprintf("/r/%s/%s", url.PathEscape(q.Subreddit), order)

	items := make([]domain.Candidate, 0, min(q.Limit, maxPageSize))
	after := ""
	for len(items) < q.Limit {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(min(q.Limit-len(items), maxPageSize)))
		params.Set("raw_json", "1")
		if order == ports.OrderTop && q.Period != "" {
			params.Set("t", q.Period)
		}
		if after != "" {
			params.Set("after", after)
			params.Set("count", strconv.Itoa(len(items)))
		}

		var page listingResponse
		if err := c.getJSON(ctx, path, params, &page); err != nil {
			return nil, fmt.Errorf("list r/%s %s: %w", q.Subreddit, order, err)
		}
		for _, child := range page.Data.Children {
			if child.Kind != "" && child.Kind != "t3" {
				continue
			}
			items = append(items, child.Data.candidate())
			if len(items) == q.Limit {
				break
			}
		}

		if page.Data.After == "" || len(page.Data.Children) == 0 {
			break
		}
		after = page.Data.After
	}

	c.logger.Debug("listing read", "subreddit", q.Subreddit, "order", order, "items", len(items))
	return items, nil
}

// Name identifies the API strategy in the scanner registry.
func (c *Client) Name() string {
	return "api"
}

// Scan adapts Listing to the scanner registry.
func (c *Client) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	return c.Listing(ctx, ports.ListingQuery{
		Subreddit: req.Subreddit,
		Order:     req.Order,
		Period:    req.Period,
		Limit:     req.Limit,
	})
}
