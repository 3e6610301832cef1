package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
	"FeedHighlights/internal/scanner"
)

const (
	oldRedditBaseURL = "https://old.reddit.com"
	oldRedditPage    = 100
)

// OldRedditScanner reads public listings from the old.reddit.com HTML pages.
// It needs no credentials, which makes it the fallback for dry runs.
type OldRedditScanner struct {
	client    *http.Client
	baseURL   string
	userAgent string
	pageSize  int
}

// NewOldRedditScanner wires an HTTP client; baseURL defaults to old.reddit.com.
func NewOldRedditScanner(client *http.Client, baseURL, userAgent string) *OldRedditScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = oldRedditBaseURL
	}
	if userAgent == "" {
		userAgent = "FeedHighlights/1.0"
	}
	return &OldRedditScanner{
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		pageSize:  oldRedditPage,
	}
}

// Name identifies the strategy inside the registry.
func (o *OldRedditScanner) Name() string {
	return "html"
}

// Scan walks listing pages until the limit is reached or the listing ends.
func (o *OldRedditScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if req.Subreddit == "" {
		return nil, fmt.Errorf("no subreddit provided")
	}
	if req.Limit <= 0 {
		return nil, nil
	}

	results := make([]domain.Candidate, 0, req.Limit)
	seen := map[string]struct{}{}
	after := ""

	for len(results) < req.Limit {
		pageURL, err := o.buildPageURL(req, after, len(results))
		if err != nil {
			return nil, err
		}

		doc, err := o.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("r/%s %s: %w", req.Subreddit, req.Order, err)
		}

		page, last := extractCandidates(doc)
		added := 0
		for _, item := range page {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			results = append(results, item)
			added++
			if len(results) == req.Limit {
				break
			}
		}

		if added == 0 || last == "" || doc.Find("span.next-button a").Length() == 0 {
			break
		}
		after = last
	}

	return results, nil
}

func (o *OldRedditScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request document: %w", ports.ErrDestinationUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: reddit returned %s", ports.ErrAccessDenied, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("reddit returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// extractCandidates returns the link entries of a page and the fullname of the last one.
func extractCandidates(doc *goquery.Document) ([]domain.Candidate, string) {
	var (
		collected []domain.Candidate
		last      string
	)

	doc.Find("#siteTable > div.thing.link").Each(func(_ int, thing *goquery.Selection) {
		if thing.HasClass("promoted") || thing.AttrOr("data-promoted", "") == "true" {
			return
		}
		item, ok := parseThing(thing)
		if !ok {
			return
		}
		last = thing.AttrOr("data-fullname", "")
		collected = append(collected, item)
	})

	return collected, last
}

func parseThing(thing *goquery.Selection) (domain.Candidate, bool) {
	name := thing.AttrOr("data-fullname", "")
	if !strings.HasPrefix(name, "t3_") {
		return domain.Candidate{}, false
	}

	author := thing.AttrOr("data-author", "")
	if author == "[deleted]" {
		author = ""
	}

	score, _ := strconv.Atoi(thing.AttrOr("data-score", "0"))

	var createdAt time.Time
	if ms, err := strconv.ParseInt(thing.AttrOr("data-timestamp", ""), 10, 64); err == nil {
		createdAt = time.UnixMilli(ms).UTC()
	}

	flair := thing.Find("span.linkflairlabel").First()
	flairText := strings.TrimSpace(flair.AttrOr("title", ""))
	if flairText == "" {
		flairText = strings.TrimSpace(flair.Text())
	}

	thumbnail := thing.Find("a.thumbnail img").First().AttrOr("src", "")
	if strings.HasPrefix(thumbnail, "//") {
		thumbnail = "https:" + thumbnail
	}

	return domain.Candidate{
		ID:        strings.TrimPrefix(name, "t3_"),
		Subreddit: thing.AttrOr("data-subreddit", ""),
		Title:     strings.TrimSpace(thing.Find("a.title").First().Text()),
		Author:    author,
		Score:     score,
		CreatedAt: createdAt,
		FlairText: flairText,
		Adult:     thing.AttrOr("data-nsfw", "") == "true" || thing.HasClass("over18"),
		Thumbnail: thumbnail,
	}, true
}

func (o *OldRedditScanner) buildPageURL(req scanner.Request, after string, count int) (string, error) {
	order := req.Order
	if order == "" {
		order = ports.OrderNew
	}
	parsed, err := url.Parse(fmt.Sprintf("%s/r/%s/%s/", o.baseURL, url.PathEscape(req.Subreddit), order))
	if err != nil {
		return "", fmt.Errorf("invalid listing url: %w", err)
	}

	query := parsed.Query()
	query.Set("limit", strconv.Itoa(min(o.pageSize, req.Limit-count)))
	if order == ports.OrderTop && req.Period != "" {
		query.Set("t", req.Period)
	}
	if after != "" {
		query.Set("after", after)
		query.Set("count", strconv.Itoa(count))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
