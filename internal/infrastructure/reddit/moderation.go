package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/labels"
	"FeedHighlights/internal/ports"
)

var commentsPath = regexp.MustCompile(`/comments/([a-z0-9]+)`)

// Submit creates a self post and returns its short id.
func (c *Client) Submit(ctx context.Context, subreddit string, digest domain.Digest) (string, error) {
	form := url.Values{}
	form.Set("sr", subreddit)
	form.Set("kind", "self")
	form.Set("title", digest.Title)
	form.Set("text", digest.Body)
	form.Set("resubmit", "true")

	data, err := c.postForm(ctx, "/api/submit", form, false)
	if err != nil {
		return "", fmt.Errorf("submit to r/%s: %w", subreddit, err)
	}

	if id, ok := data["id"].(string); ok && id != "" {
		return id, nil
	}
	if name, ok := data["name"].(string); ok && name != "" {
		return shortID(name), nil
	}
	return "", fmt.Errorf("submit to r/%s: response carried no id", subreddit)
}

// Reply adds a top-level comment to an existing post.
func (c *Client) Reply(ctx context.Context, itemID, body string) error {
	form := url.Values{}
	form.Set("thing_id", fullname(itemID))
	form.Set("text", body)

	if _, err := c.postForm(ctx, "/api/comment", form, false); err != nil {
		return fmt.Errorf("reply to %s: %w", itemID, err)
	}
	return nil
}

type flairTemplate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ApplyFlair selects the link flair template whose text matches flairText.
func (c *Client) ApplyFlair(ctx context.Context, subreddit, itemID, flairText string) error {
	var templates []flairTemplate
	path := fmt.Sprintf("/r/%s/api/link_flair_v2", url.PathEscape(subreddit))
	if err := c.getJSON(ctx, path, url.Values{"raw_json": {"1"}}, &templates); err != nil {
		return fmt.Errorf("list flair templates: %w", err)
	}

	templateID := matchFlairTemplate(templates, flairText)
	if templateID == "" {
		return fmt.Errorf("flair %q on r/%s: %w", flairText, subreddit, ports.ErrNotFound)
	}

	form := url.Values{}
	form.Set("link", fullname(itemID))
	form.Set("flair_template_id", templateID)
	if _, err := c.postForm(ctx, fmt.Sprintf("/r/%s/api/selectflair", url.PathEscape(subreddit)), form, true); err != nil {
		return fmt.Errorf("select flair %q: %w", flairText, err)
	}
	return nil
}

// matchFlairTemplate prefers an exact text match and falls back to the
// normalized label only when no template matches exactly.
func matchFlairTemplate(templates []flairTemplate, flairText string) string {
	want := strings.TrimSpace(flairText)
	for _, tpl := range templates {
		if strings.TrimSpace(tpl.Text) == want {
			return tpl.ID
		}
	}
	for _, tpl := range templates {
		if labels.Equivalent(tpl.Text, flairText) {
			return tpl.ID
		}
	}
	return ""
}

// Occupant reports the item in a sticky slot. The endpoint answers with a
// redirect to the stickied post, so the id is taken from the Location header.
func (c *Client) Occupant(ctx context.Context, subreddit string, slot domain.Slot) (domain.PinnedItem, error) {
	path := fmt.Sprintf("/r/%s/about/sticky", url.PathEscape(subreddit))
	params := url.Values{"num": {strconv.Itoa(int(slot))}}

	resp, err := c.doRequest(ctx, c.noRedirect, http.MethodGet, path, params, 0)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.PinnedItem{}, ports.ErrSlotEmpty
		}
		return domain.PinnedItem{}, fmt.Errorf("read %s sticky of r/%s: %w", slot, subreddit, err)
	}
	location := resp.Header.Get("Location")
	drainAndClose(resp.Body)

	match := commentsPath.FindStringSubmatch(location)
	if match == nil {
		return domain.PinnedItem{}, ports.ErrSlotEmpty
	}
	return c.item(ctx, match[1])
}

// item looks up title and author of a post by id.
func (c *Client) item(ctx context.Context, id string) (domain.PinnedItem, error) {
	var page listingResponse
	if err := c.getJSON(ctx, "/api/info", url.Values{"id": {fullname(id)}, "raw_json": {"1"}}, &page); err != nil {
		return domain.PinnedItem{}, fmt.Errorf("lookup %s: %w", id, err)
	}
	if len(page.Data.Children) == 0 {
		return domain.PinnedItem{}, fmt.Errorf("lookup %s: %w", id, ports.ErrNotFound)
	}

	p := page.Data.Children[0].Data
	cand := p.candidate()
	return domain.PinnedItem{ID: cand.ID, Title: cand.Title, Author: cand.Author}, nil
}

// Unpin removes an item from whichever sticky slot it holds.
func (c *Client) Unpin(ctx context.Context, itemID string) error {
	return c.setSticky(ctx, itemID, false, 0)
}

// Pin stickies an item. The bottom slot is addressed by omitting num.
func (c *Client) Pin(ctx context.Context, itemID string, slot domain.Slot) error {
	return c.setSticky(ctx, itemID, true, slot)
}

func (c *Client) setSticky(ctx context.Context, itemID string, state bool, slot domain.Slot) error {
	form := url.Values{}
	form.Set("id", fullname(itemID))
	form.Set("state", strconv.FormatBool(state))
	if state && slot == domain.SlotTop {
		form.Set("num", "1")
	}

	if _, err := c.postForm(ctx, "/api/set_subreddit_sticky", form, true); err != nil {
		return fmt.Errorf("set sticky %s=%t: %w", itemID, state, err)
	}
	return nil
}

// SetSuggestedSort sets the default comment sort of an item.
func (c *Client) SetSuggestedSort(ctx context.Context, itemID, sort string) error {
	form := url.Values{}
	form.Set("id", fullname(itemID))
	form.Set("sort", strings.ToLower(sort))

	if _, err := c.postForm(ctx, "/api/set_suggested_sort", form, true); err != nil {
		return fmt.Errorf("suggested sort %s on %s: %w", sort, itemID, err)
	}
	return nil
}

// Identity returns the authenticated account name, cached after the first success.
func (c *Client) Identity(ctx context.Context) (string, error) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()

	if c.identity != "" {
		return c.identity, nil
	}

	var me struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/api/v1/me", nil, &me); err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	if me.Name == "" {
		return "", fmt.Errorf("identity: empty account name")
	}
	c.identity = me.Name
	return me.Name, nil
}
