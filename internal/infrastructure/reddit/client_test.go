package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

type fakeReddit struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []recorded
	handlers map[string]http.HandlerFunc
}

func newFakeReddit(t *testing.T) (*fakeReddit, *Client) {
	t.Helper()

	f := &fakeReddit{t: t, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	client := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "bot",
		Password:     "pw",
		UserAgent:    "highlights-test/1.0",
		APIBaseURL:   srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
		RetryDelay:   time.Millisecond,
	}, nil)
	return f, client
}

func (f *fakeReddit) handle(method, path string, h http.HandlerFunc) {
	f.handlers[method+" "+path] = h
}

func (f *fakeReddit) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/access_token" {
		user, _, _ := r.BasicAuth()
		assert.Equal(f.t, "id", user)
		assert.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "password", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
		return
	}

	assert.Equal(f.t, "Bearer tok", r.Header.Get("Authorization"))
	assert.Equal(f.t, "highlights-test/1.0", r.Header.Get("User-Agent"))
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls = append(f.calls, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Form: r.PostForm})
	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeReddit) requests(path string) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorded
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func listingPage(after string, posts ...map[string]any) map[string]any {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{"kind": "t3", "data": p})
	}
	return map[string]any{"kind": "Listing", "data": map[string]any{"after": after, "children": children}}
}

func TestListingPaginatesAndMapsFields(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	created := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	f.handle(http.MethodGet, "/r/CShortDramas/top", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(w, listingPage("t3_b",
				map[string]any{"id": "a", "subreddit": "CShortDramas", "title": "A", "author": "alice", "score": 10,
					"created_utc": float64(created.Unix()), "link_flair_text": "Drama Review", "over_18": false,
					"thumbnail": "https://b.thumbs.redditmedia.com/a.jpg"},
				map[string]any{"id": "b", "subreddit": "CShortDramas", "title": "B", "author": "[deleted]", "score": 3,
					"created_utc": float64(created.Unix()), "link_flair_text": nil, "over_18": true, "thumbnail": "self"},
			))
		default:
			writeJSON(w, listingPage("", map[string]any{"id": "c", "title": "C", "author": "carol", "score": 1,
				"created_utc": float64(created.Unix())}))
		}
	})

	items, err := client.Listing(context.Background(), ports.ListingQuery{
		Subreddit: "CShortDramas", Order: ports.OrderTop, Period: "week", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, domain.Candidate{
		ID: "a", Subreddit: "CShortDramas", Title: "A", Author: "alice", Score: 10,
		CreatedAt: created, FlairText: "Drama Review", Thumbnail: "https://b.thumbs.redditmedia.com/a.jpg",
	}, items[0])
	assert.Empty(t, items[1].Author)
	assert.True(t, items[1].Adult)
	assert.Empty(t, items[1].Thumbnail)
	assert.Equal(t, "c", items[2].ID)

	calls := f.requests("/r/CShortDramas/top")
	require.Len(t, calls, 2)
	assert.Equal(t, "week", calls[0].Query.Get("t"))
	assert.Equal(t, "5", calls[0].Query.Get("limit"))
	assert.Equal(t, "t3_b", calls[1].Query.Get("after"))
	assert.Equal(t, "3", calls[1].Query.Get("limit"))
}

func TestListingForbiddenIsAccessDenied(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodGet, "/r/secret/new", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"reason":"private"}`, http.StatusForbidden)
	})

	_, err := client.Listing(context.Background(), ports.ListingQuery{Subreddit: "secret", Order: ports.OrderNew, Limit: 10})
	require.ErrorIs(t, err, ports.ErrAccessDenied)
	assert.Len(t, f.requests("/r/secret/new"), 1, "access errors are not retried")
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	var mu sync.Mutex
	attempts := 0
	f.handle(http.MethodGet, "/r/flaky/new", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, listingPage("", map[string]any{"id": "ok", "title": "fine"}))
	})

	items, err := client.Listing(context.Background(), ports.ListingQuery{Subreddit: "flaky", Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustedIsUnavailable(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/set_subreddit_sticky", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Pin(context.Background(), "abc", domain.SlotTop)
	require.ErrorIs(t, err, ports.ErrDestinationUnavailable)
	assert.Len(t, f.requests("/api/set_subreddit_sticky"), maxRetryAttempts)
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/submit", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{},
			"data": map[string]any{"id": "new1", "name": "t3_new1"}}})
	})

	id, err := client.Submit(context.Background(), "CShortDramas", domain.Digest{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, "new1", id)

	calls := f.requests("/api/submit")
	require.Len(t, calls, 1)
	assert.Equal(t, "CShortDramas", calls[0].Form.Get("sr"))
	assert.Equal(t, "self", calls[0].Form.Get("kind"))
	assert.Equal(t, "T", calls[0].Form.Get("title"))
	assert.Equal(t, "B", calls[0].Form.Get("text"))
	assert.Equal(t, "json", calls[0].Form.Get("api_type"))
}

func TestSubmitIsNotRetriedAfterServerError(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	var mu sync.Mutex
	attempts := 0
	f.handle(http.MethodPost, "/api/submit", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{},
			"data": map[string]any{"id": "new2", "name": "t3_new2"}}})
	})

	_, err := client.Submit(context.Background(), "CShortDramas", domain.Digest{Title: "T", Body: "B"})
	require.ErrorIs(t, err, ports.ErrDestinationUnavailable)
	assert.Len(t, f.requests("/api/submit"), 1, "a submission may already exist after a 5xx")
}

func TestReplyIsNotRetriedAfterServerError(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/comment", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Reply(context.Background(), "post9", "body")
	require.ErrorIs(t, err, ports.ErrDestinationUnavailable)
	assert.Len(t, f.requests("/api/comment"), 1)
}

func TestSubmitRejected(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/submit", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{
			"errors": []any{[]any{"SUBREDDIT_NOTALLOWED", "you aren't allowed to post there.", "sr"}}}})
	})

	_, err := client.Submit(context.Background(), "CShortDramas", domain.Digest{Title: "T", Body: "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUBREDDIT_NOTALLOWED")
}

func TestReply(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/comment", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{}}})
	})

	require.NoError(t, client.Reply(context.Background(), "post9", "body"))
	calls := f.requests("/api/comment")
	require.Len(t, calls, 1)
	assert.Equal(t, "t3_post9", calls[0].Form.Get("thing_id"))
	assert.Equal(t, "body", calls[0].Form.Get("text"))
}

func TestOccupantFollowsStickyRedirect(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodGet, "/r/CShortDramas/about/sticky", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("num") == "1" {
			w.Header().Set("Location", "https://www.reddit.com/r/CShortDramas/comments/old7/weekly/")
			w.WriteHeader(http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	f.handle(http.MethodGet, "/api/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t3_old7", r.URL.Query().Get("id"))
		writeJSON(w, listingPage("", map[string]any{"id": "old7", "title": "Our Highlights · Nov 3", "author": "bot"}))
	})

	item, err := client.Occupant(context.Background(), "CShortDramas", domain.SlotTop)
	require.NoError(t, err)
	assert.Equal(t, domain.PinnedItem{ID: "old7", Title: "Our Highlights · Nov 3", Author: "bot"}, item)

	_, err = client.Occupant(context.Background(), "CShortDramas", domain.SlotBottom)
	require.ErrorIs(t, err, ports.ErrSlotEmpty)
}

func TestPinAddressesSlots(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/set_subreddit_sticky", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{}}})
	})

	ctx := context.Background()
	require.NoError(t, client.Pin(ctx, "a", domain.SlotTop))
	require.NoError(t, client.Pin(ctx, "b", domain.SlotBottom))
	require.NoError(t, client.Unpin(ctx, "c"))

	calls := f.requests("/api/set_subreddit_sticky")
	require.Len(t, calls, 3)
	assert.Equal(t, "t3_a", calls[0].Form.Get("id"))
	assert.Equal(t, "true", calls[0].Form.Get("state"))
	assert.Equal(t, "1", calls[0].Form.Get("num"))
	assert.False(t, calls[1].Form.Has("num"), "bottom slot omits num")
	assert.Equal(t, "false", calls[2].Form.Get("state"))
}

func TestSetSuggestedSort(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodPost, "/api/set_suggested_sort", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, client.SetSuggestedSort(context.Background(), "a", "New"))
	calls := f.requests("/api/set_suggested_sort")
	require.Len(t, calls, 1)
	assert.Equal(t, "new", calls[0].Form.Get("sort"))
}

func TestApplyFlair(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodGet, "/r/CShortDramas/api/link_flair_v2", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]string{{"id": "tpl-1", "text": "Discussion"}, {"id": "tpl-2", "text": "✨ Highlights ✨"}})
	})
	f.handle(http.MethodPost, "/r/CShortDramas/api/selectflair", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{}}})
	})

	ctx := context.Background()
	require.NoError(t, client.ApplyFlair(ctx, "CShortDramas", "new1", "highlights"))
	calls := f.requests("/r/CShortDramas/api/selectflair")
	require.Len(t, calls, 1)
	assert.Equal(t, "tpl-2", calls[0].Form.Get("flair_template_id"))
	assert.Equal(t, "t3_new1", calls[0].Form.Get("link"))

	err := client.ApplyFlair(ctx, "CShortDramas", "new1", "Missing")
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestApplyFlairPrefersExactText(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodGet, "/r/CShortDramas/api/link_flair_v2", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]string{{"id": "tpl-emoji", "text": "🔥 Fun 🔥"}, {"id": "tpl-plain", "text": "Fun"}})
	})
	f.handle(http.MethodPost, "/r/CShortDramas/api/selectflair", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"json": map[string]any{"errors": []any{}}})
	})

	ctx := context.Background()
	require.NoError(t, client.ApplyFlair(ctx, "CShortDramas", "a", " Fun "))
	require.NoError(t, client.ApplyFlair(ctx, "CShortDramas", "b", "🔥 Fun 🔥"))

	calls := f.requests("/r/CShortDramas/api/selectflair")
	require.Len(t, calls, 2)
	assert.Equal(t, "tpl-plain", calls[0].Form.Get("flair_template_id"))
	assert.Equal(t, "tpl-emoji", calls[1].Form.Get("flair_template_id"))
}

func TestIdentityIsCached(t *testing.T) {
	t.Parallel()

	f, client := newFakeReddit(t)
	f.handle(http.MethodGet, "/api/v1/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"name": "HighlightsBot"})
	})

	for i := range 3 {
		name, err := client.Identity(context.Background())
		require.NoError(t, err, fmt.Sprintf("call %d", i))
		assert.Equal(t, "HighlightsBot", name)
	}
	assert.Len(t, f.requests("/api/v1/me"), 1)
}

func TestRejectedPasswordGrantIsAccessDenied(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		t.Errorf("api called without token: %s", r.URL.Path)
	}))
	defer srv.Close()

	client := New(Config{
		ClientID:   "id",
		APIBaseURL: srv.URL,
		TokenURL:   srv.URL + "/api/v1/access_token",
		RetryDelay: time.Millisecond,
	}, nil)

	_, err := client.Listing(context.Background(), ports.ListingQuery{Subreddit: "x", Limit: 1})
	require.ErrorIs(t, err, ports.ErrAccessDenied)
}
