package ports

import (
	"context"
	"errors"
	"time"

	"FeedHighlights/internal/domain"
)

var (
	// ErrAccessDenied means a whole listing source refused the request (403, private, banned).
	ErrAccessDenied = errors.New("access denied")
	// ErrSlotEmpty means no item occupies the requested sticky slot.
	ErrSlotEmpty = errors.New("sticky slot is empty")
	// ErrNotFound is returned for missing items or flair templates.
	ErrNotFound = errors.New("not found")
	// ErrDestinationUnavailable means the destination could not be reached at all.
	ErrDestinationUnavailable = errors.New("destination unavailable")
)

// ListingOrder selects which listing of the feed is read.
type ListingOrder string

const (
	OrderNew ListingOrder = "new"
	OrderTop ListingOrder = "top"
)

// ListingQuery describes one bounded listing read.
type ListingQuery struct {
	Subreddit string
	Order     ListingOrder
	// Period applies to OrderTop only ("week", "month", ...).
	Period string
	Limit  int
}

// ListingSource returns candidates from the feed in listing order.
type ListingSource interface {
	Listing(ctx context.Context, q ListingQuery) ([]domain.Candidate, error)
}

// Publisher creates new items on the destination feed.
type Publisher interface {
	Submit(ctx context.Context, subreddit string, digest domain.Digest) (string, error)
	Reply(ctx context.Context, itemID, body string) error
}

// FlairSetter applies a link flair to a published item by its visible text.
type FlairSetter interface {
	ApplyFlair(ctx context.Context, subreddit, itemID, flairText string) error
}

// SlotStore reads and mutates sticky slots on the destination feed.
type SlotStore interface {
	Occupant(ctx context.Context, subreddit string, slot domain.Slot) (domain.PinnedItem, error)
	Unpin(ctx context.Context, itemID string) error
	Pin(ctx context.Context, itemID string, slot domain.Slot) error
	SetSuggestedSort(ctx context.Context, itemID, sort string) error
}

// IdentityProvider supplies the publishing account name.
type IdentityProvider interface {
	Identity(ctx context.Context) (string, error)
}

// RunRepository persists run history for audit and status reporting.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.RunRecord) error
	LatestRun(ctx context.Context) (domain.RunRecord, error)
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Previewer shows a digest instead of publishing it.
type Previewer interface {
	Preview(ctx context.Context, digest domain.Digest) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
