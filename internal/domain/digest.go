package domain

import (
	"fmt"
	"strings"
	"time"
)

// Digest is the assembled title and Markdown body for one run.
type Digest struct {
	Title string
	Body  string
}

// Slot identifies a sticky position on the destination subreddit.
type Slot int

const (
	SlotTop    Slot = 1
	SlotBottom Slot = 2
)

// ParseSlot accepts "top" or "bottom" (case-insensitive).
func ParseSlot(value string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "top":
		return SlotTop, nil
	case "bottom", "":
		return SlotBottom, nil
	default:
		return 0, fmt.Errorf("unknown sticky position %q", value)
	}
}

func (s Slot) String() string {
	if s == SlotTop {
		return "top"
	}
	return "bottom"
}

// PinnedItem is whatever currently occupies a sticky slot.
type PinnedItem struct {
	ID     string
	Title  string
	Author string
}

// RunStatus enumerates how a pipeline run ended.
type RunStatus string

const (
	RunPublished          RunStatus = "published"
	RunReplied            RunStatus = "replied"
	RunDryRun             RunStatus = "dry_run"
	RunNothingToPublish   RunStatus = "nothing_to_publish"
	RunSourceInaccessible RunStatus = "source_inaccessible"
	RunCollectFailed      RunStatus = "collect_failed"
	RunPublishFailed      RunStatus = "publish_failed"
)

// RunRecord is the audit row persisted for every run.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         RunStatus
	SourceFeed     string
	TargetFeed     string
	SubmissionID   string
	Title          string
	Candidates     int
	Selected       int
	ReconcileState string
	Warnings       []string
}
