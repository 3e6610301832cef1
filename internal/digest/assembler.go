// Package digest renders ranked sections into the Markdown highlights post.
package digest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"FeedHighlights/internal/domain"
)

const (
	emptySection  = "_No items this week._"
	deletedAuthor = "[deleted]"
)

var whitespace = regexp.MustCompile(`\s+`)

// Campaign is an optional time-boxed announcement. Start and End are calendar
// dates, both inclusive.
type Campaign struct {
	Name  string
	Body  string
	Start time.Time
	End   time.Time
}

// ActiveOn reports whether the local calendar date of now falls within the campaign.
func (c Campaign) ActiveOn(now time.Time, loc *time.Location) bool {
	if c.Name == "" || c.Start.IsZero() || c.End.IsZero() {
		return false
	}
	if loc != nil {
		now = now.In(loc)
	}
	today := civil(now)
	return !today.Before(civil(c.Start)) && !today.After(civil(c.End))
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Options configures the rendering.
type Options struct {
	SourceFeed     string
	BaseTitle      string
	WindowDays     int
	WikiURL        string
	Footer         string
	ShowThumbnails bool
	// Categories are given in display order.
	Categories []domain.Category
	Campaign   Campaign
	Location   *time.Location
}

// Assembler is a pure transform from sections to a Digest.
type Assembler struct {
	opts Options
}

// New builds an Assembler.
func New(opts Options) *Assembler {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Assembler{opts: opts}
}

// Build renders the title and body for a run started at now.
func (a *Assembler) Build(sections domain.Sections, now time.Time) domain.Digest {
	campaign := a.opts.Campaign.ActiveOn(now, a.opts.Location)

	title := a.opts.BaseTitle
	if campaign {
		title = fmt.Sprintf("%s · %s", title, a.opts.Campaign.Name)
	}

	header := []string{
		fmt.Sprintf("Discover the most important highlights on r/%s from the last %d days.", a.opts.SourceFeed, a.opts.WindowDays),
		"",
	}
	if campaign {
		header = append(header, fmt.Sprintf("**%s**", a.opts.Campaign.Name))
		if a.opts.Campaign.Body != "" {
			header = append(header, "", a.opts.Campaign.Body)
		}
		header = append(header, "")
	}
	if a.opts.WikiURL != "" {
		header = append(header,
			fmt.Sprintf("Check the [Content Wiki](%s) for even more of our creative work!", a.opts.WikiURL),
			"",
		)
	}
	header = append(header, "---", "")

	keys := make([]string, len(a.opts.Categories))
	for i, cat := range a.opts.Categories {
		keys[i] = cat.Key
	}

	var parts []string
	for i, section := range sections.Ordered(keys) {
		cat := a.opts.Categories[i]
		parts = append(parts, fmt.Sprintf("## %s %s", cat.Icon, cat.Label))

		items := section.Items
		if len(items) == 0 {
			parts = append(parts, emptySection, "")
			continue
		}

		lines := make([]string, 0, len(items))
		for i, item := range items {
			lines = append(lines, fmt.Sprintf("%d. %s[%s](%s) — %s",
				i+1, a.thumbnail(item), CleanTitle(item.Title), item.Link(), authorRef(item)))
		}
		parts = append(parts, strings.Join(lines, "\n"), "")
	}

	body := strings.Join(header, "\n") + strings.Join(parts, "\n") + "\n" + a.opts.Footer + "\n"
	return domain.Digest{Title: title, Body: body}
}

func (a *Assembler) thumbnail(item domain.Candidate) string {
	if !a.opts.ShowThumbnails || !strings.HasPrefix(item.Thumbnail, "http") {
		return ""
	}
	return fmt.Sprintf("![thumbnail](%s) ", item.Thumbnail)
}

func authorRef(item domain.Candidate) string {
	if !item.AuthorKnown() {
		return deletedAuthor
	}
	return "u/" + item.Author
}

// CleanTitle collapses whitespace, drops a trailing quote block and escapes
// brackets so the title cannot break the Markdown link.
func CleanTitle(title string) string {
	title = strings.TrimSpace(whitespace.ReplaceAllString(title, " "))
	if i := strings.IndexByte(title, '>'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(title)
}
