// Package preview prints a digest to a terminal instead of publishing it.
package preview

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

const wordWrap = 100

// Terminal renders digests as styled Markdown, or verbatim when raw is set.
type Terminal struct {
	out      io.Writer
	raw      bool
	renderer *glamour.TermRenderer
}

var _ ports.Previewer = (*Terminal)(nil)

// NewTerminal writes to out (stdout when nil). Styled rendering falls back to
// raw output when no renderer can be built.
func NewTerminal(out io.Writer, raw bool) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	t := &Terminal{out: out, raw: raw}
	if !raw {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrap),
		)
		if err != nil {
			t.raw = true
		} else {
			t.renderer = renderer
		}
	}
	return t
}

// Preview writes the title and body.
func (t *Terminal) Preview(_ context.Context, digest domain.Digest) error {
	markdown := fmt.Sprintf("# %s\n\n%s\n", digest.Title, digest.Body)
	if t.raw || t.renderer == nil {
		_, err := io.WriteString(t.out, markdown)
		return err
	}

	rendered, err := t.renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	_, err = io.WriteString(t.out, rendered)
	return err
}
