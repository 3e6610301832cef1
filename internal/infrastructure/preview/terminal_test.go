package preview

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedHighlights/internal/domain"
)

func TestRawPreviewIsVerbatim(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewTerminal(&buf, true)
	require.NoError(t, p.Preview(context.Background(), domain.Digest{Title: "Weekly", Body: "## 🔥 Trending\n1. item"}))

	assert.Equal(t, "# Weekly\n\n## 🔥 Trending\n1. item\n", buf.String())
}

func TestStyledPreviewKeepsText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewTerminal(&buf, false)
	require.NoError(t, p.Preview(context.Background(), domain.Digest{Title: "Weekly", Body: "Some highlights"}))

	assert.Contains(t, buf.String(), "Weekly")
	assert.Contains(t, buf.String(), "highlights")
}
