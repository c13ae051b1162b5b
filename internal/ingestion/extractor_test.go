package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", NormalizeMimeType("application/pdf"))
	assert.Equal(t, "text/html", NormalizeMimeType("text/html; charset=utf-8"))
	assert.Equal(t, "application/pdf", NormalizeMimeType("  Application/PDF  "))
}

func TestIsAllowedMimeType(t *testing.T) {
	assert.True(t, IsAllowedMimeType("application/pdf"))
	assert.True(t, IsAllowedMimeType("text/csv"))
	assert.True(t, IsAllowedMimeType("image/png"))
	assert.True(t, IsAllowedMimeType("text/html; charset=utf-8"))
	assert.False(t, IsAllowedMimeType("application/zip"))
	assert.False(t, IsAllowedMimeType("video/mp4"))
	assert.False(t, IsAllowedMimeType(""))
}

func TestExtract(t *testing.T) {
	extractor := NewExtractor()

	t.Run("malformed pdf degrades to sentinel page", func(t *testing.T) {
		result := extractor.Extract([]byte("not a pdf at all"), "application/pdf")
		require.NotNil(t, result)
		require.Len(t, result.Pages, 1)
		assert.Equal(t, PDFFailurePlaceholder, result.Pages[0])
		assert.Equal(t, 1, result.PageCount)
	})

	t.Run("spreadsheet gets placeholder", func(t *testing.T) {
		result := extractor.Extract([]byte("a,b,c"), "text/csv")
		require.Len(t, result.Pages, 1)
		assert.Equal(t, SheetPlaceholder, result.Pages[0])
	})

	t.Run("image gets placeholder", func(t *testing.T) {
		result := extractor.Extract([]byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
		require.Len(t, result.Pages, 1)
		assert.Equal(t, ImagePlaceholder, result.Pages[0])
	})

	t.Run("unknown type gets placeholder", func(t *testing.T) {
		result := extractor.Extract([]byte("???"), "application/octet-stream")
		require.Len(t, result.Pages, 1)
		assert.Equal(t, UnsupportedPlaceholder, result.Pages[0])
	})

	t.Run("plain text passes through", func(t *testing.T) {
		result := extractor.Extract([]byte("revenue grew 12% year over year"), "text/plain")
		require.Len(t, result.Pages, 1)
		assert.Equal(t, "revenue grew 12% year over year", result.Pages[0])
	})

	t.Run("html stripped to body text", func(t *testing.T) {
		html := `<html><head><style>p{color:red}</style></head>` +
			`<body><nav>menu</nav><p>Quarterly   results</p><script>alert(1)</script></body></html>`
		result := extractor.Extract([]byte(html), "text/html; charset=utf-8")
		require.Len(t, result.Pages, 1)
		assert.Equal(t, "Quarterly results", result.Pages[0])
		assert.NotContains(t, result.Pages[0], "menu")
		assert.NotContains(t, result.Pages[0], "alert")
	})
}

func TestSplitIntoPages(t *testing.T) {
	t.Run("single page returns whole text", func(t *testing.T) {
		pages := SplitIntoPages("hello world", 1)
		require.Len(t, pages, 1)
		assert.Equal(t, "hello world", pages[0])
	})

	t.Run("even split", func(t *testing.T) {
		pages := SplitIntoPages("aabbcc", 3)
		require.Len(t, pages, 3)
		assert.Equal(t, []string{"aa", "bb", "cc"}, pages)
	})

	t.Run("uneven split pads trailing pages", func(t *testing.T) {
		pages := SplitIntoPages("abcde", 3)
		require.Len(t, pages, 3)
		assert.Equal(t, "abcde", strings.Join(pages, ""))
		assert.Equal(t, "ab", pages[0])
	})

	t.Run("more pages than characters", func(t *testing.T) {
		pages := SplitIntoPages("ab", 4)
		require.Len(t, pages, 4)
		assert.Equal(t, "ab", strings.Join(pages, ""))
	})

	t.Run("empty text", func(t *testing.T) {
		pages := SplitIntoPages("", 3)
		require.Len(t, pages, 3)
		for _, p := range pages {
			assert.Empty(t, p)
		}
	})

	t.Run("multibyte runes stay intact", func(t *testing.T) {
		pages := SplitIntoPages("éééééé", 3)
		require.Len(t, pages, 3)
		for _, p := range pages {
			assert.Equal(t, "éé", p)
		}
	})
}
