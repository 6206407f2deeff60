// Package layout converts book content into discrete, navigable pages. The
// native engine here measures attributed text directly; the webview package
// provides the CSS-column alternative. Both emit the same position model.
package layout

import (
	"strconv"
	"strings"
)

// LayoutConfig identifies a unique native rendering configuration. Immutable;
// two configs are equal iff all fields match exactly (no float tolerance) —
// it is a cache key component, not a geometry descriptor.
type LayoutConfig struct {
	FontScale         float64
	PageWidth         float64
	PageHeight        float64
	HorizontalPadding float64
	VerticalPadding   float64
}

// Fingerprint returns the exact textual form of the config used in cache
// keys.
func (c LayoutConfig) Fingerprint() string {
	parts := [5]float64{c.FontScale, c.PageWidth, c.PageHeight, c.HorizontalPadding, c.VerticalPadding}
	var b strings.Builder
	for i, f := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return b.String()
}

// CharRange is a half-open run of runes within a chapter's flattened text.
type CharRange struct {
	Location int
	Length   int
}

// End returns the first rune offset past the range.
func (r CharRange) End() int {
	return r.Location + r.Length
}

// Contains reports whether the rune offset falls inside the range.
func (r CharRange) Contains(off int) bool {
	return off >= r.Location && off < r.End()
}

// PageOffset is one page's position within a chapter's flattened text. The
// block fields re-locate the page after re-pagination with a different
// config: character offsets shift, block identities do not.
type PageOffset struct {
	PageIndex            int
	FirstBlockID         string
	FirstBlockCharOffset int
	LastBlockID          string
	LastBlockCharOffset  int
	Range                CharRange
	// Image names the resource occupying this page exclusively. Image pages
	// carry a zero-length range at their insertion point.
	Image string
}

// ChapterLayout is the pagination result for one (book, chapter, config)
// triple. Immutable once built; replaced wholesale when the config changes.
type ChapterLayout struct {
	BookID      string
	SpineItemID string
	Config      LayoutConfig
	PageOffsets []PageOffset
}

// TotalPages returns the page count of the chapter under this layout.
func (l ChapterLayout) TotalPages() int {
	return len(l.PageOffsets)
}

// LayoutKey identifies a rendering configuration for the CSS-column path,
// the counterpart of LayoutConfig for the webview renderer.
type LayoutKey struct {
	ViewportWidth  int
	ViewportHeight int
	FontScale      float64
	MarginSize     int
}

// Fingerprint returns the exact textual form of the key used in cache keys.
func (k LayoutKey) Fingerprint() string {
	return strconv.Itoa(k.ViewportWidth) + "x" + strconv.Itoa(k.ViewportHeight) +
		"|" + strconv.FormatFloat(k.FontScale, 'g', -1, 64) +
		"|" + strconv.Itoa(k.MarginSize)
}

// BookPageCounts is the full-book page count map produced by the background
// counter. Entirely derived data: safe to discard and rebuild at any time.
type BookPageCounts struct {
	BookID          string
	Key             LayoutKey
	SpinePageCounts []int
}

// TotalPages returns the whole-book page count.
func (c BookPageCounts) TotalPages() int {
	total := 0
	for _, n := range c.SpinePageCounts {
		total += n
	}
	return total
}
