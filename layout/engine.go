package layout

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"reader/content/text"
)

// Engine is the native greedy paginator. It walks each section's text front
// to back, asks the measurer how much fits on one page, and emits gap-free
// page offsets. Pagination is deterministic: same stream, same config, same
// layout.
type Engine struct {
	measurer Measurer
	splitter *text.Splitter
	log      *zap.Logger
}

// NewEngine returns an engine over the given measurer. The splitter is
// optional; when present, page breaks that land mid-text are pulled back to
// the nearest sentence end that keeps at least half the page.
func NewEngine(m Measurer, splitter *text.Splitter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{measurer: m, splitter: splitter, log: log.Named("engine")}
}

// Paginate lays out the stream under the config. Every rune of every section
// lands on exactly one page, pages within a section are contiguous and
// ordered, and no page straddles two sections. An empty stream yields a
// layout with zero pages. The context is checked between pages; cancellation
// abandons the layout.
func (e *Engine) Paginate(ctx context.Context, bookID, spineItemID string, stream ContentStream, config LayoutConfig) (ChapterLayout, error) {
	layout := ChapterLayout{
		BookID:      bookID,
		SpineItemID: spineItemID,
		Config:      config,
	}

	for _, sec := range stream.Sections {
		if sec.Span.Length == 0 {
			continue
		}
		segStart, segEnd := sec.Span.Location, sec.Span.End()

		var breaks []int
		if e.splitter != nil {
			breaks = e.splitter.BreakOffsets(string(stream.Text[segStart:segEnd]))
		}

		for offset := segStart; offset < segEnd; {
			if err := ctx.Err(); err != nil {
				return ChapterLayout{}, err
			}

			fit := e.measurer.Fit(stream.Text[offset:segEnd], config)
			if fit < 1 {
				fit = 1
			}
			if offset+fit > segEnd {
				fit = segEnd - offset
			}
			if offset+fit < segEnd {
				fit = snapToSentence(breaks, offset-segStart, fit)
			}

			r := CharRange{Location: offset, Length: fit}
			po := PageOffset{Range: r}
			po.FirstBlockID, po.FirstBlockCharOffset,
				po.LastBlockID, po.LastBlockCharOffset = attributeBoundaries(stream.Blocks, r)
			layout.PageOffsets = append(layout.PageOffsets, po)
			offset += fit
		}
	}

	layout.PageOffsets = spliceImagePages(layout.PageOffsets, stream.Images)
	for i := range layout.PageOffsets {
		layout.PageOffsets[i].PageIndex = i
	}

	e.log.Debug("chapter paginated",
		zap.String("book", bookID),
		zap.String("chapter", spineItemID),
		zap.Int("pages", len(layout.PageOffsets)))
	return layout, nil
}

// snapToSentence pulls a page break back to the last sentence end inside the
// page, but only when that keeps more than half the measured text. Offsets in
// breaks are segment-relative and ascending.
func snapToSentence(breaks []int, pageStart, fit int) int {
	limit := pageStart + fit
	floor := pageStart + fit/2
	snapped := fit
	for _, b := range breaks {
		if b > limit {
			break
		}
		if b > floor && b > pageStart {
			snapped = b - pageStart
		}
	}
	return snapped
}

// attributeBoundaries names the blocks holding the first and last rune of the
// range. When a boundary rune falls outside every block span, the lowest
// overlapping block by start offset stands in; blocks are ordered by start,
// so the first overlap wins.
func attributeBoundaries(blocks []BlockSpan, r CharRange) (firstID string, firstOff int, lastID string, lastOff int) {
	if len(blocks) == 0 || r.Length == 0 {
		return "", 0, "", 0
	}

	first := boundaryBlock(blocks, r, r.Location)
	last := boundaryBlock(blocks, r, r.End()-1)
	if first < 0 || last < 0 {
		return "", 0, "", 0
	}

	firstOff = clampToBlock(r.Location, blocks[first].Span)
	lastOff = clampToBlock(r.End()-1, blocks[last].Span)
	return blocks[first].ID, firstOff, blocks[last].ID, lastOff
}

// clampToBlock maps an absolute rune offset into the block, pinning runes
// that fell outside it (fallback attribution) to the nearest edge.
func clampToBlock(off int, span CharRange) int {
	rel := off - span.Location
	if rel < 0 {
		return 0
	}
	if rel >= span.Length {
		return span.Length - 1
	}
	return rel
}

func boundaryBlock(blocks []BlockSpan, r CharRange, off int) int {
	for i, b := range blocks {
		if b.Span.Contains(off) {
			return i
		}
	}
	for i, b := range blocks {
		if b.Span.Location < r.End() && b.Span.End() > r.Location {
			return i
		}
	}
	return -1
}

// spliceImagePages inserts one zero-length page per image at its requested
// index, clamped to the page list. Inserts are applied in ascending index
// order so earlier splices shift later ones consistently.
func spliceImagePages(pages []PageOffset, images []ImageInsert) []PageOffset {
	if len(images) == 0 {
		return pages
	}

	ordered := make([]ImageInsert, len(images))
	copy(ordered, images)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for _, img := range ordered {
		at := img.Index
		if at < 0 {
			at = 0
		}
		if at > len(pages) {
			at = len(pages)
		}
		var loc int
		if at < len(pages) {
			loc = pages[at].Range.Location
		} else if len(pages) > 0 {
			loc = pages[len(pages)-1].Range.End()
		}
		page := PageOffset{
			Range: CharRange{Location: loc, Length: 0},
			Image: img.Name,
		}
		pages = append(pages, PageOffset{})
		copy(pages[at+1:], pages[at:])
		pages[at] = page
	}
	return pages
}
