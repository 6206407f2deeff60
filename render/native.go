package render

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"reader/content"
	"reader/layout"
	"reader/layout/cache"
	"reader/nav"
	"reader/position"
)

// chapterState is one paginated chapter with the stream it was measured
// from; the stream re-locates blocks when restoring a position.
type chapterState struct {
	layout layout.ChapterLayout
	stream layout.ContentStream
}

// NativeRenderer paginates chapters with the measurement engine and keeps
// the current page itself. Chapters are laid out lazily and cached, so
// config changes only cost re-pagination of what is actually read.
type NativeRenderer struct {
	engine    *layout.Engine
	store     *cache.Service
	config    layout.LayoutConfig
	threshold float64
	callbacks Callbacks
	log       *zap.Logger

	book     *content.Book
	chapters map[int]chapterState
	spine    int
	page     int
	settled  bool
}

// NewNativeRenderer creates a renderer. The cache is optional; threshold of
// zero uses the resolver default.
func NewNativeRenderer(engine *layout.Engine, store *cache.Service, config layout.LayoutConfig, threshold float64, callbacks Callbacks, log *zap.Logger) *NativeRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &NativeRenderer{
		engine:    engine,
		store:     store,
		config:    config,
		threshold: threshold,
		callbacks: callbacks,
		log:       log.Named("native"),
	}
}

// Open implements PageRenderer.
func (r *NativeRenderer) Open(ctx context.Context, book *content.Book, spineIndex int) error {
	if spineIndex < 0 || spineIndex >= len(book.Sections) {
		return fmt.Errorf("spine index %d out of range (%d sections)", spineIndex, len(book.Sections))
	}
	r.book = book
	r.chapters = make(map[int]chapterState)
	r.spine = spineIndex
	r.page = 0
	r.settled = false

	if _, err := r.chapter(ctx, spineIndex); err != nil {
		return err
	}
	r.settled = true
	r.callbacks.renderReady()
	r.callbacks.spineChanged(r.spine, book.Sections[r.spine].SpineItemID)
	r.announce()
	return nil
}

// GoToPage implements PageRenderer.
func (r *NativeRenderer) GoToPage(ctx context.Context, page int) error {
	ch, err := r.chapter(ctx, r.spine)
	if err != nil {
		return err
	}
	if page < 0 {
		page = 0
	}
	if last := ch.layout.TotalPages() - 1; page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	r.page = page
	r.announce()
	return nil
}

// NextPage implements PageRenderer.
func (r *NativeRenderer) NextPage(ctx context.Context) error {
	ch, err := r.chapter(ctx, r.spine)
	if err != nil {
		return err
	}
	if r.page < ch.layout.TotalPages()-1 {
		return r.GoToPage(ctx, r.page+1)
	}
	if r.spine < len(r.book.Sections)-1 {
		return r.moveSpine(ctx, r.spine+1, 0)
	}
	r.announce()
	return nil
}

// PreviousPage implements PageRenderer.
func (r *NativeRenderer) PreviousPage(ctx context.Context) error {
	if r.page > 0 {
		return r.GoToPage(ctx, r.page-1)
	}
	if r.spine > 0 {
		return r.moveSpine(ctx, r.spine-1, -1)
	}
	r.announce()
	return nil
}

// GoToBlock implements PageRenderer.
func (r *NativeRenderer) GoToBlock(ctx context.Context, blockID string) error {
	for idx, sec := range r.book.Sections {
		for _, b := range sec.Blocks {
			if b.ID == blockID {
				return r.RestorePosition(ctx, position.Position{SpineIndex: idx, IDRef: blockID})
			}
		}
	}
	return fmt.Errorf("block %s not found in book", blockID)
}

// GoToSpineItem implements PageRenderer.
func (r *NativeRenderer) GoToSpineItem(ctx context.Context, spineItemID string) error {
	idx := r.book.SpineIndexOf(spineItemID)
	if idx < 0 {
		return fmt.Errorf("spine item %s not found in book", spineItemID)
	}
	return r.moveSpine(ctx, idx, 0)
}

// HandleSwipe implements PageRenderer.
func (r *NativeRenderer) HandleSwipe(ctx context.Context, startPage, currentPage int, velocity float64) error {
	ch, err := r.chapter(ctx, r.spine)
	if err != nil {
		return err
	}

	action := nav.Resolve(nav.Input{
		StartPage:   startPage,
		CurrentPage: currentPage,
		TotalPages:  ch.layout.TotalPages(),
		Velocity:    velocity,
		SpineIndex:  r.spine,
		TotalSpines: len(r.book.Sections),
	}, r.threshold)

	switch action.Kind {
	case nav.ActionKindSnap:
		return r.GoToPage(ctx, action.Page)
	case nav.ActionKindForward:
		return r.moveSpine(ctx, r.spine+1, 0)
	case nav.ActionKindBackward:
		return r.moveSpine(ctx, r.spine-1, -1)
	case nav.ActionKindBounce:
		r.announce()
		return nil
	}
	return nil
}

// CurrentPage implements PageRenderer.
func (r *NativeRenderer) CurrentPage() int { return r.page }

// PageCount implements PageRenderer.
func (r *NativeRenderer) PageCount() int {
	ch, ok := r.chapters[r.spine]
	if !ok {
		return 0
	}
	return ch.layout.TotalPages()
}

// SpineIndex implements PageRenderer.
func (r *NativeRenderer) SpineIndex() int { return r.spine }

// Locator implements PageRenderer.
func (r *NativeRenderer) Locator() (position.Position, bool) {
	ch, ok := r.chapters[r.spine]
	if !ok || !r.settled || ch.layout.TotalPages() == 0 {
		return position.Position{}, false
	}
	po := ch.layout.PageOffsets[r.page]
	pos := position.Position{SpineIndex: r.spine}
	if po.FirstBlockID != "" {
		pos.IDRef = po.FirstBlockID
		pos.CharOffset = po.FirstBlockCharOffset
		pos.HasOffset = true
	}
	return pos, true
}

// RestorePosition implements PageRenderer. The locator's block identity
// survives re-pagination: the page is recovered by locating the block's
// rune under the current layout.
func (r *NativeRenderer) RestorePosition(ctx context.Context, pos position.Position) error {
	if pos.SpineIndex < 0 || pos.SpineIndex >= len(r.book.Sections) {
		return fmt.Errorf("locator spine index %d out of range", pos.SpineIndex)
	}
	if pos.SpineIndex != r.spine {
		if err := r.moveSpine(ctx, pos.SpineIndex, 0); err != nil {
			return err
		}
	}
	if pos.IDRef == "" {
		return r.GoToPage(ctx, 0)
	}

	ch, err := r.chapter(ctx, r.spine)
	if err != nil {
		return err
	}
	page := 0
	if abs, ok := blockRune(ch.stream, pos); ok {
		for _, po := range ch.layout.PageOffsets {
			if po.Range.Contains(abs) {
				page = po.PageIndex
				break
			}
		}
	} else {
		r.log.Warn("Locator block not found, restoring chapter start",
			zap.Int("spine", pos.SpineIndex), zap.String("block", pos.IDRef))
	}
	return r.GoToPage(ctx, page)
}

// blockRune maps a locator to an absolute rune offset in the stream.
func blockRune(stream layout.ContentStream, pos position.Position) (int, bool) {
	for _, b := range stream.Blocks {
		if b.ID != pos.IDRef {
			continue
		}
		off := 0
		if pos.HasOffset {
			off = pos.CharOffset
		}
		if off >= b.Span.Length {
			off = b.Span.Length - 1
		}
		if off < 0 {
			off = 0
		}
		return b.Span.Location + off, true
	}
	return 0, false
}

// moveSpine switches chapters; page -1 means the last page of the target.
func (r *NativeRenderer) moveSpine(ctx context.Context, spineIndex, page int) error {
	if spineIndex < 0 || spineIndex >= len(r.book.Sections) {
		return fmt.Errorf("spine index %d out of range", spineIndex)
	}
	ch, err := r.chapter(ctx, spineIndex)
	if err != nil {
		return err
	}
	r.spine = spineIndex
	if page < 0 {
		page = ch.layout.TotalPages() - 1
		if page < 0 {
			page = 0
		}
	}
	r.callbacks.spineChanged(spineIndex, r.book.Sections[spineIndex].SpineItemID)
	return r.GoToPage(ctx, page)
}

// chapter returns the paginated chapter, from memory, cache, or the engine.
func (r *NativeRenderer) chapter(ctx context.Context, spineIndex int) (chapterState, error) {
	if ch, ok := r.chapters[spineIndex]; ok {
		return ch, nil
	}

	sec := r.book.Sections[spineIndex]
	stream := layout.StreamFromSections([]content.HTMLSection{sec})

	if r.store != nil {
		if cached, ok := r.store.GetLayout(r.book.ID, sec.SpineItemID, r.config); ok {
			ch := chapterState{layout: cached, stream: stream}
			r.chapters[spineIndex] = ch
			return ch, nil
		}
	}

	laid, err := r.engine.Paginate(ctx, r.book.ID, sec.SpineItemID, stream, r.config)
	if err != nil {
		return chapterState{}, err
	}
	if r.store != nil {
		if err := r.store.SaveLayout(laid); err != nil {
			r.log.Warn("Unable to cache layout", zap.String("chapter", sec.SpineItemID), zap.Error(err))
		}
	}
	ch := chapterState{layout: laid, stream: stream}
	r.chapters[spineIndex] = ch
	return ch, nil
}

// announce fires page and position callbacks for the current state.
func (r *NativeRenderer) announce() {
	ch, ok := r.chapters[r.spine]
	if !ok {
		return
	}
	r.callbacks.pageChanged(r.page, ch.layout.TotalPages())
	if pos, ok := r.Locator(); ok {
		r.callbacks.positionChanged(position.Generate(pos))
	}
}
