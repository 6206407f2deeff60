package render

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reader/content"
	"reader/loader"
	"reader/nav"
	"reader/position"
	"reader/webview"
)

// ColumnRenderer drives the CSS-column backend. The book becomes one
// continuous column document, so pages are document-wide and chapter
// crossings happen by plain page movement; the spine index is derived from
// what is on screen.
type ColumnRenderer struct {
	bridge    *webview.Bridge
	threshold float64
	stepDelay time.Duration
	callbacks Callbacks
	log       *zap.Logger

	book    *content.Book
	loader  *loader.Loader
	spine   int
	settled bool
}

// NewColumnRenderer creates a renderer over the bridge. threshold of zero
// uses the resolver default; stepDelay paces progressive loading.
func NewColumnRenderer(bridge *webview.Bridge, threshold float64, stepDelay time.Duration, callbacks Callbacks, log *zap.Logger) *ColumnRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ColumnRenderer{
		bridge:    bridge,
		threshold: threshold,
		stepDelay: stepDelay,
		callbacks: callbacks,
		log:       log.Named("column"),
	}
}

// Open implements PageRenderer. The opened chapter is displayed immediately;
// the rest of the book streams in behind it via LoadRest.
func (r *ColumnRenderer) Open(ctx context.Context, book *content.Book, spineIndex int) error {
	r.book = book
	r.loader = loader.New(r.bridge, book, r.stepDelay, r.log)
	r.spine = spineIndex
	r.settled = false

	if _, err := r.loader.LoadInitial(ctx, spineIndex); err != nil {
		return err
	}
	r.settled = true
	r.callbacks.renderReady()
	r.callbacks.spineChanged(spineIndex, book.Sections[spineIndex].SpineItemID)
	r.announce()
	return nil
}

// LoadRest streams the remaining chapters into the document. Blocking;
// callers run it behind the reading screen. Cancellation is a normal stop.
func (r *ColumnRenderer) LoadRest(ctx context.Context, progress loader.Progress) error {
	if r.loader == nil {
		return fmt.Errorf("no book open")
	}
	return r.loader.LoadRemaining(ctx, progress)
}

// GoToPage implements PageRenderer.
func (r *ColumnRenderer) GoToPage(_ context.Context, page int) error {
	if err := r.bridge.NavigateToPage(page); err != nil {
		return err
	}
	r.refreshSpine()
	r.announce()
	return nil
}

// NextPage implements PageRenderer. Chapter crossings need no special case:
// the next column may simply belong to the next section.
func (r *ColumnRenderer) NextPage(ctx context.Context) error {
	return r.GoToPage(ctx, r.bridge.CurrentPage()+1)
}

// PreviousPage implements PageRenderer.
func (r *ColumnRenderer) PreviousPage(ctx context.Context) error {
	return r.GoToPage(ctx, r.bridge.CurrentPage()-1)
}

// GoToBlock implements PageRenderer.
func (r *ColumnRenderer) GoToBlock(_ context.Context, blockID string) error {
	page, err := r.bridge.NavigateToAnchor(blockID)
	if err != nil {
		return err
	}
	r.refreshSpine()
	r.announce()
	r.log.Debug("navigated to block", zap.String("block", blockID), zap.Int("page", page))
	return nil
}

// GoToSpineItem implements PageRenderer.
func (r *ColumnRenderer) GoToSpineItem(_ context.Context, spineItemID string) error {
	if r.book == nil || r.book.SpineIndexOf(spineItemID) < 0 {
		return fmt.Errorf("spine item %s not found in book", spineItemID)
	}
	page, err := r.bridge.NavigateToAnchor(webview.SectionAnchor(spineItemID))
	if err != nil {
		return err
	}
	r.refreshSpine()
	r.announce()
	r.log.Debug("navigated to spine item", zap.String("item", spineItemID), zap.Int("page", page))
	return nil
}

// HandleSwipe implements PageRenderer. The whole document is one scope, so
// the resolver never produces spine-crossing actions; edges bounce.
func (r *ColumnRenderer) HandleSwipe(ctx context.Context, startPage, currentPage int, velocity float64) error {
	action := nav.Resolve(nav.Input{
		StartPage:   startPage,
		CurrentPage: currentPage,
		TotalPages:  r.bridge.PageCount(),
		Velocity:    velocity,
		SpineIndex:  0,
		TotalSpines: 1,
	}, r.threshold)

	switch action.Kind {
	case nav.ActionKindSnap:
		return r.GoToPage(ctx, action.Page)
	case nav.ActionKindBounce:
		r.announce()
	}
	return nil
}

// CurrentPage implements PageRenderer.
func (r *ColumnRenderer) CurrentPage() int { return r.bridge.CurrentPage() }

// PageCount implements PageRenderer.
func (r *ColumnRenderer) PageCount() int { return r.bridge.PageCount() }

// SpineIndex implements PageRenderer.
func (r *ColumnRenderer) SpineIndex() int { return r.spine }

// Locator implements PageRenderer. The first visible block anchors the
// position; the surface has no rune offsets, so the locator carries none.
func (r *ColumnRenderer) Locator() (position.Position, bool) {
	if !r.settled {
		return position.Position{}, false
	}
	pos := position.Position{SpineIndex: r.spine}
	if box := r.bridge.FirstVisibleBlock(); box != nil {
		pos.IDRef = box.ID
	}
	return pos, true
}

// RestorePosition implements PageRenderer.
func (r *ColumnRenderer) RestorePosition(ctx context.Context, pos position.Position) error {
	if r.book == nil || pos.SpineIndex < 0 || pos.SpineIndex >= len(r.book.Sections) {
		return fmt.Errorf("locator spine index %d out of range", pos.SpineIndex)
	}

	anchor := pos.IDRef
	if anchor == "" {
		anchor = webview.SectionAnchor(r.book.Sections[pos.SpineIndex].SpineItemID)
	}
	page, err := r.bridge.NavigateToAnchor(anchor)
	if err != nil {
		return err
	}
	r.refreshSpine()
	r.announce()
	r.log.Debug("position restored", zap.String("anchor", anchor), zap.Int("page", page))
	return nil
}

// refreshSpine re-derives the spine index from the scroll position: the last
// loaded section whose anchor sits at or before the visible page.
func (r *ColumnRenderer) refreshSpine() {
	if r.book == nil {
		return
	}
	current := r.bridge.CurrentPage()
	found := r.spine
	for idx, sec := range r.book.Sections {
		if !r.loader.Loaded(idx) {
			continue
		}
		page, ok := r.bridge.PageOfAnchor(webview.SectionAnchor(sec.SpineItemID))
		if ok && page <= current {
			found = idx
		}
	}
	if found != r.spine {
		r.spine = found
		r.callbacks.spineChanged(found, r.book.Sections[found].SpineItemID)
	}
}

// announce fires page and position callbacks for the current state.
func (r *ColumnRenderer) announce() {
	r.callbacks.pageChanged(r.bridge.CurrentPage(), r.bridge.PageCount())
	if pos, ok := r.Locator(); ok {
		r.callbacks.positionChanged(position.Generate(pos))
	}
}
