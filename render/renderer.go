// Package render binds pagination to the reading screen: it owns the current
// page, applies resolved gestures, and reports position changes to the shell
// UI. Two implementations exist, one per pagination backend.
package render

import (
	"context"

	"reader/content"
	"reader/position"
)

// Callbacks notify the shell UI. Nil members are skipped.
type Callbacks struct {
	// OnPageChanged fires whenever the visible page changes, with the page
	// count of the current scope.
	OnPageChanged func(page, totalPages int)
	// OnSpineChanged fires when reading crosses into another spine item.
	OnSpineChanged func(spineIndex int, spineItemID string)
	// OnPositionChanged fires with the serialized locator once the view
	// settles on a page.
	OnPositionChanged func(locator string)
	// OnRenderReady fires when the first page of an opened book is
	// displayable.
	OnRenderReady func()
}

func (c Callbacks) pageChanged(page, total int) {
	if c.OnPageChanged != nil {
		c.OnPageChanged(page, total)
	}
}

func (c Callbacks) spineChanged(idx int, id string) {
	if c.OnSpineChanged != nil {
		c.OnSpineChanged(idx, id)
	}
}

func (c Callbacks) positionChanged(locator string) {
	if c.OnPositionChanged != nil {
		c.OnPositionChanged(locator)
	}
}

func (c Callbacks) renderReady() {
	if c.OnRenderReady != nil {
		c.OnRenderReady()
	}
}

// PageRenderer is the contract between the reading screen and a pagination
// backend.
type PageRenderer interface {
	// Open prepares the book and displays the first page of order spineIndex.
	Open(ctx context.Context, book *content.Book, spineIndex int) error
	// GoToPage displays the given page of the current scope, clamped.
	GoToPage(ctx context.Context, page int) error
	// NextPage advances one page, crossing into the next spine item at a
	// chapter edge. At the end of the book it settles where it is.
	NextPage(ctx context.Context) error
	// PreviousPage is the NextPage counterpart, landing on the last page of
	// the preceding spine item when crossing.
	PreviousPage(ctx context.Context) error
	// GoToBlock displays the page containing the identified block.
	GoToBlock(ctx context.Context, blockID string) error
	// GoToSpineItem displays the first page of the named spine item.
	GoToSpineItem(ctx context.Context, spineItemID string) error
	// HandleSwipe applies a settled drag gesture.
	HandleSwipe(ctx context.Context, startPage, currentPage int, velocity float64) error
	// CurrentPage is the visible page within the current scope.
	CurrentPage() int
	// PageCount is the page total of the current scope.
	PageCount() int
	// SpineIndex is the spine item being read.
	SpineIndex() int
	// Locator captures the reading position, false before any page settles.
	Locator() (position.Position, bool)
	// RestorePosition navigates to a previously captured locator.
	RestorePosition(ctx context.Context, pos position.Position) error
}
