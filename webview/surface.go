// Package webview drives CSS-column pagination: book markup is wrapped in a
// column container, handed to a web engine, and page geometry is read back
// through the Surface interface. The native engine in layout is the
// measurement-based alternative; both produce the same page model.
package webview

// BlockBox is the rendered geometry of one annotated block, in document
// coordinates (Left grows with the column axis).
type BlockBox struct {
	ID     string
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Surface abstracts the platform web engine. Implementations are not safe
// for concurrent use; the bridge serializes access.
type Surface interface {
	// Load replaces the document with the given HTML.
	Load(html string) error
	// ScrollWidth returns the full laid-out content width.
	ScrollWidth() (float64, error)
	// ColumnWidth returns the computed width of one text column after
	// layout, the authoritative value for page arithmetic.
	ColumnWidth() (float64, error)
	// ScrollOffset returns the current horizontal scroll position.
	ScrollOffset() (float64, error)
	// ScrollTo sets the horizontal scroll position.
	ScrollTo(x float64) error
	// BlockBoxes returns geometry for every annotated block, in document
	// order.
	BlockBoxes() ([]BlockBox, error)
	// ElementLeft returns the left edge of the element with the given id or
	// anchor name; found is false when the element does not exist.
	ElementLeft(anchor string) (left float64, found bool, err error)
	// InsertHTML splices a fragment into the document before the element
	// with the given id, or appends when the id is empty.
	InsertHTML(beforeID, fragment string) error
	// ForceLayout flushes pending layout so geometry reads are current.
	ForceLayout() error
}
