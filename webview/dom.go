package webview

import (
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"reader/content"
)

// DOMSurface is an in-process Surface: it parses the loaded document and
// lays annotated blocks out into fixed-height columns with a simple
// monospace-cell text model. Deterministic by construction, it backs tests
// and headless page counting where no platform web engine exists.
type DOMSurface struct {
	viewportHeight float64
	columnWidth    float64
	stride         float64
	charWidth      float64
	lineHeight     float64
	imageHeight    float64

	doc         *html.Node
	boxes       []BlockBox
	anchors     map[string]float64
	scrollWidth float64
	offset      float64
}

// NewDOMSurface creates a surface matching the bridge geometry.
func NewDOMSurface(opts Options) *DOMSurface {
	colW := float64(opts.ViewportWidth - 2*opts.MarginSize)
	if colW < 1 {
		colW = 1
	}
	scale := opts.FontScale
	if scale <= 0 {
		scale = 1
	}
	return &DOMSurface{
		viewportHeight: float64(opts.ViewportHeight),
		columnWidth:    colW,
		stride:         colW + float64(opts.ColumnGap),
		charWidth:      8 * scale,
		lineHeight:     22 * scale,
		imageHeight:    float64(opts.ViewportHeight) * 0.75,
		anchors:        make(map[string]float64),
	}
}

// Load implements Surface.
func (s *DOMSurface) Load(markup string) error {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return err
	}
	s.doc = doc
	s.offset = 0
	s.relayout()
	return nil
}

// ScrollWidth implements Surface.
func (s *DOMSurface) ScrollWidth() (float64, error) {
	return s.scrollWidth, nil
}

// ColumnWidth implements Surface.
func (s *DOMSurface) ColumnWidth() (float64, error) {
	return s.columnWidth, nil
}

// ScrollOffset implements Surface.
func (s *DOMSurface) ScrollOffset() (float64, error) {
	return s.offset, nil
}

// ScrollTo implements Surface.
func (s *DOMSurface) ScrollTo(x float64) error {
	if x < 0 {
		x = 0
	}
	if x > s.scrollWidth {
		x = s.scrollWidth
	}
	s.offset = x
	return nil
}

// BlockBoxes implements Surface.
func (s *DOMSurface) BlockBoxes() ([]BlockBox, error) {
	out := make([]BlockBox, len(s.boxes))
	copy(out, s.boxes)
	return out, nil
}

// ElementLeft implements Surface.
func (s *DOMSurface) ElementLeft(anchor string) (float64, bool, error) {
	left, ok := s.anchors[anchor]
	return left, ok, nil
}

// InsertHTML implements Surface.
func (s *DOMSurface) InsertHTML(beforeID, fragment string) error {
	body := findBody(s.doc)
	if body == nil {
		return nil
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return err
	}

	var before *html.Node
	if beforeID != "" {
		before = findByID(body, beforeID)
	}
	for _, n := range nodes {
		if before != nil {
			body.InsertBefore(n, before)
		} else {
			body.AppendChild(n)
		}
	}
	return nil
}

// ForceLayout implements Surface.
func (s *DOMSurface) ForceLayout() error {
	s.relayout()
	return nil
}

// relayout flows blocks into columns top to bottom, left to right. A block
// taller than one column spills into the following columns.
func (s *DOMSurface) relayout() {
	s.boxes = nil
	s.anchors = make(map[string]float64)
	s.scrollWidth = 0
	if s.doc == nil {
		return
	}
	body := findBody(s.doc)
	if body == nil {
		return
	}

	var x, y float64
	var pending []string
	flush := func(left float64) {
		for _, name := range pending {
			s.anchors[name] = left
		}
		pending = pending[:0]
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attrValue(n, "id"); id != "" {
				pending = append(pending, id)
			}
			if n.DataAtom == atom.A {
				if name := attrValue(n, "name"); name != "" {
					pending = append(pending, name)
				}
			}
			if blockID := attrValue(n, content.BlockIDAttr); blockID != "" {
				h := s.blockHeight(n)
				if y > 0 && y+h > s.viewportHeight {
					x += s.stride
					y = 0
				}
				s.boxes = append(s.boxes, BlockBox{
					ID:     blockID,
					Left:   x,
					Top:    y,
					Width:  s.columnWidth,
					Height: h,
				})
				// Anchors collected since the previous block resolve to
				// the column where this block actually landed, column
				// advance included.
				flush(x)
				y += h
				for y > s.viewportHeight {
					x += s.stride
					y -= s.viewportHeight
				}
				return // blocks are leaves of the layout
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	flush(x)

	s.scrollWidth = x + s.stride
}

// blockHeight estimates the rendered height of a block from its text length
// using the monospace cell model.
func (s *DOMSurface) blockHeight(n *html.Node) float64 {
	if n.DataAtom == atom.Img || containsElement(n, atom.Img) || containsElement(n, atom.Svg) {
		return s.imageHeight
	}
	cells := 0
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c.Type == html.TextNode {
			cells += runewidth.StringWidth(strings.Join(strings.Fields(c.Data), " "))
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			collect(cc)
		}
	}
	collect(n)

	perLine := int(s.columnWidth / s.charWidth)
	if perLine < 1 {
		perLine = 1
	}
	lines := math.Ceil(float64(cells) / float64(perLine))
	if lines < 1 {
		lines = 1
	}
	return lines * s.lineHeight
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attrValue(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func containsElement(n *html.Node, a atom.Atom) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return true
		}
		if containsElement(c, a) {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
