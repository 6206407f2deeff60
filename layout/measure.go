package layout

import "github.com/mattn/go-runewidth"

// Measurer answers the single question the engine asks: how many runes of
// this text fit in one page-sized container under the given config. A
// platform text stack would implement this with its own layout primitives.
type Measurer interface {
	Fit(text []rune, config LayoutConfig) int
}

// TextMeasurer approximates proportional text layout with terminal-style cell
// widths: every rune costs its runewidth in cells, wide CJK runes cost two.
// CharWidth and LineHeight are in the same unit as the page dimensions, at
// font scale 1.0.
type TextMeasurer struct {
	CharWidth  float64
	LineHeight float64
}

// NewTextMeasurer returns a measurer with typical body-text metrics.
func NewTextMeasurer() *TextMeasurer {
	return &TextMeasurer{CharWidth: 8, LineHeight: 22}
}

// Fit consumes text greedily line by line until the container is full.
// Newlines force line breaks; everything else wraps at the cell boundary.
// Guarantees forward progress: for non-empty text on any viewport the result
// is at least 1.
func (m *TextMeasurer) Fit(text []rune, config LayoutConfig) int {
	if len(text) == 0 {
		return 0
	}

	charW := m.CharWidth * config.FontScale
	lineH := m.LineHeight * config.FontScale
	if charW <= 0 || lineH <= 0 {
		return 1
	}

	lines := int((config.PageHeight - 2*config.VerticalPadding) / lineH)
	cells := int((config.PageWidth - 2*config.HorizontalPadding) / charW)
	if lines < 1 || cells < 1 {
		// Pathological viewport: still make progress one rune at a time.
		return 1
	}

	consumed, line, width := 0, 0, 0
	for consumed < len(text) {
		r := text[consumed]
		if r == '\n' {
			consumed++
			line++
			width = 0
			if line >= lines {
				break
			}
			continue
		}

		w := runewidth.RuneWidth(r)
		if w > cells {
			w = cells
		}
		if width+w > cells {
			line++
			width = 0
			if line >= lines {
				break
			}
			continue // same rune starts the next line
		}
		width += w
		consumed++
	}
	if consumed < 1 {
		consumed = 1
	}
	return consumed
}
