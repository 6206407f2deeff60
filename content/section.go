// Package content defines the book content model consumed by both pagination
// backends: ordered sections of markup split into identifiable blocks.
package content

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// BlockIDAttr marks block elements in annotated markup. The rendering surface
// scans for this attribute when answering position queries.
const BlockIDAttr = "data-block-id"

// Block is a semantic content unit (paragraph, heading, list item) carrying a
// stable identifier used for position tracking across re-pagination.
type Block struct {
	ID    string
	Tag   string
	Text  string
	Chars int // rune length of Text, the measurement estimate
}

// HTMLSection is one spine item's content. Immutable after creation.
type HTMLSection struct {
	SpineItemID string
	BasePath    string // base for relative resource resolution inside the container
	Markup      string // annotated markup: every block element carries BlockIDAttr
	Stylesheet  string // optional publisher CSS
	Blocks      []Block
	Images      map[string][]byte // resource path -> bytes
}

// Book is an ordered sequence of sections.
type Book struct {
	ID       string
	Sections []HTMLSection
}

// SpineIndexOf returns the index of the section with the given spine item id,
// or -1.
func (b *Book) SpineIndexOf(spineItemID string) int {
	for i := range b.Sections {
		if b.Sections[i].SpineItemID == spineItemID {
			return i
		}
	}
	return -1
}

// blockTags are elements treated as semantic blocks when they have no block
// descendants of their own.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "pre": true, "figure": true, "figcaption": true,
	"dd": true, "dt": true, "td": true, "caption": true,
	"div": true, "section": true, "article": true, "aside": true,
}

// ParseSection reads one spine item's markup, identifies its blocks, assigns
// stable block identifiers and returns the section with annotated markup.
// Parsing is permissive: real-world EPUB content is often not valid XML.
func ParseSection(r io.Reader, spineItemID, basePath string, log *zap.Logger) (*HTMLSection, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		ValidateInput: false,
		Permissive:    true,
	}
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("unable to read section %s: %w", spineItemID, err)
	}

	body := doc.FindElement("//body")
	if body == nil {
		// Fragments without a body element are legal input, take the root.
		body = doc.Root()
	}
	if body == nil {
		return nil, fmt.Errorf("section %s has no content", spineItemID)
	}

	sec := &HTMLSection{
		SpineItemID: spineItemID,
		BasePath:    basePath,
	}

	ids := newBlockIDAllocator()
	collectBlocks(body, func(el *etree.Element) {
		text := collapseSpace(collectText(el))
		id := el.SelectAttrValue("id", "")
		if id == "" {
			id = ids.generate(el.Tag, text)
		} else {
			ids.reserve(id)
		}
		el.CreateAttr(BlockIDAttr, id)
		sec.Blocks = append(sec.Blocks, Block{
			ID:    id,
			Tag:   el.Tag,
			Text:  text,
			Chars: len([]rune(text)),
		})
	})

	markup, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("unable to serialize annotated section %s: %w", spineItemID, err)
	}
	sec.Markup = markup

	log.Debug("Parsed section",
		zap.String("spine_item", spineItemID), zap.Int("blocks", len(sec.Blocks)))
	return sec, nil
}

// collectBlocks walks the element tree emitting the lowest block-tagged
// elements: a block element with block descendants is a grouping wrapper and
// is descended into instead of emitted.
func collectBlocks(el *etree.Element, emit func(*etree.Element)) {
	for _, child := range el.ChildElements() {
		if blockTags[child.Tag] && !hasBlockDescendant(child) {
			emit(child)
			continue
		}
		collectBlocks(child, emit)
	}
}

func hasBlockDescendant(el *etree.Element) bool {
	for _, child := range el.ChildElements() {
		if blockTags[child.Tag] || hasBlockDescendant(child) {
			return true
		}
	}
	return false
}

// collectText concatenates all character data below the element in document
// order.
func collectText(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// blockIDAllocator hands out stable generated identifiers for blocks without
// an id attribute. Identifiers are derived from the block text so they survive
// edits elsewhere in the section.
type blockIDAllocator struct {
	seen map[string]bool
	n    int
}

func newBlockIDAllocator() *blockIDAllocator {
	return &blockIDAllocator{seen: make(map[string]bool)}
}

func (a *blockIDAllocator) reserve(id string) {
	a.seen[id] = true
}

const maxSlugRunes = 24

func (a *blockIDAllocator) generate(tag, text string) string {
	base := slug.Make(truncateRunes(text, maxSlugRunes))
	if base == "" {
		base = tag
	}
	a.n++
	id := fmt.Sprintf("%s-%d", base, a.n)
	for a.seen[id] {
		a.n++
		id = fmt.Sprintf("%s-%d", base, a.n)
	}
	a.seen[id] = true
	return id
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
