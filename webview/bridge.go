package webview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"
	"go.uber.org/zap"

	"reader/content"
	"reader/css"
	"reader/layout"
)

// ErrBusy is returned when a load or insert is requested while another one
// is still in flight. The caller retries after the current operation
// settles; requests are never queued.
var ErrBusy = errors.New("webview operation already in flight")

// LinkTarget classifies where a tapped link leads.
// ENUM(none, internal, external)
type LinkTarget int

// LinkAction is the resolution of a tapped link.
type LinkAction struct {
	Target      LinkTarget
	SpineItemID string
	Anchor      string
	URL         string
}

// Options fixes the rendering geometry for a bridge. Changing any field
// means a different layout: callers create a new bridge instead of mutating.
type Options struct {
	ViewportWidth   int
	ViewportHeight  int
	FontScale       float64
	MarginSize      int
	ColumnGap       int
	SettleDelay     time.Duration
	UsePublisherCSS bool
}

// LayoutKey returns the cache key for this geometry.
func (o Options) LayoutKey() layout.LayoutKey {
	return layout.LayoutKey{
		ViewportWidth:  o.ViewportWidth,
		ViewportHeight: o.ViewportHeight,
		FontScale:      o.FontScale,
		MarginSize:     o.MarginSize,
	}
}

// Bridge wraps sections in a column container, loads them into a Surface
// and turns scroll geometry into page numbers. Geometry read failures never
// propagate: measurements degrade to the safe default (one page, no block)
// with a warning, since a misrendered page beats a crashed reader.
type Bridge struct {
	surface Surface
	opts    Options
	parser  *css.Parser
	log     *zap.Logger

	busy     atomic.Bool
	spine    map[string]string
	current  string
	colWidth float64
}

// NewBridge creates a bridge over the surface.
func NewBridge(surface Surface, opts Options, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		surface: surface,
		opts:    opts,
		parser:  css.NewParser(log),
		log:     log.Named("webview"),
		spine:   make(map[string]string),
	}
}

// SetSpine registers the href base name of every spine item so links can be
// resolved to chapters.
func (b *Bridge) SetSpine(hrefToID map[string]string) {
	b.spine = make(map[string]string, len(hrefToID))
	for href, id := range hrefToID {
		b.spine[path.Base(href)] = id
	}
}

// Key returns the cache key for this bridge's geometry.
func (b *Bridge) Key() layout.LayoutKey {
	return b.opts.LayoutKey()
}

// CurrentSpineItem returns the id of the loaded section, or "" before the
// first load.
func (b *Bridge) CurrentSpineItem() string {
	return b.current
}

// ColumnWidth returns the width of one text column: the computed value read
// back from the surface after the last load, or the geometric value before
// the first load and when the read failed. The computed value wins because
// engine layout may round differently than the geometry suggests.
func (b *Bridge) ColumnWidth() float64 {
	if b.colWidth > 0 {
		return b.colWidth
	}
	w := float64(b.opts.ViewportWidth - 2*b.opts.MarginSize)
	if w < 1 {
		w = 1
	}
	return w
}

// stride is the horizontal distance between the left edges of two adjacent
// pages.
func (b *Bridge) stride() float64 {
	return b.ColumnWidth() + float64(b.opts.ColumnGap)
}

// LoadSection wraps the section and loads it into the surface, returning the
// settled page count. Only one load runs at a time; a second call while the
// first is settling returns ErrBusy.
func (b *Bridge) LoadSection(ctx context.Context, sec content.HTMLSection) (int, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer b.busy.Store(false)

	html, err := b.wrapSection(sec)
	if err != nil {
		return 0, err
	}
	if err := b.surface.Load(html); err != nil {
		return 0, fmt.Errorf("unable to load section %s: %w", sec.SpineItemID, err)
	}
	if err := b.settle(ctx); err != nil {
		return 0, err
	}
	if w, err := b.surface.ColumnWidth(); err != nil {
		b.log.Warn("Unable to read computed column width, using geometry", zap.Error(err))
	} else if w > 0 {
		b.colWidth = w
	}
	b.current = sec.SpineItemID
	return b.PageCount(), nil
}

// InsertSection splices an already-wrapped section fragment into the current
// document before the section with the given spine id ("" appends at the
// end), then reflows.
func (b *Bridge) InsertSection(sec content.HTMLSection, beforeSpineID string) error {
	if !b.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.busy.Store(false)

	anchor := ""
	if beforeSpineID != "" {
		anchor = SectionAnchor(beforeSpineID)
	}
	fragment := `<section id="` + SectionAnchor(sec.SpineItemID) + `">` + sec.Markup + `</section>`
	if err := b.surface.InsertHTML(anchor, fragment); err != nil {
		return fmt.Errorf("unable to insert section %s: %w", sec.SpineItemID, err)
	}
	if err := b.surface.ForceLayout(); err != nil {
		return fmt.Errorf("unable to reflow after inserting %s: %w", sec.SpineItemID, err)
	}
	return nil
}

// settle waits out the engine's reflow before any geometry is read.
func (b *Bridge) settle(ctx context.Context) error {
	delay := b.opts.SettleDelay
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := b.surface.ForceLayout(); err != nil {
		b.log.Warn("Reflow failed, geometry may be stale", zap.Error(err))
	}
	return nil
}

// PageCount derives the page count from the settled scroll width. Failure
// degrades to a single page.
func (b *Bridge) PageCount() int {
	sw, err := b.surface.ScrollWidth()
	if err != nil {
		b.log.Warn("Unable to measure content width, assuming one page", zap.Error(err))
		return 1
	}
	pages := int(math.Ceil(sw / b.stride()))
	if pages < 1 {
		pages = 1
	}
	return pages
}

// CurrentPage returns the page the viewport is on. Failure degrades to 0.
func (b *Bridge) CurrentPage() int {
	off, err := b.surface.ScrollOffset()
	if err != nil {
		b.log.Warn("Unable to read scroll position, assuming first page", zap.Error(err))
		return 0
	}
	page := int(math.Round(off / b.stride()))
	if page < 0 {
		page = 0
	}
	if last := b.PageCount() - 1; page > last {
		page = last
	}
	return page
}

// NavigateToPage scrolls to the page, clamped to the document.
func (b *Bridge) NavigateToPage(page int) error {
	if page < 0 {
		page = 0
	}
	if last := b.PageCount() - 1; page > last {
		page = last
	}
	return b.surface.ScrollTo(float64(page) * b.stride())
}

// PageOfAnchor returns the page holding the element, without navigating.
func (b *Bridge) PageOfAnchor(anchor string) (int, bool) {
	left, found, err := b.surface.ElementLeft(anchor)
	if err != nil || !found {
		return 0, false
	}
	return int(math.Floor(left / b.stride())), true
}

// NavigateToAnchor scrolls to the page containing the element. An unknown
// anchor degrades to the first page.
func (b *Bridge) NavigateToAnchor(anchor string) (int, error) {
	left, found, err := b.surface.ElementLeft(anchor)
	if err != nil || !found {
		if err != nil {
			b.log.Warn("Unable to locate anchor", zap.String("anchor", anchor), zap.Error(err))
		} else {
			b.log.Warn("Anchor not found", zap.String("anchor", anchor))
		}
		return 0, b.NavigateToPage(0)
	}
	page := int(math.Floor(left / b.stride()))
	return page, b.NavigateToPage(page)
}

// FirstVisibleBlock returns the first annotated block whose box overlaps the
// viewport, the anchor for position restoration. An empty viewport and any
// measurement failure degrade to nil.
func (b *Bridge) FirstVisibleBlock() *BlockBox {
	off, err := b.surface.ScrollOffset()
	if err != nil {
		b.log.Warn("Unable to read scroll position", zap.Error(err))
		return nil
	}
	boxes, err := b.surface.BlockBoxes()
	if err != nil {
		b.log.Warn("Unable to read block geometry", zap.Error(err))
		return nil
	}
	right := off + float64(b.opts.ViewportWidth)
	for _, box := range boxes {
		if box.Left+box.Width > off && box.Left < right {
			found := box
			return &found
		}
	}
	return nil
}

// HandleLink classifies a tapped href: a chapter or fragment within the book
// is internal, an absolute URL leaves the app, anything else is inert.
func (b *Bridge) HandleLink(href string) LinkAction {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || href == "" {
		return LinkAction{Target: LinkTargetNone}
	}
	switch u.Scheme {
	case "http", "https", "mailto":
		return LinkAction{Target: LinkTargetExternal, URL: href}
	case "":
	default:
		return LinkAction{Target: LinkTargetNone}
	}
	if u.Path == "" {
		if u.Fragment == "" {
			return LinkAction{Target: LinkTargetNone}
		}
		return LinkAction{Target: LinkTargetInternal, SpineItemID: b.current, Anchor: u.Fragment}
	}
	if id, ok := b.spine[path.Base(u.Path)]; ok {
		return LinkAction{Target: LinkTargetInternal, SpineItemID: id, Anchor: u.Fragment}
	}
	return LinkAction{Target: LinkTargetNone}
}

// SectionAnchor returns the wrapper element id carrying a spine item, the
// anchor used to find chapter starts in the continuous document.
func SectionAnchor(spineItemID string) string {
	return "section-" + spineItemID
}

// sectionTemplate is the house wrapper: a column container sized to the
// viewport, a zoom guard, and the publisher CSS after the house rules so the
// sanitizer has the last word on what cascades.
var sectionTemplate = template.Must(template.New("section").Funcs(sprig.FuncMap()).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1, maximum-scale=1, user-scalable=no"/>
<style>
html, body {
  margin: 0;
  padding: 0;
  height: {{ .ViewportHeight }}px;
  overflow: hidden;
}
body {
  column-width: {{ .ColumnWidth }}px;
  column-gap: {{ .ColumnGap }}px;
  column-fill: auto;
  padding: 0 {{ .MarginSize }}px;
  font-size: {{ .FontSizePct }}%;
  box-sizing: border-box;
}
img, svg { max-width: 100%; max-height: {{ .ViewportHeight }}px; }
</style>
{{- if .PublisherCSS }}
<style>
{{ .PublisherCSS }}
</style>
{{- end }}
</head>
<body>
<section id="{{ .Anchor }}">
{{ .Body }}
</section>
</body>
</html>
`))

type sectionValues struct {
	ViewportHeight int
	ColumnWidth    int
	ColumnGap      int
	MarginSize     int
	FontSizePct    int
	PublisherCSS   string
	Anchor         string
	Body           string
}

// wrapSection renders the section markup into the house column document.
func (b *Bridge) wrapSection(sec content.HTMLSection) (string, error) {
	publisher := ""
	if b.opts.UsePublisherCSS && sec.Stylesheet != "" {
		sheet := b.parser.Sanitize(b.parser.Parse([]byte(sec.Stylesheet), sec.SpineItemID))
		publisher = sheet.String()
		for _, w := range sheet.Warnings {
			b.log.Debug("Publisher CSS filtered", zap.String("chapter", sec.SpineItemID), zap.String("warning", w))
		}
	}

	buf := new(bytes.Buffer)
	err := sectionTemplate.Execute(buf, sectionValues{
		ViewportHeight: b.opts.ViewportHeight,
		ColumnWidth:    int(b.ColumnWidth()),
		ColumnGap:      b.opts.ColumnGap,
		MarginSize:     b.opts.MarginSize,
		FontSizePct:    int(math.Round(b.opts.FontScale * 100)),
		PublisherCSS:   publisher,
		Anchor:         SectionAnchor(sec.SpineItemID),
		Body:           sec.Markup,
	})
	if err != nil {
		return "", fmt.Errorf("unable to render section wrapper: %w", err)
	}
	return buf.String(), nil
}
