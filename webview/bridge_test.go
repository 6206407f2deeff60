package webview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"reader/content"
)

// Geometry used throughout: 160px columns of 3 lines, 20 cells per line,
// stride 180.
func testOptions() Options {
	return Options{
		ViewportWidth:  180,
		ViewportHeight: 66,
		FontScale:      1,
		MarginSize:     10,
		ColumnGap:      20,
	}
}

func block(id, text string) string {
	return `<p ` + content.BlockIDAttr + `="` + id + `" id="` + id + `">` + text + `</p>`
}

func testSection(blocks ...string) content.HTMLSection {
	return content.HTMLSection{
		SpineItemID: "ch1",
		Markup:      strings.Join(blocks, "\n"),
	}
}

func loadedBridge(t *testing.T, sec content.HTMLSection) (*Bridge, int) {
	t.Helper()
	b := NewBridge(NewDOMSurface(testOptions()), testOptions(), zap.NewNop())
	pages, err := b.LoadSection(context.Background(), sec)
	if err != nil {
		t.Fatal(err)
	}
	return b, pages
}

func TestLoadSectionPageCount(t *testing.T) {
	// Three one-line blocks fill the first column, the fourth overflows.
	sec := testSection(
		block("b1", "aaaaaaaaaa"),
		block("b2", "aaaaaaaaaa"),
		block("b3", "aaaaaaaaaa"),
		block("b4", "aaaaaaaaaa"),
	)
	b, pages := loadedBridge(t, sec)

	if pages != 2 {
		t.Errorf("got %d pages, want 2", pages)
	}
	if b.CurrentSpineItem() != "ch1" {
		t.Errorf("current spine item %q", b.CurrentSpineItem())
	}
}

func TestPageCountNeverBelowOne(t *testing.T) {
	_, pages := loadedBridge(t, testSection())
	if pages != 1 {
		t.Errorf("empty section: got %d pages, want 1", pages)
	}
}

func TestNavigateClamping(t *testing.T) {
	b, pages := loadedBridge(t, testSection(
		block("b1", "aaaaaaaaaa"),
		block("b2", "aaaaaaaaaa"),
		block("b3", "aaaaaaaaaa"),
		block("b4", "aaaaaaaaaa"),
	))
	if pages != 2 {
		t.Fatalf("got %d pages", pages)
	}

	if err := b.NavigateToPage(1); err != nil {
		t.Fatal(err)
	}
	if got := b.CurrentPage(); got != 1 {
		t.Errorf("CurrentPage() = %d, want 1", got)
	}

	if err := b.NavigateToPage(99); err != nil {
		t.Fatal(err)
	}
	if got := b.CurrentPage(); got != pages-1 {
		t.Errorf("over-navigation landed on %d, want %d", got, pages-1)
	}

	if err := b.NavigateToPage(-5); err != nil {
		t.Fatal(err)
	}
	if got := b.CurrentPage(); got != 0 {
		t.Errorf("under-navigation landed on %d, want 0", got)
	}
}

func TestFirstVisibleBlock(t *testing.T) {
	b, _ := loadedBridge(t, testSection(
		block("b1", "aaaaaaaaaa"),
		block("b2", "aaaaaaaaaa"),
		block("b3", "aaaaaaaaaa"),
		block("b4", "aaaaaaaaaa"),
	))

	if err := b.NavigateToPage(0); err != nil {
		t.Fatal(err)
	}
	if box := b.FirstVisibleBlock(); box == nil || box.ID != "b1" {
		t.Errorf("page 0: %+v", box)
	}

	if err := b.NavigateToPage(1); err != nil {
		t.Fatal(err)
	}
	if box := b.FirstVisibleBlock(); box == nil || box.ID != "b4" {
		t.Errorf("page 1: %+v", box)
	}
}

func TestNavigateToAnchor(t *testing.T) {
	b, _ := loadedBridge(t, testSection(
		block("b1", "aaaaaaaaaa"),
		block("b2", "aaaaaaaaaa"),
		block("b3", "aaaaaaaaaa"),
		block("b4", "aaaaaaaaaa"),
	))

	page, err := b.NavigateToAnchor("b4")
	if err != nil {
		t.Fatal(err)
	}
	if page != 1 {
		t.Errorf("anchor b4 on page %d, want 1", page)
	}

	page, err = b.NavigateToAnchor("missing")
	if err != nil {
		t.Fatal(err)
	}
	if page != 0 {
		t.Errorf("missing anchor resolved to page %d, want 0", page)
	}
}

func TestInsertSection(t *testing.T) {
	b, _ := loadedBridge(t, testSection(block("b1", "aaaaaaaaaa")))

	next := content.HTMLSection{SpineItemID: "ch2", Markup: block("b2", "aaaaaaaaaa")}
	if err := b.InsertSection(next, ""); err != nil {
		t.Fatal(err)
	}

	boxes, err := b.surface.BlockBoxes()
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(boxes))
	for i, box := range boxes {
		ids[i] = box.ID
	}
	if len(ids) != 2 || ids[0] != "b1" || ids[1] != "b2" {
		t.Errorf("boxes after append: %v", ids)
	}

	// Splice a section before ch2.
	mid := content.HTMLSection{SpineItemID: "ch1a", Markup: block("b1a", "aaaaaaaaaa")}
	if err := b.InsertSection(mid, "ch2"); err != nil {
		t.Fatal(err)
	}
	boxes, err = b.surface.BlockBoxes()
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 3 || boxes[1].ID != "b1a" {
		t.Errorf("boxes after splice: %+v", boxes)
	}
}

func TestHandleLink(t *testing.T) {
	b, _ := loadedBridge(t, testSection(block("b1", "aaaaaaaaaa")))
	b.SetSpine(map[string]string{"text/chapter2.xhtml": "ch2"})

	cases := []struct {
		href string
		want LinkAction
	}{
		{"https://example.com/a", LinkAction{Target: LinkTargetExternal, URL: "https://example.com/a"}},
		{"mailto:author@example.com", LinkAction{Target: LinkTargetExternal, URL: "mailto:author@example.com"}},
		{"#b1", LinkAction{Target: LinkTargetInternal, SpineItemID: "ch1", Anchor: "b1"}},
		{"chapter2.xhtml", LinkAction{Target: LinkTargetInternal, SpineItemID: "ch2"}},
		{"../text/chapter2.xhtml#note3", LinkAction{Target: LinkTargetInternal, SpineItemID: "ch2", Anchor: "note3"}},
		{"unknown.xhtml", LinkAction{Target: LinkTargetNone}},
		{"javascript:alert(1)", LinkAction{Target: LinkTargetNone}},
		{"", LinkAction{Target: LinkTargetNone}},
	}
	for _, c := range cases {
		if got := b.HandleLink(c.href); got != c.want {
			t.Errorf("HandleLink(%q) = %+v, want %+v", c.href, got, c.want)
		}
	}
}

func TestPublisherCSSFiltered(t *testing.T) {
	opts := testOptions()
	opts.UsePublisherCSS = true
	b := NewBridge(NewDOMSurface(opts), opts, zap.NewNop())

	sec := content.HTMLSection{
		SpineItemID: "ch1",
		Markup:      block("b1", "text"),
		Stylesheet:  "p { margin: 1em; column-count: 3; }",
	}
	html, err := b.wrapSection(sec)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "margin: 1em;") {
		t.Error("safe publisher declaration missing")
	}
	if strings.Contains(html, "column-count: 3") {
		t.Error("column declaration leaked into wrapper")
	}
}

// blockingSurface parks Load until released, to exercise the in-flight
// guard.
type blockingSurface struct {
	DOMSurface
	release chan struct{}
	loading chan struct{}
	once    sync.Once
}

func (s *blockingSurface) Load(markup string) error {
	s.once.Do(func() { close(s.loading) })
	<-s.release
	return s.DOMSurface.Load(markup)
}

func TestLoadSectionBusy(t *testing.T) {
	surface := &blockingSurface{
		DOMSurface: *NewDOMSurface(testOptions()),
		release:    make(chan struct{}),
		loading:    make(chan struct{}),
	}
	b := NewBridge(surface, testOptions(), zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := b.LoadSection(context.Background(), testSection(block("b1", "text")))
		done <- err
	}()

	<-surface.loading
	if _, err := b.LoadSection(context.Background(), testSection(block("b2", "text"))); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent load: %v, want ErrBusy", err)
	}

	close(surface.release)
	if err := <-done; err != nil {
		t.Errorf("first load failed: %v", err)
	}

	// Guard released after completion.
	if _, err := b.LoadSection(context.Background(), testSection(block("b3", "text"))); err != nil {
		t.Errorf("follow-up load failed: %v", err)
	}
}

func TestLoadSectionCancelledDuringSettle(t *testing.T) {
	opts := testOptions()
	opts.SettleDelay = time.Minute
	b := NewBridge(NewDOMSurface(opts), opts, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.LoadSection(ctx, testSection(block("b1", "text"))); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSectionWrapperFontSize(t *testing.T) {
	opts := testOptions()
	opts.FontScale = 1.25
	b := NewBridge(NewDOMSurface(opts), opts, zap.NewNop())

	html, err := b.wrapSection(testSection(block("b1", "text")))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "font-size: 125%") {
		t.Error("wrapper font size not scaled from FontScale")
	}
}

func TestAnchorAtColumnBoundary(t *testing.T) {
	s := NewDOMSurface(testOptions())
	full := strings.Repeat("a", 56) // three 20-cell lines, one full column
	markup := `<section id="sec-a">` + block("b1", full) + `</section>` +
		`<section id="sec-b">` + block("b2", full) + `</section>`
	if err := s.Load(markup); err != nil {
		t.Fatal(err)
	}

	left, found, err := s.ElementLeft("sec-a")
	if err != nil || !found || left != 0 {
		t.Errorf("sec-a at %v (found %v, err %v), want 0", left, found, err)
	}

	// sec-b's block starts a new column, the anchor must follow it there.
	left, found, err = s.ElementLeft("sec-b")
	if err != nil || !found || left != 180 {
		t.Errorf("sec-b at %v (found %v, err %v), want 180", left, found, err)
	}
}

// computedSurface reports a column width different from the geometry.
type computedSurface struct {
	*DOMSurface
	width float64
}

func (s *computedSurface) ColumnWidth() (float64, error) { return s.width, nil }

func TestColumnWidthFromSurface(t *testing.T) {
	surface := &computedSurface{DOMSurface: NewDOMSurface(testOptions()), width: 150}
	b := NewBridge(surface, testOptions(), zap.NewNop())

	if got := b.ColumnWidth(); got != 160 {
		t.Fatalf("before load: %v, want geometric 160", got)
	}
	if _, err := b.LoadSection(context.Background(), testSection(block("b1", "text"))); err != nil {
		t.Fatal(err)
	}
	if got := b.ColumnWidth(); got != 150 {
		t.Errorf("after load: %v, want computed 150", got)
	}
	if got := b.stride(); got != 170 {
		t.Errorf("stride %v, want 170", got)
	}
}

// gapSurface serves canned geometry with a hole at the front of the
// document.
type gapSurface struct {
	DOMSurface
	boxes  []BlockBox
	offset float64
}

func (s *gapSurface) BlockBoxes() ([]BlockBox, error) { return s.boxes, nil }
func (s *gapSurface) ScrollOffset() (float64, error)  { return s.offset, nil }

func TestFirstVisibleBlockEmptyViewport(t *testing.T) {
	surface := &gapSurface{boxes: []BlockBox{{ID: "b1", Left: 360, Width: 160}}}
	b := NewBridge(surface, testOptions(), zap.NewNop())

	if box := b.FirstVisibleBlock(); box != nil {
		t.Errorf("block beyond the right edge reported visible: %+v", box)
	}

	surface.offset = 360
	if box := b.FirstVisibleBlock(); box == nil || box.ID != "b1" {
		t.Errorf("block under the viewport not found: %+v", box)
	}
}
