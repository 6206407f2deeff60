package loader

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"reader/content"
	"reader/webview"
)

func testOptions() webview.Options {
	return webview.Options{
		ViewportWidth:  180,
		ViewportHeight: 66,
		FontScale:      1,
		MarginSize:     10,
		ColumnGap:      20,
	}
}

func testBook(sections int) *content.Book {
	book := &content.Book{ID: "book"}
	for i := 0; i < sections; i++ {
		id := fmt.Sprintf("ch%d", i)
		book.Sections = append(book.Sections, content.HTMLSection{
			SpineItemID: id,
			Markup:      `<p ` + content.BlockIDAttr + `="blk-` + id + `">some text</p>`,
		})
	}
	return book
}

// blockOrder reads the document back through the surface.
func blockOrder(t *testing.T, surface *webview.DOMSurface) []string {
	t.Helper()
	boxes, err := surface.BlockBoxes()
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(boxes))
	for i, b := range boxes {
		ids[i] = strings.TrimPrefix(b.ID, "blk-")
	}
	return ids
}

func newLoader(t *testing.T, book *content.Book, delay time.Duration) (*Loader, *webview.DOMSurface) {
	t.Helper()
	surface := webview.NewDOMSurface(testOptions())
	bridge := webview.NewBridge(surface, testOptions(), zap.NewNop())
	return New(bridge, book, delay, zap.NewNop()), surface
}

func TestLoadRemainingSpineOrder(t *testing.T) {
	book := testBook(5)
	l, surface := newLoader(t, book, 0)

	// Open the book in the middle.
	if _, err := l.LoadInitial(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	var calls []int
	err := l.LoadRemaining(context.Background(), func(loaded, total int) {
		calls = append(calls, loaded)
		if total != 5 {
			t.Errorf("total %d, want 5", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"ch0", "ch1", "ch2", "ch3", "ch4"}
	got := blockOrder(t, surface)
	if len(got) != len(want) {
		t.Fatalf("document order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("document order %v, want %v", got, want)
		}
	}

	if len(calls) != 4 || calls[len(calls)-1] != 5 {
		t.Errorf("progress calls %v", calls)
	}
}

func TestLoadRemainingIdempotent(t *testing.T) {
	book := testBook(3)
	l, surface := newLoader(t, book, 0)

	if _, err := l.LoadInitial(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadRemaining(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	// Second pass must not duplicate anything.
	called := false
	if err := l.LoadRemaining(context.Background(), func(int, int) { called = true }); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("second pass inserted sections")
	}
	if got := blockOrder(t, surface); len(got) != 3 {
		t.Errorf("document has %d sections, want 3: %v", len(got), got)
	}
}

func TestLoadRemainingCancelled(t *testing.T) {
	book := testBook(4)
	l, _ := newLoader(t, book, time.Hour) // the pause parks the run

	if _, err := l.LoadInitial(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.LoadRemaining(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancellation returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not return")
	}

	if l.count() == len(book.Sections) {
		t.Error("run completed despite cancellation")
	}
}

func TestLoadInitialRange(t *testing.T) {
	book := testBook(2)
	l, _ := newLoader(t, book, 0)

	if _, err := l.LoadInitial(context.Background(), -1); err == nil {
		t.Error("negative index accepted")
	}
	if _, err := l.LoadInitial(context.Background(), 2); err == nil {
		t.Error("out-of-range index accepted")
	}
	if l.Loaded(0) || l.Loaded(2) {
		t.Error("failed loads must not mark sections loaded")
	}
}

func TestLoadInitialResets(t *testing.T) {
	book := testBook(3)
	l, surface := newLoader(t, book, 0)

	if _, err := l.LoadInitial(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadRemaining(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	// Reopening resets the document to a single section.
	if _, err := l.LoadInitial(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := blockOrder(t, surface); len(got) != 1 || got[0] != "ch1" {
		t.Errorf("document after reopen: %v", got)
	}
	if l.Loaded(0) || !l.Loaded(1) {
		t.Error("loaded set not reset")
	}
}
