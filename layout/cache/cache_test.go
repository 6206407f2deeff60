package cache

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"reader/layout"
	"reader/position"
)

func testLayout(book, chapter string, config layout.LayoutConfig, pages int) layout.ChapterLayout {
	l := layout.ChapterLayout{BookID: book, SpineItemID: chapter, Config: config}
	off := 0
	for i := 0; i < pages; i++ {
		l.PageOffsets = append(l.PageOffsets, layout.PageOffset{
			PageIndex:    i,
			FirstBlockID: "b1",
			LastBlockID:  "b1",
			Range:        layout.CharRange{Location: off, Length: 10},
		})
		off += 10
	}
	return l
}

func TestExactMatch(t *testing.T) {
	s, err := New("", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	config := layout.LayoutConfig{FontScale: 1, PageWidth: 390, PageHeight: 760}
	stored := testLayout("book", "ch1", config, 3)
	if err := s.SaveLayout(stored); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetLayout("book", "ch1", config)
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	// Any config difference is a miss, however small.
	off := config
	off.FontScale = 1.0001
	if _, ok := s.GetLayout("book", "ch1", off); ok {
		t.Error("near-identical config must miss")
	}
	if _, ok := s.GetLayout("book", "ch2", config); ok {
		t.Error("different chapter must miss")
	}
	if _, ok := s.GetLayout("other", "ch1", config); ok {
		t.Error("different book must miss")
	}
}

func TestWholeValueReplace(t *testing.T) {
	s, err := New("", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	config := layout.LayoutConfig{FontScale: 1, PageWidth: 390, PageHeight: 760}
	if err := s.SaveLayout(testLayout("book", "ch1", config, 5)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLayout(testLayout("book", "ch1", config, 2)); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetLayout("book", "ch1", config)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.TotalPages() != 2 {
		t.Errorf("stale entry survived: %d pages", got.TotalPages())
	}
}

func TestCounts(t *testing.T) {
	s, err := New("", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	key := layout.LayoutKey{ViewportWidth: 390, ViewportHeight: 760, FontScale: 1, MarginSize: 20}
	stored := layout.BookPageCounts{BookID: "book", Key: key, SpinePageCounts: []int{4, 2, 9}}
	if err := s.SaveCounts(stored); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetCounts("book", key)
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	other := key
	other.FontScale = 1.5
	if _, ok := s.GetCounts("book", other); ok {
		t.Error("different key must miss")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, err := New("", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	config := layout.LayoutConfig{FontScale: 1, PageWidth: 390, PageHeight: 760}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			chapter := fmt.Sprintf("ch%d", n%4)
			for j := 0; j < 100; j++ {
				if err := s.SaveLayout(testLayout("book", chapter, config, 1+j%3)); err != nil {
					t.Error(err)
					return
				}
				s.GetLayout("book", chapter, config)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if _, ok := s.GetLayout("book", fmt.Sprintf("ch%d", i), config); !ok {
			t.Errorf("chapter ch%d missing after concurrent writes", i)
		}
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	config := layout.LayoutConfig{FontScale: 1.25, PageWidth: 428, PageHeight: 926, HorizontalPadding: 20, VerticalPadding: 20}
	key := layout.LayoutKey{ViewportWidth: 428, ViewportHeight: 926, FontScale: 1.25, MarginSize: 20}

	s, err := New(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	stored := testLayout("book", "ch1", config, 4)
	if err := s.SaveLayout(stored); err != nil {
		t.Fatal(err)
	}
	counts := layout.BookPageCounts{BookID: "book", Key: key, SpinePageCounts: []int{4, 7}}
	if err := s.SaveCounts(counts); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, ok := reopened.GetLayout("book", "ch1", config)
	if !ok {
		t.Fatal("layout lost across reopen")
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("got %+v, want %+v", got, stored)
	}
	gotCounts, ok := reopened.GetCounts("book", key)
	if !ok {
		t.Fatal("counts lost across reopen")
	}
	if !reflect.DeepEqual(gotCounts, counts) {
		t.Errorf("got %+v, want %+v", gotCounts, counts)
	}
}

func TestPositionStore(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.GetPosition("book"); ok {
		t.Error("unexpected position before save")
	}

	pos := position.Position{SpineIndex: 3, IDRef: "blk-42", CharOffset: 17, HasOffset: true}
	if err := s.SavePosition("book", pos); err != nil {
		t.Fatal(err)
	}
	// Re-saving replaces, one position per book.
	pos.CharOffset = 25
	if err := s.SavePosition("book", pos); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, ok := reopened.GetPosition("book")
	if !ok {
		t.Fatal("position lost across reopen")
	}
	if !reflect.DeepEqual(got, pos) {
		t.Errorf("got %+v, want %+v", got, pos)
	}
}
