package content_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"reader/content"
)

func writeTestContainer(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write container: %v", err)
	}
	return path
}

func TestOpenContainerNaturalOrder(t *testing.T) {
	path := writeTestContainer(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": "<container/>",
		"OEBPS/chapter10.xhtml":  `<html><body><p>Ten</p></body></html>`,
		"OEBPS/chapter2.xhtml":   `<html><body><p>Two</p></body></html>`,
		"OEBPS/chapter1.xhtml":   `<html><body><p>One</p></body></html>`,
		"OEBPS/style.css":        "p { margin: 0; }",
		"OEBPS/images/fig.png":   "not-really-a-png",
	})

	book, err := content.OpenContainer(context.Background(), path, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	if book.ID == "" {
		t.Error("expected derived book id")
	}

	got := make([]string, 0, len(book.Sections))
	for _, s := range book.Sections {
		got = append(got, s.SpineItemID)
	}
	want := []string{"chapter1", "chapter2", "chapter10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("natural section order broken: got %v, want %v", got, want)
		}
	}

	for _, s := range book.Sections {
		if _, ok := s.Images["OEBPS/images/fig.png"]; !ok {
			t.Error("image side table not attached to section")
		}
		if s.Stylesheet == "" {
			t.Error("publisher stylesheet not attached to section")
		}
	}
}

func TestOpenContainerSpineOrder(t *testing.T) {
	path := writeTestContainer(t, map[string]string{
		"OEBPS/a.xhtml":     `<html><body><p>A</p></body></html>`,
		"OEBPS/b.xhtml":     `<html><body><p>B</p></body></html>`,
		"OEBPS/extra.xhtml": `<html><body><p>Not in spine</p></body></html>`,
	})

	book, err := content.OpenContainer(context.Background(), path, []string{"b.xhtml", "a.xhtml"}, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	if len(book.Sections) != 2 {
		t.Fatalf("expected 2 spine sections, got %d", len(book.Sections))
	}
	if book.Sections[0].SpineItemID != "b" || book.Sections[1].SpineItemID != "a" {
		t.Errorf("spine order not honored: %s, %s",
			book.Sections[0].SpineItemID, book.Sections[1].SpineItemID)
	}
}

func TestOpenContainerStableBookID(t *testing.T) {
	entries := map[string]string{"ch.xhtml": `<html><body><p>X</p></body></html>`}
	first := writeTestContainer(t, entries)
	second := writeTestContainer(t, entries)

	a, err := content.OpenContainer(context.Background(), first, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	b, err := content.OpenContainer(context.Background(), second, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("book id must be derived from container name, got %s vs %s", a.ID, b.ID)
	}
}

func TestSpineIndexOf(t *testing.T) {
	book := &content.Book{Sections: []content.HTMLSection{{SpineItemID: "x"}, {SpineItemID: "y"}}}
	if book.SpineIndexOf("y") != 1 {
		t.Error("expected spine index 1 for y")
	}
	if book.SpineIndexOf("zz") != -1 {
		t.Error("expected -1 for unknown spine item")
	}
}
