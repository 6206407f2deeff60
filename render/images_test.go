package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"go.uber.org/zap"

	"reader/content"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const svgDoc = `<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10">
<rect x="1" y="1" width="8" height="8" fill="black"/>
</svg>`

func imageBook(t *testing.T) *content.Book {
	return &content.Book{
		ID: "book",
		Sections: []content.HTMLSection{
			{
				SpineItemID: "ch1",
				Images: map[string][]byte{
					"OEBPS/images/pic.png":   pngBytes(t, 4, 4),
					"OEBPS/images/photo.jpg": jpegBytes(t, 4, 4),
					"OEBPS/images/fig.svg":   []byte(svgDoc),
				},
			},
		},
	}
}

func TestResolveLookupOrder(t *testing.T) {
	r := NewImageResolver(imageBook(t), 0, 0, zap.NewNop())

	cases := []struct {
		name string
		uri  string
	}{
		{"exact path", ImageScheme + "OEBPS/images/pic.png"},
		{"bare filename", ImageScheme + "pic.png"},
		{"path suffix", ImageScheme + "images/pic.png"},
		{"relative path", ImageScheme + "../images/pic.png"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, mime, err := r.Resolve(c.uri)
			if err != nil {
				t.Fatal(err)
			}
			if mime != "image/png" {
				t.Errorf("mime %q", mime)
			}
			if _, err := png.Decode(bytes.NewReader(data)); err != nil {
				t.Errorf("not a png: %v", err)
			}
		})
	}

	if _, _, err := r.Resolve(ImageScheme + "missing.png"); err == nil {
		t.Error("missing image resolved")
	}
	if _, _, err := r.Resolve("https://example.com/x.png"); err == nil {
		t.Error("foreign scheme resolved")
	}
}

func TestResolveJPEGGetsJFIF(t *testing.T) {
	r := NewImageResolver(imageBook(t), 0, 0, zap.NewNop())

	data, mime, err := r.Resolve(ImageScheme + "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime %q", mime)
	}
	if len(data) < 11 || data[2] != 0xFF || data[3] != 0xE0 || !bytes.Contains(data[:11], []byte("JFIF")) {
		t.Error("JFIF APP0 segment missing")
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("not a jpeg: %v", err)
	}
}

func TestResolveSVGRasterized(t *testing.T) {
	r := NewImageResolver(imageBook(t), 100, 100, zap.NewNop())

	data, mime, err := r.Resolve(ImageScheme + "fig.svg")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime %q", mime)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a jpeg: %v", err)
	}
	if img.Bounds().Dx() > 100 || img.Bounds().Dy() > 100 {
		t.Errorf("raster exceeds target: %v", img.Bounds())
	}
}

func TestResolveDownscale(t *testing.T) {
	book := &content.Book{
		ID: "book",
		Sections: []content.HTMLSection{
			{SpineItemID: "ch1", Images: map[string][]byte{"big.png": pngBytes(t, 64, 32)}},
		},
	}
	r := NewImageResolver(book, 16, 16, zap.NewNop())

	data, mime, err := r.Resolve(ImageScheme + "big.png")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/jpeg" {
		t.Errorf("downscaled mime %q", mime)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a jpeg: %v", err)
	}
	if img.Bounds().Dx() > 16 || img.Bounds().Dy() > 16 {
		t.Errorf("not downscaled: %v", img.Bounds())
	}

	// Small images pass through untouched.
	small := NewImageResolver(imageBook(t), 16, 16, zap.NewNop())
	data, mime, err = small.Resolve(ImageScheme + "pic.png")
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/png" {
		t.Errorf("small image re-encoded to %q", mime)
	}
	if !strings.Contains(string(data[:8]), "PNG") {
		t.Error("small image bytes rewritten")
	}
}

func TestResolveFilenameTieBreak(t *testing.T) {
	book := &content.Book{
		ID: "book",
		Sections: []content.HTMLSection{
			{
				SpineItemID: "ch1",
				Images: map[string][]byte{
					"OEBPS/alpha/pic.png": pngBytes(t, 3, 3),
					"OEBPS/zeta/pic.png":  pngBytes(t, 5, 5),
				},
			},
		},
	}
	r := NewImageResolver(book, 0, 0, zap.NewNop())

	// Same filename in two places: the lexicographically first path wins,
	// every time.
	for i := 0; i < 4; i++ {
		data, _, err := r.Resolve(ImageScheme + "pic.png")
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if w := img.Bounds().Dx(); w != 3 {
			t.Fatalf("round %d: served %dpx image, want the 3px one", i, w)
		}
	}
}
