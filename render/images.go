package render

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"reader/content"
	"reader/jpegquality"
	"reader/utils/images"
)

// ImageScheme prefixes in-book image requests coming from the rendering
// surface.
const ImageScheme = "reader://image/"

const jpegQuality = 85

// ImageResolver serves book resources to the rendering surface. Container
// paths rarely survive markup rewriting intact, so lookup relaxes in steps:
// exact path, then bare filename, then path suffix.
type ImageResolver struct {
	book *content.Book
	maxW int
	maxH int
	log  *zap.Logger
}

// NewImageResolver creates a resolver. Images larger than maxW x maxH are
// downscaled before serving; zero disables scaling.
func NewImageResolver(book *content.Book, maxW, maxH int, log *zap.Logger) *ImageResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImageResolver{book: book, maxW: maxW, maxH: maxH, log: log.Named("images")}
}

// Resolve answers one image request: the decoded bytes ready for display
// and their MIME type.
func (r *ImageResolver) Resolve(uri string) ([]byte, string, error) {
	name := strings.TrimPrefix(uri, ImageScheme)
	if name == uri {
		return nil, "", fmt.Errorf("not an image request: %s", uri)
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return nil, "", fmt.Errorf("empty image path in %s", uri)
	}

	data, found := r.lookup(name)
	if !found {
		return nil, "", fmt.Errorf("image %s not found in book %s", name, r.book.ID)
	}
	return r.prepare(name, data)
}

// lookup finds the resource across all sections: exact container path first,
// then filename match, then suffix match. Spine order breaks ties.
func (r *ImageResolver) lookup(name string) ([]byte, bool) {
	for _, sec := range r.book.Sections {
		if data, ok := sec.Images[name]; ok {
			return data, true
		}
	}

	base := path.Base(name)
	for _, sec := range r.book.Sections {
		for _, key := range sortedImageKeys(sec.Images) {
			if path.Base(key) == base {
				return sec.Images[key], true
			}
		}
	}

	for _, sec := range r.book.Sections {
		for _, key := range sortedImageKeys(sec.Images) {
			if strings.HasSuffix(key, "/"+name) {
				return sec.Images[key], true
			}
		}
	}
	return nil, false
}

// sortedImageKeys keeps fallback matching deterministic within a section.
func sortedImageKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// prepare converts the raw resource into displayable bytes: SVG is
// rasterized, JPEG gets its JFIF header verified, oversized rasters are
// downscaled.
func (r *ImageResolver) prepare(name string, data []byte) ([]byte, string, error) {
	if isSVG(data) {
		img, err := images.RasterizeSVG(data, r.maxW, r.maxH)
		if err != nil {
			return nil, "", fmt.Errorf("unable to rasterize %s: %w", name, err)
		}
		out, err := images.EncodeJPEGWithDPI(img, jpegQuality, images.DpiPxPerInch, 96, 96)
		if err != nil {
			return nil, "", fmt.Errorf("unable to encode %s: %w", name, err)
		}
		return out, "image/jpeg", nil
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		r.log.Warn("Unrecognized image format, serving as-is", zap.String("image", name), zap.Error(err))
		return data, "application/octet-stream", nil
	}

	switch kind.Extension {
	case "jpg":
		out, fixed, err := images.EnsureJFIFAPP0(data, images.DpiPxPerInch, 96, 96)
		if err != nil {
			return nil, "", fmt.Errorf("bad jpeg %s: %w", name, err)
		}
		if fixed {
			r.log.Debug("Added JFIF header", zap.String("image", name))
		}
		return r.downscale(name, out, kind.MIME.Value)
	case "png", "gif", "webp", "bmp", "tif":
		return r.downscale(name, data, kind.MIME.Value)
	default:
		return data, kind.MIME.Value, nil
	}
}

// downscale fits an oversized raster into the configured box, re-encoding
// as JPEG. Decode failures serve the original bytes: a slow image beats a
// broken one.
func (r *ImageResolver) downscale(name string, data []byte, mime string) ([]byte, string, error) {
	if r.maxW <= 0 || r.maxH <= 0 {
		return data, mime, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		r.log.Warn("Unable to decode image, serving as-is", zap.String("image", name), zap.Error(err))
		return data, mime, nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= r.maxW && bounds.Dy() <= r.maxH {
		return data, mime, nil
	}

	// Never re-encode above the source quality, that only adds bytes.
	quality := jpegQuality
	if mime == "image/jpeg" {
		if qr, err := jpegquality.NewWithBytes(data); err == nil && qr.Quality() < quality {
			quality = qr.Quality()
		}
	}

	fitted := imaging.Fit(img, r.maxW, r.maxH, imaging.Lanczos)
	out, err := images.EncodeJPEGWithDPI(fitted, quality, images.DpiPxPerInch, 96, 96)
	if err != nil {
		r.log.Warn("Unable to re-encode image, serving original", zap.String("image", name), zap.Error(err))
		return data, mime, nil
	}
	r.log.Debug("Image downscaled",
		zap.String("image", name),
		zap.Int("width", bounds.Dx()), zap.Int("height", bounds.Dy()),
		zap.Int("maxWidth", r.maxW), zap.Int("maxHeight", r.maxH))
	return out, "image/jpeg", nil
}

// isSVG sniffs for an svg root element; filetype has no matcher for it.
func isSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}
