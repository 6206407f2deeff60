package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	fixzip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"reader/archive"
)

var sectionExts = map[string]bool{".xhtml": true, ".html": true, ".htm": true}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true,
}

type containerEntry struct {
	name string
	data []byte
}

type openOptions struct {
	nameEncoding encoding.Encoding
}

// Option adjusts how a container is read.
type Option func(*openOptions)

// WithNameEncoding forces the encoding for entry names not marked as UTF-8.
// Zip does not define file name encoding, old containers may carry archaic
// code pages.
func WithNameEncoding(enc encoding.Encoding) Option {
	return func(o *openOptions) { o.nameEncoding = enc }
}

// OpenContainer reads a zip book container and builds the content model.
// spine, when non-empty, is the ordered list of section hrefs; entries not in
// the spine are skipped. With an empty spine every markup document in the
// container becomes a section, ordered by natural filename comparison (the
// common "chapter2 before chapter10" expectation). Container metadata (OPF,
// NCX) is deliberately not interpreted here.
func OpenContainer(ctx context.Context, name string, spine []string, log *zap.Logger, options ...Option) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts openOptions
	for _, o := range options {
		o(&opts)
	}

	var (
		sections []containerEntry
		images   = make(map[string][]byte)
		styles   []string
	)

	err := archive.Walk(name, "", func(_ string, f *fixzip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entryName := f.Name
		if opts.nameEncoding != nil && f.NonUTF8 {
			if decoded, err := opts.nameEncoding.NewDecoder().String(entryName); err == nil {
				entryName = decoded
			} else {
				log.Warn("Unable to convert entry name from forced encoding",
					zap.String("entry", entryName), zap.Error(err))
			}
		}
		if strings.HasPrefix(entryName, "META-INF/") || entryName == "mimetype" {
			return nil
		}

		ext := strings.ToLower(path.Ext(entryName))
		switch {
		case sectionExts[ext]:
			if len(spine) > 0 && spineRank(spine, entryName) < 0 {
				log.Debug("Skipping document outside of spine", zap.String("entry", entryName))
				return nil
			}
			data, err := readEntry(f)
			if err != nil {
				return fmt.Errorf("unable to read section %s: %w", entryName, err)
			}
			sections = append(sections, containerEntry{name: entryName, data: data})
		case imageExts[ext]:
			data, err := readEntry(f)
			if err != nil {
				log.Warn("Unable to read image entry", zap.String("entry", entryName), zap.Error(err))
				return nil
			}
			images[entryName] = data
		case ext == ".css":
			data, err := readEntry(f)
			if err != nil {
				log.Warn("Unable to read stylesheet entry", zap.String("entry", entryName), zap.Error(err))
				return nil
			}
			styles = append(styles, string(data))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open container: %w", err)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("container %s has no section documents", name)
	}

	if len(spine) > 0 {
		sort.SliceStable(sections, func(i, j int) bool {
			return spineRank(spine, sections[i].name) < spineRank(spine, sections[j].name)
		})
	} else {
		sort.SliceStable(sections, func(i, j int) bool {
			return natural.Less(sections[i].name, sections[j].name)
		})
	}

	stylesheet := strings.Join(styles, "\n")

	book := &Book{
		// Derived, not random: the same container must produce the same book
		// id or every cache entry would be orphaned on restart.
		ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("reader://book/"+path.Base(name))).String(),
	}

	for _, e := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sec, err := ParseSection(bytes.NewReader(e.data), spineItemID(e.name), path.Dir(e.name), log)
		if err != nil {
			return nil, fmt.Errorf("unable to parse section %s: %w", e.name, err)
		}
		sec.Images = images
		sec.Stylesheet = stylesheet
		book.Sections = append(book.Sections, *sec)
	}

	log.Info("Opened container", zap.String("container", name),
		zap.Int("sections", len(book.Sections)), zap.Int("images", len(images)))
	return book, nil
}

// spineRank returns the position of the entry in the spine, matching on full
// name first and base name second, or -1 when the entry is not in the spine.
func spineRank(spine []string, name string) int {
	for i, href := range spine {
		if href == name || path.Base(href) == path.Base(name) {
			return i
		}
	}
	return -1
}

// spineItemID derives a stable spine item identifier from the entry name.
func spineItemID(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func readEntry(f *fixzip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
