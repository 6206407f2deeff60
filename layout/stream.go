package layout

import "reader/content"

// BlockSpan ties a stable block identifier to its run of runes in the
// flattened text.
type BlockSpan struct {
	ID   string
	Span CharRange
}

// SectionSpan marks one spine item's run of runes. Section starts are hard
// page breaks: a page never straddles two spine items.
type SectionSpan struct {
	SpineItemID string
	Span        CharRange
}

// ImageInsert records a resource that must occupy a page of its own, spliced
// into the page list at Index after text pagination.
type ImageInsert struct {
	Name  string
	Index int
}

// ContentStream is the flattened input to the native engine: the chapter text
// with block and section tagging. Always passed by value across goroutines.
type ContentStream struct {
	Text     []rune
	Blocks   []BlockSpan
	Sections []SectionSpan
	Images   []ImageInsert
}

// Len returns the rune length of the stream text.
func (s ContentStream) Len() int {
	return len(s.Text)
}

// blockSeparator keeps adjacent blocks from running together when flattened.
const blockSeparator = '\n'

// StreamFromSections flattens sections into a single tagged content stream.
// Block texts are joined with newline separators; the separator runes belong
// to the preceding block's span so that coverage stays gap-free.
func StreamFromSections(sections []content.HTMLSection) ContentStream {
	var stream ContentStream

	for _, sec := range sections {
		secStart := len(stream.Text)
		for _, blk := range sec.Blocks {
			blkStart := len(stream.Text)
			stream.Text = append(stream.Text, []rune(blk.Text)...)
			stream.Text = append(stream.Text, blockSeparator)
			stream.Blocks = append(stream.Blocks, BlockSpan{
				ID:   blk.ID,
				Span: CharRange{Location: blkStart, Length: len(stream.Text) - blkStart},
			})
		}
		stream.Sections = append(stream.Sections, SectionSpan{
			SpineItemID: sec.SpineItemID,
			Span:        CharRange{Location: secStart, Length: len(stream.Text) - secStart},
		})
	}
	return stream
}
