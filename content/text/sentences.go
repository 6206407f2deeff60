// Package text provides sentence segmentation used by the native layout
// engine to prefer page breaks at sentence boundaries.
package text

import (
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

type Splitter struct {
	*sentences.DefaultSentenceTokenizer
}

// NewSplitter returns a sentence splitter for the given language, or nil when
// no model is available (callers must treat a nil splitter as "no sentence
// awareness"). Only the English Punkt model ships with the tokenizer library;
// it is still a reasonable approximation for most western languages since
// terminal punctuation transfers, so it is used as the fallback for any
// Latin-script language.
func NewSplitter(lang language.Tag, log *zap.Logger) *Splitter {
	script, _ := lang.Script()
	if script.String() != "Latn" && script.String() != "Zzzz" {
		log.Warn("No sentence tokenizer model for language, turning off sentence splitting",
			zap.Stringer("language", lang), zap.Stringer("script", script))
		return nil
	}

	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Warn("Unable to load sentence tokenizer data", zap.Stringer("language", lang), zap.Error(err))
		return nil
	}
	return &Splitter{tokenizer}
}

// BreakOffsets returns ascending rune offsets just past each sentence end in
// s. The final offset (end of text) is not reported.
func (s *Splitter) BreakOffsets(text string) []int {
	if s == nil || text == "" {
		return nil
	}

	var (
		offsets []int
		cursor  int // byte position of the search window
		runes   int // rune count consumed so far
	)
	for _, sent := range s.Tokenize(text) {
		chunk := sent.Text
		idx := strings.Index(text[cursor:], chunk)
		if idx < 0 {
			break
		}
		end := cursor + idx + len(chunk)
		runes += len([]rune(text[cursor:end]))
		cursor = end
		if cursor < len(text) {
			offsets = append(offsets, runes)
		}
	}
	return offsets
}
