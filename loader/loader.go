// Package loader fills the webview document with the rest of the book after
// the first chapter is on screen. Sections are inserted in spine order
// around whatever is already loaded, a few at a time, so reading is never
// blocked by a large book.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"reader/content"
	"reader/webview"
)

// Progress reports how many sections are in the document after each
// insertion.
type Progress func(loaded, total int)

// Loader tracks which spine indices are present in the document and splices
// the missing ones in at their spine position.
type Loader struct {
	bridge    *webview.Bridge
	book      *content.Book
	stepDelay time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	loaded []int // sorted spine indices present in the document
}

// New creates a loader for the book. stepDelay is the pause between
// insertions that keeps the surface responsive.
func New(bridge *webview.Bridge, book *content.Book, stepDelay time.Duration, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		bridge:    bridge,
		book:      book,
		stepDelay: stepDelay,
		log:       log.Named("loader"),
	}
}

// LoadInitial replaces the document with the section at spineIndex and
// returns its page count. The loaded set is reset to that one section.
func (l *Loader) LoadInitial(ctx context.Context, spineIndex int) (int, error) {
	if spineIndex < 0 || spineIndex >= len(l.book.Sections) {
		return 0, fmt.Errorf("spine index %d out of range (%d sections)", spineIndex, len(l.book.Sections))
	}

	pages, err := l.bridge.LoadSection(ctx, l.book.Sections[spineIndex])
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.loaded = []int{spineIndex}
	l.mu.Unlock()
	return pages, nil
}

// LoadRemaining inserts every missing section in spine order. Already-loaded
// sections are skipped, so calling it again is harmless. Cancellation is a
// normal outcome, not an error: the next call picks up where this one
// stopped.
func (l *Loader) LoadRemaining(ctx context.Context, progress Progress) error {
	total := len(l.book.Sections)

	for idx := 0; idx < total; idx++ {
		if l.Loaded(idx) {
			continue
		}
		if done := l.pause(ctx); done {
			return nil
		}
		if err := l.insert(ctx, idx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if progress != nil {
			progress(l.count(), total)
		}
	}

	l.log.Debug("book fully loaded", zap.Int("sections", total))
	return nil
}

// Loaded reports whether the spine index is already in the document.
func (l *Loader) Loaded(idx int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := sort.SearchInts(l.loaded, idx)
	return pos < len(l.loaded) && l.loaded[pos] == idx
}

func (l *Loader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loaded)
}

// insert splices the section before its successor in the loaded set, or at
// the document end when everything loaded so far precedes it. A busy bridge
// is waited out.
func (l *Loader) insert(ctx context.Context, idx int) error {
	l.mu.Lock()
	pos := sort.SearchInts(l.loaded, idx)
	beforeID := ""
	if pos < len(l.loaded) {
		beforeID = l.book.Sections[l.loaded[pos]].SpineItemID
	}
	l.mu.Unlock()

	sec := l.book.Sections[idx]
	for {
		err := l.bridge.InsertSection(sec, beforeID)
		if errors.Is(err, webview.ErrBusy) {
			if done := l.pause(ctx); done {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("unable to insert section %s: %w", sec.SpineItemID, err)
		}
		break
	}

	l.mu.Lock()
	l.loaded = append(l.loaded, 0)
	copy(l.loaded[pos+1:], l.loaded[pos:])
	l.loaded[pos] = idx
	l.mu.Unlock()
	return nil
}

// pause yields between insertions; returns true when the context ended.
func (l *Loader) pause(ctx context.Context) bool {
	if l.stepDelay <= 0 {
		return ctx.Err() != nil
	}
	t := time.NewTimer(l.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
