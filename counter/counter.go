// Package counter computes whole-book page totals in the background. Exact
// totals require rendering every chapter at the current geometry, which is
// too slow for the reading path, so the count runs behind it and the UI
// shows per-chapter numbers until the full total lands.
package counter

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"reader/content"
	"reader/layout"
	"reader/layout/cache"
	"reader/webview"
)

// Status is the lifecycle of a counting run.
// ENUM(idle, counting, complete, failed)
type Status int

// Progress is a snapshot of the current run.
type Progress struct {
	Status  Status
	Done    int // sections counted so far
	Total   int // sections in the book
	PageSum int // pages accumulated so far
}

// Counter runs one count at a time over a single reused bridge. A chapter
// that fails to render even after a retry is charged one page so the book
// total still completes; only cancellation stops a run.
type Counter struct {
	bridge *webview.Bridge
	cache  *cache.Service
	log    *zap.Logger

	mu        sync.Mutex
	status    Status
	counts    []int
	done      int
	total     int
	result    layout.BookPageCounts
	cancelled bool
	cancel    context.CancelFunc
	finished  chan struct{}
}

// New creates an idle counter. The cache is optional.
func New(bridge *webview.Bridge, cache *cache.Service, log *zap.Logger) *Counter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Counter{
		bridge: bridge,
		cache:  cache,
		log:    log.Named("counter"),
		status: StatusIdle,
	}
}

// Start begins counting the book in the background. Returns an error when a
// run is already in flight. A cached result completes the run without
// rendering anything.
func (c *Counter) Start(ctx context.Context, book *content.Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusCounting {
		return fmt.Errorf("page count already running for book %s", book.ID)
	}

	if c.cache != nil {
		if cached, ok := c.cache.GetCounts(book.ID, c.bridge.Key()); ok {
			c.status = StatusComplete
			c.result = cached
			c.done = len(cached.SpinePageCounts)
			c.total = len(cached.SpinePageCounts)
			c.finished = closedChan()
			c.log.Debug("Using cached page counts", zap.String("book", book.ID), zap.Int("pages", cached.TotalPages()))
			return nil
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.status = StatusCounting
	c.counts = make([]int, 0, len(book.Sections))
	c.done = 0
	c.total = len(book.Sections)
	c.cancelled = false
	c.cancel = cancel
	c.finished = make(chan struct{})

	go c.run(runCtx, book)
	return nil
}

// Cancel returns the counter to idle from any state: a running count is
// stopped, a finished result is discarded.
func (c *Counter) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusCounting {
		c.cancelled = true
		c.cancel()
		return
	}
	c.status = StatusIdle
	c.counts = nil
	c.done = 0
	c.total = 0
	c.result = layout.BookPageCounts{}
}

// Progress returns a snapshot of the run.
func (c *Counter) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := 0
	for _, n := range c.counts {
		sum += n
	}
	return Progress{Status: c.status, Done: c.done, Total: c.total, PageSum: sum}
}

// Result returns the final counts once the run is complete.
func (c *Counter) Result() (layout.BookPageCounts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusComplete {
		return layout.BookPageCounts{}, false
	}
	return c.result, true
}

// Wait blocks until the current run finishes, is cancelled, or the context
// expires.
func (c *Counter) Wait(ctx context.Context) error {
	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()
	if finished == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-finished:
		return nil
	}
}

func (c *Counter) run(ctx context.Context, book *content.Book) {
	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()
	defer close(finished)

	start := time.Now()
	counts := make([]int, 0, len(book.Sections))

	for _, sec := range book.Sections {
		if ctx.Err() != nil {
			c.finish()
			return
		}

		pages, err := c.countSection(ctx, sec)
		if err != nil {
			if ctx.Err() != nil {
				c.finish()
				return
			}
			c.log.Warn("Chapter failed to render, charging one page",
				zap.String("chapter", sec.SpineItemID), zap.Error(err))
			pages = 1
		}

		c.mu.Lock()
		counts = append(counts, pages)
		c.counts = counts
		c.done = len(counts)
		c.mu.Unlock()
	}

	result := layout.BookPageCounts{
		BookID:          book.ID,
		Key:             c.bridge.Key(),
		SpinePageCounts: counts,
	}
	if c.cache != nil {
		if err := c.cache.SaveCounts(result); err != nil {
			c.log.Warn("Unable to cache page counts", zap.String("book", book.ID), zap.Error(err))
		}
	}

	c.mu.Lock()
	c.status = StatusComplete
	c.result = result
	c.mu.Unlock()

	c.log.Info("Book counted",
		zap.String("book", book.ID),
		zap.Int("chapters", len(counts)),
		zap.Int("pages", result.TotalPages()),
		zap.Duration("elapsed", time.Since(start)))
}

// countSection renders one chapter and reads its page count, retrying once
// before giving up.
func (c *Counter) countSection(ctx context.Context, sec content.HTMLSection) (int, error) {
	var pages int
	err := retry.Do(
		func() error {
			n, err := c.bridge.LoadSection(ctx, sec)
			if err != nil {
				return err
			}
			pages = n
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(10*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	return pages, err
}

// finish resolves an interrupted run: a deliberate Cancel returns to idle,
// anything else is a failure.
func (c *Counter) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		c.status = StatusIdle
	} else {
		c.status = StatusFailed
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
