// Package cache stores pagination results keyed by exact rendering
// configuration. Lookups never approximate: a config that differs in any
// field is a miss and triggers re-pagination upstream. Entries are replaced
// wholesale, never patched.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"reader/layout"
	"reader/position"
)

const dbName = "layouts.db"

const schema = `
CREATE TABLE IF NOT EXISTS layouts   (cache_key TEXT PRIMARY KEY, payload BLOB NOT NULL);
CREATE TABLE IF NOT EXISTS counts    (cache_key TEXT PRIMARY KEY, payload BLOB NOT NULL);
CREATE TABLE IF NOT EXISTS positions (book_id   TEXT PRIMARY KEY, locator TEXT NOT NULL);
`

// Service is a two-level cache: an in-memory map answering all reads, backed
// by an optional sqlite database that survives restarts. The database is
// loaded once on open; after that it only absorbs writes.
type Service struct {
	mu        sync.RWMutex
	layouts   map[string]layout.ChapterLayout
	counts    map[string]layout.BookPageCounts
	positions map[string]position.Position

	dbMu sync.Mutex
	conn *sqlite.Conn

	log *zap.Logger
}

// New opens the cache. With an empty directory the cache is memory-only.
// Rows that fail to decode during warm start are dropped, not fatal: cached
// layouts are derived data.
func New(dir string, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		layouts:   make(map[string]layout.ChapterLayout),
		counts:    make(map[string]layout.BookPageCounts),
		positions: make(map[string]position.Position),
		log:       log.Named("cache"),
	}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}
	conn, err := sqlite.OpenConn(filepath.Join(dir, dbName), sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache database: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare cache schema: %w", err)
	}
	s.conn = conn

	if err := s.warmStart(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the backing database, if any.
func (s *Service) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// GetLayout returns the cached layout for the exact (book, chapter, config)
// triple.
func (s *Service) GetLayout(bookID, spineItemID string, config layout.LayoutConfig) (layout.ChapterLayout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layouts[layoutKey(bookID, spineItemID, config)]
	return l, ok
}

// SaveLayout stores the layout, replacing any previous entry for its triple.
func (s *Service) SaveLayout(l layout.ChapterLayout) error {
	key := layoutKey(l.BookID, l.SpineItemID, l.Config)

	s.mu.Lock()
	s.layouts[key] = l
	s.mu.Unlock()

	return s.persist("layouts", key, l)
}

// GetCounts returns the cached whole-book page counts for the exact
// (book, key) pair.
func (s *Service) GetCounts(bookID string, key layout.LayoutKey) (layout.BookPageCounts, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counts[countsKey(bookID, key)]
	return c, ok
}

// SaveCounts stores the page counts, replacing any previous entry for its
// pair.
func (s *Service) SaveCounts(c layout.BookPageCounts) error {
	key := countsKey(c.BookID, c.Key)

	s.mu.Lock()
	s.counts[key] = c
	s.mu.Unlock()

	return s.persist("counts", key, c)
}

// GetPosition returns the stored reading position for the book.
func (s *Service) GetPosition(bookID string) (position.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[bookID]
	return p, ok
}

// SavePosition stores the reading position, one per book. Persisted as the
// serialized locator, the same form positions take everywhere else.
func (s *Service) SavePosition(bookID string, pos position.Position) error {
	s.mu.Lock()
	s.positions[bookID] = pos
	s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	locator := position.Generate(pos)

	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := sqlitex.Execute(s.conn,
		`INSERT INTO positions (book_id, locator) VALUES (?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET locator = excluded.locator`,
		&sqlitex.ExecOptions{Args: []any{bookID, locator}})
	if err != nil {
		return fmt.Errorf("unable to persist reading position: %w", err)
	}
	return nil
}

func layoutKey(bookID, spineItemID string, config layout.LayoutConfig) string {
	return bookID + "\x00" + spineItemID + "\x00" + config.Fingerprint()
}

func countsKey(bookID string, key layout.LayoutKey) string {
	return bookID + "\x00" + key.Fingerprint()
}

func (s *Service) persist(table, key string, value any) error {
	if s.conn == nil {
		return nil
	}
	blob, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to serialize cache entry: %w", err)
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err = sqlitex.Execute(s.conn,
		`INSERT INTO `+table+` (cache_key, payload) VALUES (?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload`,
		&sqlitex.ExecOptions{Args: []any{key, blob}})
	if err != nil {
		return fmt.Errorf("unable to persist cache entry: %w", err)
	}
	return nil
}

func (s *Service) warmStart() error {
	err := sqlitex.Execute(s.conn, `SELECT cache_key, payload FROM layouts`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			var l layout.ChapterLayout
			blob := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, blob)
			if err := yaml.Unmarshal(blob, &l); err != nil {
				s.log.Warn("Dropping unreadable cached layout", zap.String("key", stmt.ColumnText(0)), zap.Error(err))
				return nil
			}
			s.layouts[layoutKey(l.BookID, l.SpineItemID, l.Config)] = l
			return nil
		}})
	if err != nil {
		return fmt.Errorf("unable to load cached layouts: %w", err)
	}

	err = sqlitex.Execute(s.conn, `SELECT cache_key, payload FROM counts`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			var c layout.BookPageCounts
			blob := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, blob)
			if err := yaml.Unmarshal(blob, &c); err != nil {
				s.log.Warn("Dropping unreadable cached counts", zap.String("key", stmt.ColumnText(0)), zap.Error(err))
				return nil
			}
			s.counts[countsKey(c.BookID, c.Key)] = c
			return nil
		}})
	if err != nil {
		return fmt.Errorf("unable to load cached counts: %w", err)
	}

	err = sqlitex.Execute(s.conn, `SELECT book_id, locator FROM positions`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			p, perr := position.Parse(stmt.ColumnText(1))
			if perr != nil {
				s.log.Warn("Dropping unreadable stored position", zap.String("book", stmt.ColumnText(0)), zap.Error(perr))
				return nil
			}
			s.positions[stmt.ColumnText(0)] = *p
			return nil
		}})
	if err != nil {
		return fmt.Errorf("unable to load stored positions: %w", err)
	}

	s.log.Debug("cache warm start",
		zap.Int("layouts", len(s.layouts)), zap.Int("counts", len(s.counts)), zap.Int("positions", len(s.positions)))
	return nil
}
