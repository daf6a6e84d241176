// Package tilestore persists the coarse tile mosaic produced at build time in
// a SQLite database next to the index.
package tilestore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/arkilian/rpftiles/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// ErrTileNotFound is returned by Get for a missing tile.
var ErrTileNotFound = stderrors.New("tilestore: tile not found")

// Tile is one encoded mosaic tile.
type Tile struct {
	Level  int
	Row    int
	Col    int
	Bounds types.BBox
	Image  []byte // PNG
}

// Store is a SQLite-backed tile store with a single writer.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	putStmt *sql.Stmt
}

// Open opens or creates the tile database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tilestore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tilestore: failed to initialize schema: %w", err)
	}

	s.putStmt, err = db.Prepare(`
		INSERT INTO tiles (level, row, col, min_lat, max_lat, min_lon, max_lon, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (level, row, col) DO UPDATE SET
			min_lat = excluded.min_lat,
			max_lat = excluded.max_lat,
			min_lon = excluded.min_lon,
			max_lon = excluded.max_lon,
			image = excluded.image,
			created_at = excluded.created_at`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tilestore: failed to prepare insert: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tiles (
			level INTEGER NOT NULL,
			row INTEGER NOT NULL,
			col INTEGER NOT NULL,
			min_lat REAL NOT NULL,
			max_lat REAL NOT NULL,
			min_lon REAL NOT NULL,
			max_lon REAL NOT NULL,
			image BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (level, row, col)
		) WITHOUT ROWID;
		CREATE INDEX IF NOT EXISTS idx_tiles_level ON tiles(level);
	`)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Put inserts or replaces a tile.
func (s *Store) Put(ctx context.Context, t *Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.putStmt.ExecContext(ctx,
		t.Level, t.Row, t.Col,
		t.Bounds.MinLat, t.Bounds.MaxLat, t.Bounds.MinLon, t.Bounds.MaxLon,
		t.Image, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("tilestore: failed to put tile %d/%d/%d: %w", t.Level, t.Row, t.Col, err)
	}
	return nil
}

// Get returns one tile or ErrTileNotFound.
func (s *Store) Get(ctx context.Context, level, row, col int) (*Tile, error) {
	t := &Tile{Level: level, Row: row, Col: col}
	err := s.db.QueryRowContext(ctx, `
		SELECT min_lat, max_lat, min_lon, max_lon, image
		FROM tiles WHERE level = ? AND row = ? AND col = ?`,
		level, row, col,
	).Scan(&t.Bounds.MinLat, &t.Bounds.MaxLat, &t.Bounds.MinLon, &t.Bounds.MaxLon, &t.Image)
	if err == sql.ErrNoRows {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tilestore: failed to get tile %d/%d/%d: %w", level, row, col, err)
	}
	return t, nil
}

// Count returns the number of tiles, optionally restricted to one level
// (level < 0 counts all).
func (s *Store) Count(ctx context.Context, level int) (int, error) {
	var n int
	var err error
	if level < 0 {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles WHERE level = ?`, level).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("tilestore: failed to count tiles: %w", err)
	}
	return n, nil
}

// Checkpoint folds the WAL into the main database file so the file can be
// copied on its own.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("tilestore: checkpoint failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.putStmt != nil {
		s.putStmt.Close()
	}
	return s.db.Close()
}
