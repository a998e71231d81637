// Package store is a local program library: a SQLite catalog of named
// programs and their runs, with container bytes and run records kept in a
// LevelDB blob store beside it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/prism/container"
)

var log = commonlog.GetLogger("prism.store")

// ErrNotFound indicates the requested program or run doesn't exist.
var ErrNotFound = errors.New("not found")

const (
	catalogFile = "catalog.db"
	blobDir     = "blobs"

	prefixContainer = "clc:"
	prefixRun       = "run:"
)

const schema = `
CREATE TABLE IF NOT EXISTS programs (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	width          INTEGER NOT NULL,
	height         INTEGER NOT NULL,
	method         TEXT NOT NULL,
	level          INTEGER NOT NULL,
	original_size  INTEGER NOT NULL,
	stored_size    INTEGER NOT NULL,
	checksum       INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	program_id  TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
	status      TEXT NOT NULL,
	steps       INTEGER NOT NULL,
	exit_code   INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_program ON runs(program_id);
`

// ProgramInfo is one catalog row.
type ProgramInfo struct {
	ID           string
	Name         string
	Width        int
	Height       int
	Method       string
	Level        int
	OriginalSize int
	StoredSize   int
	Checksum     uint32
	Created      time.Time
}

// Store handles the catalog and blob databases of one library directory.
type Store struct {
	db    *sql.DB
	blobs *leveldb.DB
	dir   string
	mu    sync.Mutex
}

// Open opens (or creates) the library in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, catalogFile))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	// one connection keeps the foreign_keys pragma in effect
	db.SetMaxOpenConns(1)

	blobs, err := leveldb.OpenFile(filepath.Join(dir, blobDir), nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening blob store (is another prism process using %s?): %w", dir, err)
	}

	log.Debugf("opened store %s", dir)
	return &Store{db: db, blobs: blobs, dir: dir}, nil
}

// Dir returns the library directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close closes both databases.
func (s *Store) Close() error {
	return errors.Join(s.blobs.Close(), s.db.Close())
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

// Put stores c under name, replacing any program of the same name along
// with its runs.
func (s *Store) Put(ctx context.Context, name string, c *container.Container) (*ProgramInfo, error) {
	if name == "" {
		return nil, errors.New("store: empty program name")
	}
	data, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	info := &ProgramInfo{
		ID:           uuid.NewString(),
		Name:         name,
		Width:        int(c.Header.Width),
		Height:       int(c.Header.Height),
		Method:       c.Header.Method.String(),
		Level:        int(c.Header.Level),
		OriginalSize: int(c.Header.OriginalSize),
		StoredSize:   len(data),
		Checksum:     c.Header.Checksum,
		Created:      time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.lookup(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.blobs.Put([]byte(prefixContainer+info.ID), data, nil); err != nil {
		return nil, fmt.Errorf("saving container: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if old != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM programs WHERE id = ?", old.ID); err != nil {
			return nil, fmt.Errorf("replacing program: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO programs (id, name, width, height, method, level, original_size, stored_size, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Width, info.Height, info.Method, info.Level,
		info.OriginalSize, info.StoredSize, int64(info.Checksum), info.Created.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("saving program: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if old != nil {
		s.dropBlobs(old.ID)
	}
	log.Infof("stored %s as %s (%d bytes)", name, info.ID, info.StoredSize)
	return info, nil
}

// Get loads the program named or identified by ref.
func (s *Store) Get(ctx context.Context, ref string) (*container.Container, *ProgramInfo, error) {
	info, err := s.Info(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get([]byte(prefixContainer+info.ID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: container blob for %s", ErrNotFound, info.ID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading container: %w", err)
	}
	c, err := container.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", info.Name, err)
	}
	return c, info, nil
}

// Info returns the catalog row for ref, a program name or id.
func (s *Store) Info(ctx context.Context, ref string) (*ProgramInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(ctx, ref)
}

const programColumns = "id, name, width, height, method, level, original_size, stored_size, checksum, created_at"

func (s *Store) lookup(ctx context.Context, ref string) (*ProgramInfo, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+programColumns+" FROM programs WHERE id = ? OR name = ?", ref, ref)
	info, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: program %q", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("querying program: %w", err)
	}
	return info, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(row scanner) (*ProgramInfo, error) {
	var (
		info     ProgramInfo
		checksum int64
		created  string
	)
	err := row.Scan(&info.ID, &info.Name, &info.Width, &info.Height, &info.Method, &info.Level,
		&info.OriginalSize, &info.StoredSize, &checksum, &created)
	if err != nil {
		return nil, err
	}
	info.Checksum = uint32(checksum)
	if info.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("program %s: created_at: %w", info.ID, err)
	}
	return &info, nil
}

// List returns every program ordered by name.
func (s *Store) List(ctx context.Context) ([]ProgramInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+programColumns+" FROM programs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var out []ProgramInfo
	for rows.Next() {
		info, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// Delete removes a program, its runs and their blobs.
func (s *Store) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM programs WHERE id = ?", info.ID); err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	s.dropBlobs(info.ID)
	return nil
}

// dropBlobs deletes a program's container and run records. Failures only
// leave unreachable blobs behind, so they are logged.
func (s *Store) dropBlobs(programID string) {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefixContainer + programID))
	iter := s.blobs.NewIterator(runPrefix(programID), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := s.blobs.Write(batch, nil); err != nil {
		log.Warningf("dropping blobs of %s: %v", programID, err)
	}
}
