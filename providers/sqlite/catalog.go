// Package sqlite keeps a local catalog of savex dumps in a SQLite database.
//
// Each entry records where a dump lives (an S3 key, a file path, or the
// database itself when the dump is stored inline) and how to open it: the
// wrapped data key for envelope sources or the Argon2id derivation string
// for passphrase sources. Names are versioned: recording a name again adds a
// newer entry and Latest returns it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/hengadev/savex"
)

// LocationInline marks dumps stored in the catalog itself.
const LocationInline = "inline"

var ErrNotFound = errors.New("catalog entry not found")

const schema = `
	CREATE TABLE IF NOT EXISTS dumps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		size INTEGER NOT NULL,
		key_source TEXT NOT NULL DEFAULT 'none',
		key_id TEXT NOT NULL DEFAULT '',
		wrapped_key BLOB,
		derivation TEXT NOT NULL DEFAULT '',
		blob BLOB,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dumps_name ON dumps(name);
	CREATE INDEX IF NOT EXISTS idx_dumps_name_created ON dumps(name, created_at);
`

// Entry is one recorded dump.
type Entry struct {
	ID         uuid.UUID
	Name       string
	Location   string
	Size       int64
	KeySource  string
	KeyID      string
	WrappedKey []byte
	Derivation string
	Blob       []byte
	CreatedAt  time.Time
}

// Catalog is safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the catalog at path. ":memory:" gives a private
// in-memory catalog.
func Open(path string, logger zerolog.Logger) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog at '%s': %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	c, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// New uses an already opened database and creates the schema if needed.
func New(db *sql.DB, logger zerolog.Logger) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection cannot be nil", savex.ErrInvalidConfiguration)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("catalog connection test failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &Catalog{db: db, logger: logger, now: time.Now}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record stores e and returns it with ID and CreatedAt filled in.
func (c *Catalog) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Name == "" {
		return Entry{}, fmt.Errorf("%w: entry name cannot be empty", savex.ErrInvalidConfiguration)
	}
	if e.Location == "" {
		return Entry{}, fmt.Errorf("%w: entry location cannot be empty", savex.ErrInvalidConfiguration)
	}
	if e.KeySource == "" {
		e.KeySource = "none"
	}
	e.ID = uuid.New()
	e.CreatedAt = c.now().UTC()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO dumps (id, name, location, size, key_source, key_id, wrapped_key, derivation, blob, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), e.Name, e.Location, e.Size, e.KeySource, e.KeyID, e.WrappedKey, e.Derivation, e.Blob, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record dump '%s': %w", e.Name, err)
	}

	c.logger.Debug().Str("name", e.Name).Str("id", e.ID.String()).Str("location", e.Location).Msg("recorded dump")
	return e, nil
}

// Latest returns the newest entry for name.
func (c *Catalog) Latest(ctx context.Context, name string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, location, size, key_source, key_id, wrapped_key, derivation, blob, created_at
		FROM dumps WHERE name = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, name)
	e, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get latest dump '%s': %w", name, err)
	}
	return e, nil
}

func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, location, size, key_source, key_id, wrapped_key, derivation, blob, created_at
		FROM dumps WHERE id = ?
	`, id.String())
	e, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get dump %s: %w", id, err)
	}
	return e, nil
}

// List returns every entry, newest first. Inline blobs are not loaded.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, location, size, key_source, key_id, wrapped_key, derivation, NULL, created_at
		FROM dumps ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dumps: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list dumps: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dumps: %w", err)
	}
	return entries, nil
}

func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM dumps WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete dump %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to delete dump %s: %w", id, ErrNotFound)
	}
	return nil
}

// Put dumps v and stores it inline under name.
func (c *Catalog) Put(ctx context.Context, name string, v any, opts ...savex.Option) (Entry, error) {
	data, err := savex.Dump(v, opts...)
	if err != nil {
		return Entry{}, err
	}
	return c.Record(ctx, Entry{
		Name:     name,
		Location: LocationInline,
		Size:     int64(len(data)),
		Blob:     data,
	})
}

// Load decodes the latest inline dump recorded under name.
func Load[T any](ctx context.Context, c *Catalog, name string, opts ...savex.Option) (*T, error) {
	e, err := c.Latest(ctx, name)
	if err != nil {
		return nil, err
	}
	if e.Location != LocationInline {
		return nil, fmt.Errorf("dump '%s' is stored at %s, not inline", name, e.Location)
	}
	return savex.Undump[T](e.Blob, opts...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e  Entry
		id string
	)
	err := s.Scan(&id, &e.Name, &e.Location, &e.Size, &e.KeySource, &e.KeyID, &e.WrappedKey, &e.Derivation, &e.Blob, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("invalid entry id %q: %w", id, err)
	}
	return e, nil
}
