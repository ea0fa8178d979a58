package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite archive
type DB struct {
	db *sql.DB
}

// Open opens or creates the archive database at path
func Open(path string) (*DB, error) {
	// Foreign keys are per connection, so they go in the DSN rather than a PRAGMA.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	storage := New(db)
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// New wraps an existing handle. The schema is assumed to be in place.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS platforms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS author_aliases (
		platform_id TEXT NOT NULL REFERENCES platforms(id),
		source TEXT NOT NULL,
		author_id TEXT NOT NULL REFERENCES authors(id),
		link TEXT,
		PRIMARY KEY (platform_id, source)
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES authors(id),
		source_url TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		content_text TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		tags TEXT,
		comments TEXT,
		fee_required INTEGER NOT NULL DEFAULT 0,
		is_restricted BOOLEAN NOT NULL DEFAULT 0,
		published_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		synced_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alias_author ON author_aliases(author_id);
	CREATE INDEX IF NOT EXISTS idx_post_author ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_post_published ON posts(published_at);
	CREATE INDEX IF NOT EXISTS idx_post_hash ON posts(content_hash);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return err
	}
	return d.addColumn("posts", "comments", "TEXT")
}

// addColumn adds a column to a table created before the column existed
func (d *DB) addColumn(table, column, decl string) error {
	var n int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	_, err = d.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// Tx is an open archive transaction. Platform and author writes only happen
// inside one.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func newID() string {
	return ulid.Make().String()
}
