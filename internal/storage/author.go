package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoAliases is returned when an author is synced without any alias to bind it to.
var ErrNoAliases = errors.New("author has no aliases")

// PlatformID is the opaque handle of a registered platform
type PlatformID string

// AuthorID is the opaque handle of an archived author
type AuthorID string

// Alias binds an author to an account on a platform
type Alias struct {
	Platform PlatformID
	Source   string // the account id on that platform
	Link     string
}

// UnsyncAuthor is an author as known to a caller before it has an AuthorID
type UnsyncAuthor struct {
	Name    string
	Aliases []Alias
}

// Author is an archived author with its aliases
type Author struct {
	ID        AuthorID      `json:"id"`
	Name      string        `json:"name"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Aliases   []AuthorAlias `json:"aliases"`
}

// AuthorAlias is an alias as listed back from the archive
type AuthorAlias struct {
	Platform string `json:"platform"`
	Source   string `json:"source"`
	Link     string `json:"link"`
}

// EnsurePlatform returns the id of the named platform, registering it first
// if needed.
func (t *Tx) EnsurePlatform(ctx context.Context, name string) (PlatformID, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, "SELECT id FROM platforms WHERE name = ?", name).Scan(&id)
	if err == nil {
		return PlatformID(id), nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup platform %s: %w", name, err)
	}

	id = newID()
	if _, err := t.tx.ExecContext(ctx, "INSERT INTO platforms (id, name) VALUES (?, ?)", id, name); err != nil {
		return "", fmt.Errorf("insert platform %s: %w", name, err)
	}
	return PlatformID(id), nil
}

// SyncAuthor creates an author bound to the given aliases, or merges into the
// author already bound to one of them. When aliases point at different
// authors the first alias in order decides. The display name is always
// replaced; every alias ends up bound to the returned author.
func (t *Tx) SyncAuthor(ctx context.Context, author UnsyncAuthor) (AuthorID, error) {
	if len(author.Aliases) == 0 {
		return "", ErrNoAliases
	}

	id, err := t.findAuthor(ctx, author.Aliases)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if id == "" {
		id = AuthorID(newID())
		_, err = t.tx.ExecContext(ctx,
			"INSERT INTO authors (id, name, updated_at) VALUES (?, ?, ?)",
			string(id), author.Name, now)
		if err != nil {
			return "", fmt.Errorf("insert author: %w", err)
		}
	} else {
		_, err = t.tx.ExecContext(ctx,
			"UPDATE authors SET name = ?, updated_at = ? WHERE id = ?",
			author.Name, now, string(id))
		if err != nil {
			return "", fmt.Errorf("update author %s: %w", id, err)
		}
	}

	query := `
	INSERT INTO author_aliases (platform_id, source, author_id, link)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(platform_id, source) DO UPDATE SET
		author_id = excluded.author_id,
		link = excluded.link
	`
	for _, alias := range author.Aliases {
		if _, err := t.tx.ExecContext(ctx, query, string(alias.Platform), alias.Source, string(id), alias.Link); err != nil {
			return "", fmt.Errorf("upsert alias %s: %w", alias.Source, err)
		}
	}

	return id, nil
}

func (t *Tx) findAuthor(ctx context.Context, aliases []Alias) (AuthorID, error) {
	for _, alias := range aliases {
		var id string
		err := t.tx.QueryRowContext(ctx,
			"SELECT author_id FROM author_aliases WHERE platform_id = ? AND source = ?",
			string(alias.Platform), alias.Source,
		).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("lookup alias %s: %w", alias.Source, err)
		}
		return AuthorID(id), nil
	}
	return "", nil
}

// PlatformID looks up a registered platform. It returns "" if the platform
// was never registered.
func (d *DB) PlatformID(ctx context.Context, name string) (PlatformID, error) {
	var id string
	err := d.db.QueryRowContext(ctx, "SELECT id FROM platforms WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return PlatformID(id), err
}

// AuthorBySource returns the author bound to an account on a platform, or ""
func (d *DB) AuthorBySource(ctx context.Context, platform, source string) (AuthorID, error) {
	var id string
	query := `
	SELECT a.author_id
	FROM author_aliases a
	JOIN platforms p ON p.id = a.platform_id
	WHERE p.name = ? AND a.source = ?
	`
	err := d.db.QueryRowContext(ctx, query, platform, source).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return AuthorID(id), err
}

// ListAuthors returns every author with its aliases, ordered by name
func (d *DB) ListAuthors(ctx context.Context) ([]Author, error) {
	query := `
	SELECT au.id, au.name, au.updated_at, p.name, al.source, al.link
	FROM authors au
	LEFT JOIN author_aliases al ON al.author_id = au.id
	LEFT JOIN platforms p ON p.id = al.platform_id
	ORDER BY au.name, au.id, p.name
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		var (
			id, name               string
			updatedAt              time.Time
			platform, source, link sql.NullString
		)
		if err := rows.Scan(&id, &name, &updatedAt, &platform, &source, &link); err != nil {
			return nil, err
		}

		if n := len(authors); n == 0 || authors[n-1].ID != AuthorID(id) {
			authors = append(authors, Author{ID: AuthorID(id), Name: name, UpdatedAt: updatedAt})
		}
		if source.Valid {
			last := &authors[len(authors)-1]
			last.Aliases = append(last.Aliases, AuthorAlias{
				Platform: platform.String,
				Source:   source.String,
				Link:     link.String,
			})
		}
	}

	return authors, rows.Err()
}

// CountAuthors returns the number of archived authors
func (d *DB) CountAuthors(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM authors").Scan(&count)
	return count, err
}
