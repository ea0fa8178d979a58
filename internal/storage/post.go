package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Post is an archived post
type Post struct {
	ID           string          `json:"id"`
	AuthorID     AuthorID        `json:"authorId"`
	SourceURL    string          `json:"sourceUrl"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content"`     // resolved body nodes
	ContentText  string          `json:"contentText"` // plain text for indexing
	ContentHash  string          `json:"contentHash"`
	Tags         []string        `json:"tags"`
	Comments     []Comment       `json:"comments"`
	FeeRequired  int             `json:"feeRequired"`
	IsRestricted bool            `json:"isRestricted"`
	PublishedAt  time.Time       `json:"publishedAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	SyncedAt     time.Time       `json:"syncedAt"` // when we synced
}

// Comment is an archived comment with its replies
type Comment struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Replies   []Comment `json:"replies,omitempty"`
}

// PostState is what a sync needs to decide whether to refetch a post
type PostState struct {
	ContentHash string
	UpdatedAt   time.Time
}

const postColumns = `
	id, author_id, source_url, title, content, content_text, content_hash,
	tags, comments, fee_required, is_restricted, published_at, updated_at, synced_at`

// UpsertPost inserts or updates a post
func (d *DB) UpsertPost(ctx context.Context, post *Post) error {
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	comments, err := json.Marshal(post.Comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	content := post.Content
	if content == nil {
		content = json.RawMessage("[]")
	}

	query := `
	INSERT INTO posts (` + postColumns + `
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		author_id = excluded.author_id,
		source_url = excluded.source_url,
		title = excluded.title,
		content = excluded.content,
		content_text = excluded.content_text,
		content_hash = excluded.content_hash,
		tags = excluded.tags,
		comments = excluded.comments,
		fee_required = excluded.fee_required,
		is_restricted = excluded.is_restricted,
		published_at = excluded.published_at,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	`

	_, err = d.db.ExecContext(ctx, query,
		post.ID, string(post.AuthorID), post.SourceURL, post.Title, string(content), post.ContentText, post.ContentHash,
		string(tags), string(comments), post.FeeRequired, post.IsRestricted, post.PublishedAt, post.UpdatedAt, post.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*Post, error) {
	var (
		post              Post
		authorID, content string
		tags, comments    sql.NullString
	)
	err := row.Scan(
		&post.ID, &authorID, &post.SourceURL, &post.Title, &content, &post.ContentText, &post.ContentHash,
		&tags, &comments, &post.FeeRequired, &post.IsRestricted, &post.PublishedAt, &post.UpdatedAt, &post.SyncedAt,
	)
	if err != nil {
		return nil, err
	}

	post.AuthorID = AuthorID(authorID)
	post.Content = json.RawMessage(content)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &post.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", post.ID, err)
		}
	}
	if comments.Valid && comments.String != "" {
		if err := json.Unmarshal([]byte(comments.String), &post.Comments); err != nil {
			return nil, fmt.Errorf("decode comments of %s: %w", post.ID, err)
		}
	}
	return &post, nil
}

// GetPost retrieves a post by ID. It returns nil if the post is not archived.
func (d *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns the posts of an author, newest first. An empty authorID
// lists every post.
func (d *DB) ListPosts(ctx context.Context, authorID AuthorID) ([]*Post, error) {
	query := "SELECT " + postColumns + " FROM posts"
	var args []any
	if authorID != "" {
		query += " WHERE author_id = ?"
		args = append(args, string(authorID))
	}
	query += " ORDER BY published_at DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// CountPosts returns the total number of archived posts
func (d *DB) CountPosts(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}

// GetPostState retrieves the content hash and update time of a post, or nil
// if it has never been archived.
func (d *DB) GetPostState(ctx context.Context, id string) (*PostState, error) {
	var state PostState
	err := d.db.QueryRowContext(ctx,
		"SELECT content_hash, updated_at FROM posts WHERE id = ?", id,
	).Scan(&state.ContentHash, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
