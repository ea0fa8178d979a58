package creator

import (
	"context"
	"errors"
	"fmt"

	"github.com/renderinc/fanbox-archive/internal/fanbox"
	"github.com/renderinc/fanbox-archive/internal/storage"
)

// Platform names registered in the archive
const (
	PlatformFanbox = "fanbox"
	PlatformPixiv  = "pixiv"
)

// Store opens archive transactions
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the part of an archive transaction the synchronizer writes through
type Tx interface {
	EnsurePlatform(ctx context.Context, name string) (storage.PlatformID, error)
	SyncAuthor(ctx context.Context, author storage.UnsyncAuthor) (storage.AuthorID, error)
	Commit() error
	Rollback() error
}

// ArchiveStore adapts the SQLite archive to Store
func ArchiveStore(db *storage.DB) Store {
	return archiveStore{db: db}
}

type archiveStore struct {
	db *storage.DB
}

func (s archiveStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// AuthorSyncRecord ties a synced author to the creator it came from
type AuthorSyncRecord struct {
	AuthorID  storage.AuthorID
	CreatorID string
}

// SyncError is a failed synchronization batch. Nothing of the batch was kept.
type SyncError struct {
	Stage     string // begin, platform, author or commit
	CreatorID string // set when Stage is author
	Err       error
}

func (e *SyncError) Error() string {
	if e.CreatorID != "" {
		return fmt.Sprintf("sync creators: %s %s: %v", e.Stage, e.CreatorID, e.Err)
	}
	return fmt.Sprintf("sync creators: %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Synchronize binds every creator to an archive author inside a single
// transaction. Records come back in input order. On error the transaction
// is rolled back and no record is returned.
func Synchronize(ctx context.Context, store Store, creators []Creator) (_ []AuthorSyncRecord, err error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, &SyncError{Stage: "begin", Err: err}
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	fanboxID, err := tx.EnsurePlatform(ctx, PlatformFanbox)
	if err != nil {
		return nil, &SyncError{Stage: "platform", Err: err}
	}
	pixivID, err := tx.EnsurePlatform(ctx, PlatformPixiv)
	if err != nil {
		return nil, &SyncError{Stage: "platform", Err: err}
	}

	records := make([]AuthorSyncRecord, 0, len(creators))
	for _, c := range creators {
		author := storage.UnsyncAuthor{
			Name: c.Name,
			Aliases: []storage.Alias{
				{Platform: fanboxID, Source: c.CreatorID, Link: fanbox.CreatorURL(c.CreatorID)},
				{Platform: pixivID, Source: c.UserID, Link: fanbox.PixivUserURL(c.UserID)},
			},
		}

		id, err := tx.SyncAuthor(ctx, author)
		if err != nil {
			return nil, &SyncError{Stage: "author", CreatorID: c.CreatorID, Err: err}
		}
		records = append(records, AuthorSyncRecord{AuthorID: id, CreatorID: c.CreatorID})
	}

	if err := tx.Commit(); err != nil {
		return nil, &SyncError{Stage: "commit", Err: err}
	}
	return records, nil
}
