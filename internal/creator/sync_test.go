package creator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/fanbox-archive/internal/storage"
)

type fakeStore struct {
	tx *fakeTx
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	return s.tx, nil
}

type fakeTx struct {
	platforms  []string
	authors    []storage.UnsyncAuthor
	failOn      string // creator id whose sync fails
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) EnsurePlatform(ctx context.Context, name string) (storage.PlatformID, error) {
	t.platforms = append(t.platforms, name)
	return storage.PlatformID("pl-" + name), nil
}

func (t *fakeTx) SyncAuthor(ctx context.Context, author storage.UnsyncAuthor) (storage.AuthorID, error) {
	if author.Aliases[0].Source == t.failOn {
		return "", errors.New("constraint failed")
	}
	t.authors = append(t.authors, author)
	return storage.AuthorID(fmt.Sprintf("author-%d", len(t.authors))), nil
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return t.rollbackErr
}

var testCreators = []Creator{
	{CreatorID: "zed", UserID: "9", Name: "Zed", Fee: 100},
	{CreatorID: "abc", UserID: "123", Name: "Alice", Fee: 500},
}

func TestSynchronizeKeepsInputOrder(t *testing.T) {
	tx := &fakeTx{}

	records, err := Synchronize(context.Background(), &fakeStore{tx: tx}, testCreators)
	require.NoError(t, err)

	assert.Equal(t, []AuthorSyncRecord{
		{AuthorID: "author-1", CreatorID: "zed"},
		{AuthorID: "author-2", CreatorID: "abc"},
	}, records)
	assert.Equal(t, []string{PlatformFanbox, PlatformPixiv}, tx.platforms)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	assert.Equal(t, storage.UnsyncAuthor{
		Name: "Alice",
		Aliases: []storage.Alias{
			{Platform: "pl-fanbox", Source: "abc", Link: "https://abc.fanbox.cc/"},
			{Platform: "pl-pixiv", Source: "123", Link: "https://www.pixiv.net/users/123"},
		},
	}, tx.authors[1])
}

func TestSynchronizeRollsBackWholeBatch(t *testing.T) {
	tx := &fakeTx{failOn: "abc"}

	records, err := Synchronize(context.Background(), &fakeStore{tx: tx}, testCreators)

	assert.Nil(t, records)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "author", syncErr.Stage)
	assert.Equal(t, "abc", syncErr.CreatorID)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestSynchronizeReportsFailedRollback(t *testing.T) {
	rollbackErr := errors.New("disk I/O error")
	tx := &fakeTx{failOn: "abc", rollbackErr: rollbackErr}

	records, err := Synchronize(context.Background(), &fakeStore{tx: tx}, testCreators)

	assert.Nil(t, records)
	assert.ErrorIs(t, err, rollbackErr)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "author", syncErr.Stage)
	assert.Equal(t, "abc", syncErr.CreatorID)
}

func TestSynchronizeEmptyBatch(t *testing.T) {
	tx := &fakeTx{}

	records, err := Synchronize(context.Background(), &fakeStore{tx: tx}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, tx.platforms, 2)
	assert.True(t, tx.committed)
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer db.Close()
	store := ArchiveStore(db)
	ctx := context.Background()

	first, err := Synchronize(ctx, store, testCreators)
	require.NoError(t, err)

	renamed := []Creator{
		{CreatorID: "abc", UserID: "123", Name: "Alice (new)", Fee: 500},
		{CreatorID: "zed", UserID: "9", Name: "Zed", Fee: 100},
	}
	second, err := Synchronize(ctx, store, renamed)
	require.NoError(t, err)

	byCreator := map[string]storage.AuthorID{}
	for _, r := range first {
		byCreator[r.CreatorID] = r.AuthorID
	}
	for _, r := range second {
		assert.Equal(t, byCreator[r.CreatorID], r.AuthorID, r.CreatorID)
	}

	authors, err := db.ListAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Alice (new)", authors[0].Name)
	assert.Len(t, authors[0].Aliases, 2)
}

func TestSynchronizeRollsBackOnPlatformFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM platforms").
		WithArgs(PlatformFanbox).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = Synchronize(context.Background(), ArchiveStore(storage.New(sqlDB)), testCreators)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "platform", syncErr.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSynchronizeRollsBackOnAuthorFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM platforms").
		WithArgs(PlatformFanbox).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-fanbox"))
	mock.ExpectQuery("SELECT id FROM platforms").
		WithArgs(PlatformPixiv).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-pixiv"))
	mock.ExpectQuery("SELECT author_id FROM author_aliases").
		WithArgs("p-fanbox", "zed").
		WillReturnRows(sqlmock.NewRows([]string{"author_id"}))
	mock.ExpectQuery("SELECT author_id FROM author_aliases").
		WithArgs("p-pixiv", "9").
		WillReturnRows(sqlmock.NewRows([]string{"author_id"}))
	mock.ExpectExec("INSERT INTO authors").
		WithArgs(sqlmock.AnyArg(), "Zed", sqlmock.AnyArg()).
		WillReturnError(errors.New("UNIQUE constraint failed"))
	mock.ExpectRollback()

	records, err := Synchronize(context.Background(), ArchiveStore(storage.New(sqlDB)), testCreators)

	assert.Nil(t, records)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "zed", syncErr.CreatorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
