package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill/internal/article"
)

// openTestStore opens a store in a fresh temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func draft(title, body string) *article.Article {
	return &article.Article{
		Title:     title,
		Body:      body,
		CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC),
	}
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())

	version, err := s.SchemaVersionContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestInitSchema_Idempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InitSchema())
	require.NoError(t, s.InitSchema())
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, IsStorageFault(err), "expected StorageFault, got %T", err)
}

func TestPut_AssignsLocalID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := draft("T", "C")
	serverID := int64(3)
	a.ServerID = &serverID // ignored on first insert

	id, err := s.Put(ctx, a)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, a.LocalID)
	assert.Nil(t, a.ServerID)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "C", got.Body)
	assert.True(t, got.IsPending())
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt), "created_at = %v, want %v", got.CreatedAt, a.CreatedAt)
}

func TestPut_UpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := draft("first", "body")
	id, err := s.Put(ctx, a)
	require.NoError(t, err)

	original := a.CreatedAt
	a.Title = "second"
	a.CreatedAt = original.Add(time.Hour)
	again, err := s.Put(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Title)
	assert.True(t, original.Equal(all[0].CreatedAt), "created_at must not change")
}

func TestPut_KeepsServerID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	localID, inserted, err := s.InsertConfirmed(ctx, article.Remote{ID: 42, Title: "S", Content: "X"})
	require.NoError(t, err)
	require.True(t, inserted)

	// An update without a server id must not clear the confirmed identity.
	_, err = s.Put(ctx, &article.Article{LocalID: localID, Title: "S2", Body: "X2", CreatedAt: time.Now()})
	require.NoError(t, err)

	got, err := s.Get(ctx, localID)
	require.NoError(t, err)
	require.NotNil(t, got.ServerID)
	assert.Equal(t, int64(42), *got.ServerID)
	assert.Equal(t, "S2", got.Title)
}

func TestInsertConfirmed_Dedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, inserted, err := s.InsertConfirmed(ctx, article.Remote{ID: 5, Title: "S", Content: "X"})
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted, err := s.InsertConfirmed(ctx, article.Remote{ID: 5, Title: "S", Content: "X"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first, second)

	found, err := s.FindByServerID(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestPending_ExcludesConfirmed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, draft("pending", "p"))
	require.NoError(t, err)
	_, _, err = s.InsertConfirmed(ctx, article.Remote{ID: 1, Title: "confirmed", Content: "c"})
	require.NoError(t, err)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].Title)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	ids, err := s.ServerIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, int64(1))
	assert.Len(t, ids, 1)
}

func TestRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Put(ctx, draft("T", "C"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, id))
	_, err = s.Get(ctx, id)
	assert.True(t, IsNotFound(err))

	// Removing again is a no-op.
	assert.NoError(t, s.Remove(ctx, id))
	assert.NoError(t, s.Remove(ctx, "does-not-exist"))
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Put(ctx, draft(fmt.Sprintf("T%d", i), "C"))
		require.NoError(t, err)
	}
	require.NoError(t, s.Clear(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPut_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Put(ctx, draft(fmt.Sprintf("T%d", i), "C"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, writers)
	for _, a := range all {
		assert.Equal(t, "C", a.Body)
	}
}

func TestPut_StorageFaultOnAbort(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := New(conn)
	a := draft("T", "C")
	_, err = s.Put(context.Background(), a)
	require.Error(t, err)

	var sf *StorageFault
	require.True(t, errors.As(err, &sf), "expected StorageFault, got %T", err)
	assert.Equal(t, "put", sf.Op)
	assert.Empty(t, a.LocalID, "failed put must not report an id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove_StorageFaultOnCommit(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM articles").WithArgs("abc").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	s := New(conn)
	err = s.Remove(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, IsStorageFault(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
