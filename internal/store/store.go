package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/quillpress/quill/internal/article"
)

// SchemaVersion is the version of the local schema this release writes.
const SchemaVersion = 1

// timeLayout is fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the local record store backed by SQLite.
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the store at path and initialises its schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(home, ".quill", "quill.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fault("open", fmt.Errorf("failed to create database directory: %w", err))
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(wal)")
	params.Add("_pragma", "synchronous(normal)")
	params.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + params.Encode()

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fault("open", fmt.Errorf("failed to open database: %w", err))
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fault("open", fmt.Errorf("failed to ping database: %w", err))
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, now: time.Now}
	if err := s.InitSchemaContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open connection. The schema is not touched; call
// InitSchema when the connection points at a fresh database.
func New(conn *sql.DB) *Store {
	return &Store{conn: conn, now: time.Now}
}

// Path returns the file the store was opened from, empty for New.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if s.path != "" {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the articles table if needed and checks the schema version.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext is InitSchema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fault("open", fmt.Errorf("failed to read schema version: %w", err))
	}
	if version > SchemaVersion {
		return fault("open", fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion))
	}

	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		local_id TEXT PRIMARY KEY,
		server_id INTEGER,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Lookups by creation time and by server identity; server_id is mostly
	-- NULL for pending records so the index is not unique.
	CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at);
	CREATE INDEX IF NOT EXISTS idx_articles_server ON articles(server_id);
	`

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fault("open", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fault("open", fmt.Errorf("failed to initialize schema: %w", err))
	}
	if version < SchemaVersion {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fault("open", fmt.Errorf("failed to set schema version: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fault("open", fmt.Errorf("failed to commit schema: %w", err))
	}
	return nil
}

// SchemaVersionContext returns the version recorded in the database file.
func (s *Store) SchemaVersionContext(ctx context.Context) (int, error) {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fault("read", fmt.Errorf("failed to read schema version: %w", err))
	}
	return version, nil
}

// Put inserts or updates an article and returns its effective local id.
//
// Without a LocalID a fresh one is assigned, ServerID is forced to nil and
// the record is inserted. With a LocalID the stored entry is overwritten;
// an existing server id is kept when the incoming record has none, and
// created_at is never changed. On success a.LocalID holds the id.
func (s *Store) Put(ctx context.Context, a *article.Article) (string, error) {
	rec := a.Clone()
	if rec.LocalID == "" {
		rec.LocalID = uuid.NewString()
		rec.ServerID = nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	query := `
	INSERT INTO articles (local_id, server_id, title, body, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(local_id) DO UPDATE SET
		server_id = COALESCE(articles.server_id, excluded.server_id),
		title = excluded.title,
		body = excluded.body
	`

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fault("put", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query,
		rec.LocalID,
		serverIDToNull(rec.ServerID),
		rec.Title,
		rec.Body,
		formatTime(rec.CreatedAt),
	); err != nil {
		return "", fault("put", fmt.Errorf("failed to upsert article %s: %w", rec.LocalID, err))
	}

	if err := tx.Commit(); err != nil {
		return "", fault("put", fmt.Errorf("failed to commit article %s: %w", rec.LocalID, err))
	}

	a.LocalID = rec.LocalID
	a.ServerID = rec.ServerID
	a.CreatedAt = rec.CreatedAt
	return rec.LocalID, nil
}

// InsertConfirmed stores a server record as a new confirmed article.
//
// The check for an existing holder of the server id and the insert run in
// one transaction, so two concurrent merges cannot both claim the same
// server identity. When the id is already present nothing is written and
// inserted is false.
func (s *Store) InsertConfirmed(ctx context.Context, r article.Remote) (localID string, inserted bool, err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fault("put", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT local_id FROM articles WHERE server_id = ? LIMIT 1`, r.ID).Scan(&existing)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fault("put", fmt.Errorf("failed to look up server id %d: %w", r.ID, err))
	}

	a := article.FromRemote(r)
	a.LocalID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO articles (local_id, server_id, title, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.LocalID, r.ID, a.Title, a.Body, formatTime(a.CreatedAt),
	); err != nil {
		return "", false, fault("put", fmt.Errorf("failed to insert server article %d: %w", r.ID, err))
	}

	if err := tx.Commit(); err != nil {
		return "", false, fault("put", fmt.Errorf("failed to commit server article %d: %w", r.ID, err))
	}
	return a.LocalID, true, nil
}

// Get returns a single article by local id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, localID string) (*article.Article, error) {
	query := `SELECT local_id, server_id, title, body, created_at FROM articles WHERE local_id = ?`
	rows, err := s.conn.QueryContext(ctx, query, localID)
	if err != nil {
		return nil, fault("read", fmt.Errorf("failed to query article %s: %w", localID, err))
	}
	defer rows.Close()

	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, ErrNotFound
	}
	return articles[0], nil
}

// List returns every stored article. The order is unspecified.
func (s *Store) List(ctx context.Context) ([]*article.Article, error) {
	return s.query(ctx, `SELECT local_id, server_id, title, body, created_at FROM articles`)
}

// Pending returns the articles the server has not confirmed yet.
func (s *Store) Pending(ctx context.Context) ([]*article.Article, error) {
	return s.query(ctx, `
	SELECT local_id, server_id, title, body, created_at
	FROM articles
	WHERE server_id IS NULL
	ORDER BY created_at ASC
	`)
}

// FindByServerID returns the articles claiming a server identity.
// More than one result means the uniqueness invariant was broken elsewhere.
func (s *Store) FindByServerID(ctx context.Context, serverID int64) ([]*article.Article, error) {
	return s.query(ctx, `
	SELECT local_id, server_id, title, body, created_at
	FROM articles
	WHERE server_id = ?
	`, serverID)
}

// ServerIDs returns the set of server ids already present locally.
func (s *Store) ServerIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT server_id FROM articles WHERE server_id IS NOT NULL`)
	if err != nil {
		return nil, fault("read", fmt.Errorf("failed to query server ids: %w", err))
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fault("read", fmt.Errorf("failed to scan server id: %w", err))
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fault("read", fmt.Errorf("error iterating server ids: %w", err))
	}
	return ids, nil
}

// Remove deletes an article. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, localID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fault("remove", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE local_id = ?`, localID); err != nil {
		return fault("remove", fmt.Errorf("failed to delete article %s: %w", localID, err))
	}

	if err := tx.Commit(); err != nil {
		return fault("remove", fmt.Errorf("failed to commit delete of %s: %w", localID, err))
	}
	return nil
}

// Clear deletes every article. It is meant for full resets only.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fault("clear", fmt.Errorf("failed to clear articles: %w", err))
	}
	return nil
}

// Count returns the total number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&count); err != nil {
		return 0, fault("read", fmt.Errorf("failed to get article count: %w", err))
	}
	return count, nil
}

// CountPending returns the number of unconfirmed articles.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE server_id IS NULL").Scan(&count); err != nil {
		return 0, fault("read", fmt.Errorf("failed to get pending count: %w", err))
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*article.Article, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault("read", fmt.Errorf("failed to query articles: %w", err))
	}
	defer rows.Close()

	return scanArticles(rows)
}

// scanArticles reads every row of a local_id, server_id, title, body,
// created_at result set.
func scanArticles(rows *sql.Rows) ([]*article.Article, error) {
	articles := []*article.Article{}

	for rows.Next() {
		var a article.Article
		var serverID sql.NullInt64
		var createdAt string

		if err := rows.Scan(&a.LocalID, &serverID, &a.Title, &a.Body, &createdAt); err != nil {
			return nil, fault("read", fmt.Errorf("failed to scan article: %w", err))
		}

		if serverID.Valid {
			id := serverID.Int64
			a.ServerID = &id
		}
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			a.CreatedAt = t
		} else if t, ok := article.ParseTimestamp(createdAt); ok {
			a.CreatedAt = t
		}

		articles = append(articles, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fault("read", fmt.Errorf("error iterating articles: %w", err))
	}

	return articles, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func serverIDToNull(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// IsNotFound reports whether err means the article does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
