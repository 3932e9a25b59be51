// Package sqlite provides a SQLite-backed implementation of the storage.Adapter interface.
//
// It emulates the remote document store locally: documents with properties,
// shares and tabs of positional rows. Like the remote store it offers no
// cross-call transactions to its callers; each method is a single round trip.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/quozen/internal/storage"
)

// Ensure SQLiteStore implements storage.Adapter
var _ storage.Adapter = (*SQLiteStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.Adapter using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	// tabIDs caches tab row IDs per document. Dropped on rename, delete and initialize.
	mu     sync.Mutex
	tabIDs map[string]map[string]int64
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source for created and modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are per connection, so enable them in the DSN.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		now:    time.Now,
		tabIDs: make(map[string]map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) invalidate(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tabIDs, fileID)
}

// tabID resolves a tab name to its row ID, consulting the cache first.
func (s *SQLiteStore) tabID(ctx context.Context, q querier, op, fileID, tab string) (int64, error) {
	s.mu.Lock()
	id, ok := s.tabIDs[fileID][tab]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	err := q.QueryRowContext(ctx, "SELECT id FROM tabs WHERE file_id = ? AND name = ?", fileID, tab).Scan(&id)
	if err == sql.ErrNoRows {
		if err := s.requireFile(ctx, q, op, fileID); err != nil {
			return 0, err
		}
		return 0, storage.NotFound(op, "tab %s not found in %s", tab, fileID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up tab: %w", err)
	}

	s.mu.Lock()
	if s.tabIDs[fileID] == nil {
		s.tabIDs[fileID] = make(map[string]int64)
	}
	s.tabIDs[fileID][tab] = id
	s.mu.Unlock()
	return id, nil
}

// recheck reports a document-level NotFound when fileID was deleted behind a
// cached tab ID, and drops the stale entry. Otherwise err is returned as is.
func (s *SQLiteStore) recheck(ctx context.Context, q querier, op, fileID string, err error) error {
	if ferr := s.requireFile(ctx, q, op, fileID); ferr != nil {
		if storage.IsNotFound(ferr) {
			s.invalidate(fileID)
		}
		return ferr
	}
	return err
}

func (s *SQLiteStore) requireFile(ctx context.Context, q querier, op, fileID string) error {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM files WHERE id = ?", fileID).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.NotFound(op, "document %s not found", fileID)
	}
	if err != nil {
		return fmt.Errorf("failed to check document existence: %w", err)
	}
	return nil
}

// touch bumps the document's modified stamp so pollers notice the edit.
// Failures are logged and never returned.
func (s *SQLiteStore) touch(ctx context.Context, fileID string) {
	now := s.now()
	if _, err := s.db.ExecContext(ctx, "UPDATE files SET modified_at = ? WHERE id = ?", now.UnixNano(), fileID); err != nil {
		slog.Warn("Failed to touch document", "file_id", fileID, "error", err)
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_properties (file_id, key, value) VALUES (?, 'last_touch', ?)
		 ON CONFLICT(file_id, key) DO UPDATE SET value = excluded.value`,
		fileID, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		slog.Warn("Failed to touch document", "file_id", fileID, "error", err)
	}
}

// CreateFile persists a new document with its tabs and properties.
func (s *SQLiteStore) CreateFile(ctx context.Context, req storage.CreateFileRequest) (string, error) {
	id := uuid.New().String()
	now := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO files (id, name, owner, access, created_at, modified_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, req.Name, req.Owner, string(storage.AccessRestricted), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	for k, v := range req.Properties {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_properties (file_id, key, value) VALUES (?, ?, ?)", id, k, v,
		); err != nil {
			return "", fmt.Errorf("failed to insert property: %w", err)
		}
	}

	for i, tab := range req.Tabs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tabs (file_id, name, ord) VALUES (?, ?, ?)", id, tab, i,
		); err != nil {
			return "", fmt.Errorf("failed to insert tab: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// DeleteFile removes a document and everything in it.
func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	defer s.invalidate(fileID)

	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NotFound("DeleteFile", "document %s not found", fileID)
	}
	return nil
}

// RenameFile changes a document's name.
func (s *SQLiteStore) RenameFile(ctx context.Context, fileID, name string) error {
	defer s.invalidate(fileID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE files SET name = ?, modified_at = ? WHERE id = ?", name, s.now().UnixNano(), fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to rename document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NotFound("RenameFile", "document %s not found", fileID)
	}
	return nil
}

// ShareFile grants principal a role on the document. Display names are not
// known locally, so the returned name is always empty.
func (s *SQLiteStore) ShareFile(ctx context.Context, fileID, principal, role string) (string, error) {
	if principal == "" {
		return "", storage.Validation("ShareFile", "principal is required")
	}
	if err := s.requireFile(ctx, s.db, "ShareFile", fileID); err != nil {
		return "", err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_shares (file_id, principal, role) VALUES (?, ?, ?)
		 ON CONFLICT(file_id, principal) DO UPDATE SET role = excluded.role`,
		fileID, strings.ToLower(principal), role,
	)
	if err != nil {
		return "", fmt.Errorf("failed to share document: %w", err)
	}
	return "", nil
}

// SetPermissions sets the document's link-sharing mode.
func (s *SQLiteStore) SetPermissions(ctx context.Context, fileID string, access storage.Access) error {
	res, err := s.db.ExecContext(ctx, "UPDATE files SET access = ? WHERE id = ?", string(access), fileID)
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NotFound("SetPermissions", "document %s not found", fileID)
	}
	return nil
}

// GetPermissions returns the document's link-sharing mode.
func (s *SQLiteStore) GetPermissions(ctx context.Context, fileID string) (storage.Access, error) {
	var access string
	err := s.db.QueryRowContext(ctx, "SELECT access FROM files WHERE id = ?", fileID).Scan(&access)
	if err == sql.ErrNoRows {
		return "", storage.NotFound("GetPermissions", "document %s not found", fileID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get permissions: %w", err)
	}
	return storage.Access(access), nil
}

// AddProperties merges props into the document's properties.
func (s *SQLiteStore) AddProperties(ctx context.Context, fileID string, props map[string]string) error {
	if err := s.requireFile(ctx, s.db, "AddProperties", fileID); err != nil {
		return err
	}
	for k, v := range props {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO file_properties (file_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(file_id, key) DO UPDATE SET value = excluded.value`,
			fileID, k, v,
		)
		if err != nil {
			return fmt.Errorf("failed to add property %s: %w", k, err)
		}
	}
	return nil
}

type fileRow struct {
	id, name, owner   string
	created, modified int64
}

// ListFiles returns the documents matching filter, ordered by ID.
func (s *SQLiteStore) ListFiles(ctx context.Context, filter storage.ListFilter) ([]storage.FileInfo, error) {
	query := "SELECT id, name, owner, created_at, modified_at FROM files WHERE 1 = 1"
	var args []any
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	if filter.NamePrefix != "" {
		query += " AND substr(name, 1, ?) = ?"
		args = append(args, utf8.RuneCountInString(filter.NamePrefix), filter.NamePrefix)
	}
	if filter.Principal != "" {
		query += " AND (lower(owner) = lower(?) OR id IN (SELECT file_id FROM file_shares WHERE principal = lower(?)))"
		args = append(args, filter.Principal, filter.Principal)
		if filter.OwnedOnly {
			query += " AND lower(owner) = lower(?)"
			args = append(args, filter.Principal)
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	var found []fileRow
	for rows.Next() {
		var f fileRow
		if err := rows.Scan(&f.id, &f.name, &f.owner, &f.created, &f.modified); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		found = append(found, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	// Properties are loaded after the cursor closes: the pool holds a single connection.
	var out []storage.FileInfo
	for _, f := range found {
		props, err := s.loadProperties(ctx, f.id)
		if err != nil {
			return nil, err
		}
		if !hasProperties(props, filter.Properties) {
			continue
		}
		owned := filter.Principal != "" && strings.EqualFold(f.owner, filter.Principal)
		canEdit := owned || filter.Principal == ""
		if !canEdit {
			var role string
			err := s.db.QueryRowContext(ctx,
				"SELECT role FROM file_shares WHERE file_id = ? AND principal = lower(?)", f.id, filter.Principal,
			).Scan(&role)
			if err != nil && err != sql.ErrNoRows {
				return nil, fmt.Errorf("failed to get share: %w", err)
			}
			canEdit = role == "writer"
		}
		out = append(out, storage.FileInfo{
			ID:           f.id,
			Name:         f.name,
			CreatedTime:  time.Unix(0, f.created),
			ModifiedTime: time.Unix(0, f.modified),
			Owners:       []string{f.owner},
			Capabilities: storage.Capabilities{CanEdit: canEdit, CanDelete: owned},
			Properties:   props,
		})
	}
	return out, nil
}

func hasProperties(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) loadProperties(ctx context.Context, fileID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM file_properties WHERE file_id = ?", fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	return props, nil
}

// GetFileMeta returns a document's title, tabs, properties and owners.
func (s *SQLiteStore) GetFileMeta(ctx context.Context, fileID string) (*storage.FileMeta, error) {
	meta := &storage.FileMeta{}
	var owner string
	err := s.db.QueryRowContext(ctx, "SELECT name, owner FROM files WHERE id = ?", fileID).Scan(&meta.Title, &owner)
	if err == sql.ErrNoRows {
		return nil, storage.NotFound("GetFileMeta", "document %s not found", fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	meta.Owners = []string{owner}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM tabs WHERE file_id = ? ORDER BY ord", fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tabs: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tab: %w", err)
		}
		meta.Tabs = append(meta.Tabs, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tabs: %w", err)
	}

	meta.Properties, err = s.loadProperties(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ReadContent returns a document's plain body.
func (s *SQLiteStore) ReadContent(ctx context.Context, fileID string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, "SELECT content FROM files WHERE id = ?", fileID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, storage.NotFound("ReadContent", "document %s not found", fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return content, nil
}

// WriteContent replaces a document's plain body.
func (s *SQLiteStore) WriteContent(ctx context.Context, fileID string, data []byte) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE files SET content = ?, modified_at = ? WHERE id = ?", data, s.now().UnixNano(), fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NotFound("WriteContent", "document %s not found", fileID)
	}
	return nil
}
