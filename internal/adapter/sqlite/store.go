package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"timesheet/internal/domain"
	"timesheet/internal/migrate"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02 15:04:05.000000"

// Store implements ports.DocumentStore on a local SQLite file. It plays the
// role of a local emulator for the remote store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database file if needed and applies migrations.
func Open(ctx context.Context, dbPath string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL for concurrent reads while the server writes.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrate.Run(ctx, db, migrate.SQLite, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// DB exposes the connection for maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// List returns the collection newest first.
func (s *Store) List(ctx context.Context, collection string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at
		FROM session_documents
		WHERE collection = ?
		ORDER BY created_at DESC, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			d                domain.Document
			data             string
			created, updated string
		)
		if err := rows.Scan(&d.ID, &data, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Data = json.RawMessage(data)
		d.CreatedAt = parseTime(created)
		d.UpdatedAt = parseTime(updated)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, collection string, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		collection, doc.ID, string(doc.Data), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Update merge-patches fields into the stored JSON with json_patch.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, updatedAt time.Time) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE session_documents
		SET data = json_patch(data, ?), updated_at = ?
		WHERE collection = ? AND id = ?`,
		string(patch), formatTime(updatedAt), collection, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_documents WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}
