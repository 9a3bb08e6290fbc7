package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"timesheet/internal/domain"
	"timesheet/internal/migrate"
)

// Store implements ports.DocumentStore on a MySQL table of JSON documents.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects using dsn, e.g. user:pass@tcp(host:3306)/dbname, and applies
// pending migrations. parseTime, multiStatements and clientFoundRows are
// forced on: migrations need multi statements and Update relies on found rows
// to tell a missing document from an unchanged one.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	// Conservative pool defaults.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate.Run(ctx, db, migrate.MySQL, log); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("mysql store ready", slog.String("addr", cfg.Addr), slog.String("db", cfg.DBName))
	return &Store{db: db, log: log}, nil
}

// DB exposes the pool for maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// List returns the collection's documents, newest first.
func (s *Store) List(ctx context.Context, collection string) ([]domain.Document, error) {
	const q = `
SELECT id, data, created_at, updated_at
FROM session_documents
WHERE collection = ?
ORDER BY created_at DESC, id;
`
	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			d    domain.Document
			data []byte
		)
		if err := rows.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = json.RawMessage(data)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Create inserts doc.
func (s *Store) Create(ctx context.Context, collection string, doc domain.Document) error {
	const q = `
INSERT INTO session_documents
  (collection, id, data, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, q,
		collection,
		doc.ID,
		string(doc.Data),
		doc.CreatedAt.UTC(),
		doc.UpdatedAt.UTC(),
	); err != nil {
		return err
	}
	s.log.Debug("mysql store created document", slog.String("collection", collection), slog.String("id", doc.ID))
	return nil
}

// Update merges fields into the stored JSON with JSON_MERGE_PATCH.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, updatedAt time.Time) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	const q = `
UPDATE session_documents
SET data = JSON_MERGE_PATCH(data, CAST(? AS JSON)), updated_at = ?
WHERE collection = ? AND id = ?;
`
	res, err := s.db.ExecContext(ctx, q, string(patch), updatedAt.UTC(), collection, id)
	if err != nil {
		return err
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

// Delete removes id from the collection.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM session_documents WHERE collection = ? AND id = ?;", collection, id)
	return err
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }
