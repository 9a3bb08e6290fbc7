package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/mysql/*.sql sql/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the migration set and the bookkeeping DDL.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Run applies pending migrations found under internal/migrate/sql/<dialect>.
// Migrations must be named like 0001_description.sql and will be executed
// in lexicographic order. The entire file is executed as a single statement
// batch; a MySQL connection must allow multiStatements.
func Run(ctx context.Context, db *sql.DB, dialect Dialect, log *slog.Logger) error {
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		return err
	}

	if err := ensureMigrationsTable(ctx, db, dialect); err != nil {
		return err
	}

	files, err := Files(dialect)
	if err != nil {
		return err
	}

	applied, err := loadApplied(ctx, db)
	if err != nil {
		return err
	}

	for _, f := range files {
		base := path.Base(f)
		ver, err := parseVersion(base)
		if err != nil {
			return fmt.Errorf("invalid migration filename %q: %w", base, err)
		}
		if applied[ver] {
			log.Debug("migration already applied", slog.Int("version", ver), slog.String("file", base))
			continue
		}
		b, err := fs.ReadFile(migrationsFS, f)
		if err != nil {
			return err
		}
		log.Info("applying migration", slog.String("dialect", string(dialect)), slog.Int("version", ver), slog.String("file", base))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("applying %s: %w", base, err)
		}
		if err := recordApplied(ctx, db, ver); err != nil {
			return err
		}
	}
	return nil
}

// Files lists the embedded migrations of dialect in execution order.
func Files(dialect Dialect) ([]string, error) {
	switch dialect {
	case MySQL, SQLite:
	default:
		return nil, fmt.Errorf("unknown migration dialect %q", dialect)
	}
	files, err := fs.Glob(migrationsFS, "sql/"+string(dialect)+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// bookkeeping DDL per dialect; applied_at is stored as UTC.
var migrationsTable = map[Dialect]string{
	MySQL: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    BIGINT PRIMARY KEY,
	applied_at DATETIME(6) NOT NULL
) ENGINE=InnoDB`,
	SQLite: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`,
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB, dialect Dialect) error {
	if _, err := db.ExecContext(ctx, migrationsTable[dialect]); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// loadApplied returns the set of recorded migration versions.
func loadApplied(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := map[int]bool{}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func recordApplied(ctx context.Context, db *sql.DB, version int) error {
	const q = "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"
	if _, err := db.ExecContext(ctx, q, version, time.Now().UTC()); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	return nil
}

// parseVersion reads the numeric prefix of names like 0001_documents.sql.
func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || prefix == "" {
		return 0, fmt.Errorf("missing numeric prefix")
	}
	return strconv.Atoi(prefix)
}
