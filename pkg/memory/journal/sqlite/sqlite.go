// Package sqlite provides a SQLite-backed memory.Journal.
//
// SQLite suits single-process deployments that want the experience log to
// survive restarts. Tags are stored as JSON in a TEXT column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guardianlabs/mindcore-go/pkg/memory"
)

// Journal is a SQLite-backed record log.
type Journal struct {
	db    *sql.DB
	table string
}

// Config configures the SQLite journal.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Table is the table name, defaulting to "memory_records".
	Table string
}

// New opens (and if needed creates) a SQLite journal.
func New(cfg *Config) (*Journal, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite journal: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite journal: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "memory_records"
	}

	j := &Journal{db: db, table: table}
	if err := j.initTable(context.Background()); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			description TEXT NOT NULL,
			importance REAL NOT NULL,
			kind TEXT NOT NULL,
			tags TEXT,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME NOT NULL
		)
	`, j.table)

	if _, err := j.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite journal: init table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner_created ON %s(owner, created_at)
	`, j.table, j.table)
	if _, err := j.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite journal: init index: %w", err)
	}

	return nil
}

// Append writes a new record.
func (j *Journal) Append(ctx context.Context, rec *memory.Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("sqlite journal: append: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner, description, importance, kind, tags, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.table)

	_, err = j.db.ExecContext(ctx, query,
		rec.ID,
		rec.Owner,
		rec.Description,
		rec.Importance,
		string(rec.Kind),
		string(tagsJSON),
		rec.CreatedAt,
		rec.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("sqlite journal: append: %w", err)
	}

	return nil
}

// Get returns the record with the given ID.
func (j *Journal) Get(ctx context.Context, id int64) (*memory.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, owner, description, importance, kind, tags, created_at, last_accessed
		FROM %s WHERE id = ?
	`, j.table)

	rec, err := scanRecord(j.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, memory.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: get: %w", err)
	}

	return rec, nil
}

// Recent returns up to n records newest-first.
func (j *Journal) Recent(ctx context.Context, owner string, n int) ([]*memory.Record, error) {
	where := ""
	args := []interface{}{}
	if owner != "" {
		where = "WHERE owner = ?"
		args = append(args, owner)
	}

	query := fmt.Sprintf(`
		SELECT id, owner, description, importance, kind, tags, created_at, last_accessed
		FROM %s %s ORDER BY created_at DESC, id DESC LIMIT ?
	`, j.table, where)
	args = append(args, n)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite journal: recent: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Touch advances a record's LastAccessed timestamp.
func (j *Journal) Touch(ctx context.Context, id int64, t time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_accessed = ? WHERE id = ? AND last_accessed < ?
	`, j.table)

	result, err := j.db.ExecContext(ctx, query, t, id, t)
	if err != nil {
		return fmt.Errorf("sqlite journal: touch: %w", err)
	}

	// Distinguish a stale touch (fine) from an unknown record.
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		if _, err := j.Get(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(scanner rowScanner) (*memory.Record, error) {
	var rec memory.Record
	var kind string
	var tagsStr sql.NullString

	err := scanner.Scan(
		&rec.ID,
		&rec.Owner,
		&rec.Description,
		&rec.Importance,
		&kind,
		&tagsStr,
		&rec.CreatedAt,
		&rec.LastAccessed,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = memory.Kind(kind)
	if tagsStr.Valid && tagsStr.String != "" {
		if err := json.Unmarshal([]byte(tagsStr.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}

	return &rec, nil
}
