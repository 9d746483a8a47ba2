// Package postgres provides a PostgreSQL-backed memory.Journal for
// deployments where several processes share one experience log.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/guardianlabs/mindcore-go/pkg/memory"
)

// Journal is a PostgreSQL-backed record log.
type Journal struct {
	db    *sql.DB
	table string
}

var _ memory.Journal = (*Journal)(nil)

// Config configures the PostgreSQL journal.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// Table is the table name, defaulting to "memory_records".
	Table string

	// SSLMode defaults to "disable".
	SSLMode string
}

// New opens a PostgreSQL journal, creating the table if needed.
func New(cfg *Config) (*Journal, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres journal: %w", err)
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
			id BIGINT PRIMARY KEY,
			owner TEXT NOT NULL,
			description TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL,
			kind TEXT NOT NULL,
			tags JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed TIMESTAMPTZ NOT NULL
		)
	`, j.table)

	if _, err := j.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres journal: init table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner_created ON %s(owner, created_at DESC)
	`, j.table, j.table)
	if _, err := j.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres journal: init index: %w", err)
	}

	return nil
}

// Append writes a new record.
func (j *Journal) Append(ctx context.Context, rec *memory.Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("postgres journal: append: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner, description, importance, kind, tags, created_at, last_accessed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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
		return fmt.Errorf("postgres journal: append: %w", err)
	}

	return nil
}

// Get returns the record with the given ID.
func (j *Journal) Get(ctx context.Context, id int64) (*memory.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, owner, description, importance, kind, tags, created_at, last_accessed
		FROM %s WHERE id = $1
	`, j.table)

	rec, err := scanRecord(j.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, memory.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres journal: get: %w", err)
	}

	return rec, nil
}

// Recent returns up to n records newest-first.
func (j *Journal) Recent(ctx context.Context, owner string, n int) ([]*memory.Record, error) {
	where := ""
	args := []interface{}{}
	arg := 1
	if owner != "" {
		where = fmt.Sprintf("WHERE owner = $%d", arg)
		args = append(args, owner)
		arg++
	}

	query := fmt.Sprintf(`
		SELECT id, owner, description, importance, kind, tags, created_at, last_accessed
		FROM %s %s ORDER BY created_at DESC, id DESC LIMIT $%d
	`, j.table, where, arg)
	args = append(args, n)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres journal: recent: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Touch advances a record's LastAccessed timestamp.
func (j *Journal) Touch(ctx context.Context, id int64, t time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_accessed = $1 WHERE id = $2 AND last_accessed < $1
	`, j.table)

	result, err := j.db.ExecContext(ctx, query, t, id)
	if err != nil {
		return fmt.Errorf("postgres journal: touch: %w", err)
	}

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
