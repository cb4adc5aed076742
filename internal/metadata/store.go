package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL / MariaDB
	_ "github.com/lib/pq"              // PostgreSQL
	"github.com/systmms/apikeyper/internal/logging"
	_ "modernc.org/sqlite" // SQLite, pure Go
)

// StorageError wraps any failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("metadata store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the apikeys table behind a database/sql connection.
type Store struct {
	db      *sql.DB
	dialect *dialect
	logger  *logging.Logger
}

// Open connects to the database and creates the apikeys table if needed.
// For sqlite, dsn is a file path and its parent directory is created.
func Open(ctx context.Context, driver, dsn string, logger *logging.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	if d.name == "sqlite" {
		dsn, err = sqliteDSN(dsn)
		if err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if d.name == "sqlite" {
		// one writer at a time avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, d.name, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection, creating the table if needed. The
// store takes ownership of db.
func New(ctx context.Context, db *sql.DB, driver string, logger *logging.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Store{db: db, dialect: d, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Metadata store ready (%s)", d.name)
	return s, nil
}

func sqliteDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}

// Driver returns the dialect name in use.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddKey inserts r or fully replaces the row with the same service and key name.
func (s *Store) AddKey(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsert,
		r.Service,
		r.KeyName,
		FormatTime(r.Added),
		r.Key,
		r.Status,
		formatOptionalTime(r.RevokedOn),
	)
	if err != nil {
		return &StorageError{Op: "add", Err: err}
	}
	s.logger.Debug("Stored metadata for %s/%s", r.Service, r.KeyName)
	return nil
}

// GetKey returns the row for service and keyName, or the most recently added
// row for service when keyName is empty. It returns nil, nil when no row
// matches.
func (s *Store) GetKey(ctx context.Context, service, keyName string, onlyActive bool) (*Record, error) {
	query := "SELECT " + s.dialect.columns() + " FROM apikeys WHERE service = ?"
	args := []interface{}{service}
	if keyName != "" {
		query += " AND key_name = ?"
		args = append(args, keyName)
	}
	if onlyActive {
		query += " AND status = ?"
		args = append(args, StatusActive)
	}
	if keyName == "" {
		query += " ORDER BY added DESC LIMIT 1"
	}

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return r, nil
}

// DeleteKey removes one row, or every row of service when keyName is
// empty. It returns the number of rows removed.
func (s *Store) DeleteKey(ctx context.Context, service, keyName string) (int64, error) {
	query := "DELETE FROM apikeys WHERE service = ?"
	args := []interface{}{service}
	if keyName != "" {
		query += " AND key_name = ?"
		args = append(args, keyName)
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, &StorageError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "delete", Err: err}
	}
	return n, nil
}

// ListKeysForService returns every row of service, oldest first.
func (s *Store) ListKeysForService(ctx context.Context, service string) ([]Record, error) {
	query := "SELECT " + s.dialect.columns() + " FROM apikeys WHERE service = ? ORDER BY added, key_name"
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), service)
	if err != nil {
		return nil, &StorageError{Op: "list keys", Err: err}
	}
	records, err := collect(rows)
	if err != nil {
		return nil, &StorageError{Op: "list keys", Err: err}
	}
	return records, nil
}

// ListServices returns the distinct service names, sorted.
func (s *Store) ListServices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT service FROM apikeys ORDER BY service")
	if err != nil {
		return nil, &StorageError{Op: "list services", Err: err}
	}
	defer rows.Close()

	var services []string
	for rows.Next() {
		var service string
		if err := rows.Scan(&service); err != nil {
			return nil, &StorageError{Op: "list services", Err: err}
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list services", Err: err}
	}
	return services, nil
}

// ServiceRecords groups the records of one service.
type ServiceRecords struct {
	Service string
	Records []Record
}

// Snapshot is the whole table grouped by service, in service order.
type Snapshot []ServiceRecords

// Snapshot reads every row in one query.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	query := "SELECT " + s.dialect.columns() + " FROM apikeys ORDER BY service, added, key_name"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &StorageError{Op: "snapshot", Err: err}
	}
	records, err := collect(rows)
	if err != nil {
		return nil, &StorageError{Op: "snapshot", Err: err}
	}

	var snap Snapshot
	for _, r := range records {
		if n := len(snap); n == 0 || snap[n-1].Service != r.Service {
			snap = append(snap, ServiceRecords{Service: r.Service})
		}
		last := &snap[len(snap)-1]
		last.Records = append(last.Records, r)
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord tolerates NULLs in every column except the primary key, since
// older databases declared none of them NOT NULL.
func scanRecord(sc scanner) (*Record, error) {
	var (
		r         Record
		added     sql.NullString
		key       sql.NullString
		status    sql.NullString
		revokedOn sql.NullString
	)
	if err := sc.Scan(&r.Service, &r.KeyName, &added, &key, &status, &revokedOn); err != nil {
		return nil, err
	}

	r.Key = key.String
	r.Status = status.String

	if added.Valid && added.String != "" {
		t, err := ParseTime(added.String)
		if err != nil {
			return nil, fmt.Errorf("row %s/%s: added: %w", r.Service, r.KeyName, err)
		}
		r.Added = t
	}
	if revokedOn.Valid && revokedOn.String != "" {
		t, err := ParseTime(revokedOn.String)
		if err != nil {
			return nil, fmt.Errorf("row %s/%s: revoked_on: %w", r.Service, r.KeyName, err)
		}
		r.RevokedOn = &t
	}
	return &r, nil
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}
