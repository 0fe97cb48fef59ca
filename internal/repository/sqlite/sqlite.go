// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go driver, so the binary needs no C
// toolchain. The schema lives in migrations/ and is applied on open with
// golang-migrate, which records the applied version in schema_migrations.
//
// The three collections (users, courses, enrollment) have no foreign keys:
// referential integrity is checked by the service layer before writes.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/josquinlarsen/tarpaulin/internal/repository"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// querier is the subset of *sql.DB and *sql.Tx the repositories need, so
// the same code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ repository.Store = (*DB)(nil)
	_ repository.Store = (*txStore)(nil)
)

// DB owns the connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and applies migrations.
// Use ":memory:" for a throwaway database in tests.
//
// The pool is capped at one connection: PRAGMAs are per connection, an
// in-memory database is private to the connection that created it, and
// SQLite serializes writers anyway. A consequence is that code running
// inside WithTx must only use the transaction's Store.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// newWithConn wraps an existing pool without running migrations.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	// m.Close would close conn through the driver, so it is not called.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Users() repository.UserRepository {
	return &UserDB{q: db.conn}
}

func (db *DB) Courses() repository.CourseRepository {
	return &CourseDB{q: db.conn}
}

func (db *DB) Enrollments() repository.EnrollmentRepository {
	return &EnrollmentDB{q: db.conn}
}

// WithTx runs fn inside a single transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// txStore is the Store handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (s *txStore) Users() repository.UserRepository {
	return &UserDB{q: s.tx}
}

func (s *txStore) Courses() repository.CourseRepository {
	return &CourseDB{q: s.tx}
}

func (s *txStore) Enrollments() repository.EnrollmentRepository {
	return &EnrollmentDB{q: s.tx}
}

// WithTx on a transaction joins it; the outermost WithTx commits.
func (s *txStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

// rowsAffected wraps RowsAffected errors; callers map zero rows to NotFound.
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
