package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the rapport SQLite database.
type DB struct {
	*sql.DB
	Path string

	log *zap.Logger
}

// Option configures Open and OpenMemory.
type Option func(*DB)

// WithLogger routes schema manager output to l.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) { db.log = l }
}

// DefaultDBPath returns the default database path: ~/.rapport/rapport.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rapport", "rapport.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and brings the schema to the current version.
func Open(path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Connection-scoped pragmas go through the DSN so every pooled
	// connection gets them, not just the first one.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)

	return setup(&DB{DB: sqlDB, Path: path}, opts)
}

// OpenMemory opens an in-memory SQLite database for testing.
// Each connection to ":memory:" is its own database, so the pool is pinned
// to a single connection and the pragmas below apply to it.
func OpenMemory(opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return setup(&DB{DB: sqlDB, Path: ":memory:"}, opts)
}

func setup(db *DB, opts []Option) (*DB, error) {
	db.log = zap.NewNop()
	for _, o := range opts {
		o(db)
	}
	if err := db.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs record operations against the pool or against one
// immediate transaction (see InTx).
type Queries struct {
	q queryer
}

// Queries returns record operations bound to the connection pool. Each call
// runs in its own implicit transaction.
func (db *DB) Queries() *Queries {
	return &Queries{q: db.DB}
}

// InTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. The write lock is taken up front, so a read-modify-write in fn
// cannot be interleaved with another writer. fn's error rolls the
// transaction back; otherwise it commits.
//
// Once started the transaction runs to completion even if ctx is cancelled.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	ctx = context.WithoutCancel(ctx)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(&Queries{q: conn}); err != nil {
		db.abort(ctx, conn)
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		db.abort(ctx, conn)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// abort rolls back the transaction on conn. A connection that may still be
// inside a transaction is closed instead of going back to the pool.
func (db *DB) abort(ctx context.Context, conn *sql.Conn) {
	_, err := conn.ExecContext(ctx, "ROLLBACK")
	if err == nil {
		return
	}
	db.log.Error("rollback failed", zap.Error(err))

	// BEGIN only succeeds in autocommit mode.
	if _, err := conn.ExecContext(ctx, "BEGIN"); err == nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return
	}
	db.log.Warn("discarding connection stuck in a transaction")
	conn.Raw(func(any) error { return driver.ErrBadConn })
}
