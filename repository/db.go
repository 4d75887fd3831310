package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
// This allows Repository methods to work with either a connection pool
// or a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

// Repository provides database access for positions and cached quotes
type Repository struct {
	pool    *sqlx.DB
	db      DBTX     // The actual executor (pool or transaction)
	tx      *sqlx.Tx // non-nil inside Atomic
	dialect dialect
	metrics *observability.Metrics
}

// NewRepository opens the database named by dsn and migrates it.
// A postgres:// or postgresql:// URL selects PostgreSQL; anything else is a SQLite file path.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	d, driverDSN, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := sqlx.Open(d.driver, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", d.name, err)
	}
	if d.name == dialectSQLite {
		// one writer; all statements of a transaction share the connection
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	r := &Repository{pool: pool, db: pool, dialect: d, metrics: observability.GetMetrics()}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	observability.Info("database opened", "dialect", d.name)
	return r, nil
}

func resolveDSN(dsn string) (dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return dialect{}, "", fmt.Errorf("database location is empty")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect, dsn, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == ":memory:" {
		return sqliteDialect, ":memory:", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dialect{}, "", fmt.Errorf("unable to create database directory: %w", err)
		}
	}
	return sqliteDialect, path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", nil
}

// WithTx returns a new Repository that uses the given transaction.
func (r *Repository) WithTx(tx *sqlx.Tx) *Repository {
	return &Repository{pool: r.pool, db: tx, tx: tx, dialect: r.dialect, metrics: r.metrics}
}

// BeginTx starts a new transaction and returns a Repository that uses it.
// The caller is responsible for calling Commit() or Rollback() on the transaction.
func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, *Repository, error) {
	tx, err := r.pool.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, models.NewStorageError("failed to begin transaction", err)
	}
	return tx, r.WithTx(tx), nil
}

// inTx runs fn inside a transaction, joining the current one if there is one.
func (r *Repository) inTx(ctx context.Context, fn func(*Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return models.NewStorageError("failed to commit transaction", err)
	}
	return nil
}

// observe records a query and wraps a failure as a storage error.
func (r *Repository) observe(op, table string, start time.Time, err error) error {
	r.metrics.RecordDBQuery(op, table, time.Since(start))
	if err == nil {
		return nil
	}
	r.metrics.RecordDBError(op, table)
	return models.NewStorageError(fmt.Sprintf("failed to %s %s", op, table), err)
}

// Close closes the database connection pool
func (r *Repository) Close() {
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			observability.WithError(err).Warn("failed to close database")
		}
	}
}

// Health checks if the database connection is healthy
func (r *Repository) Health(ctx context.Context) error {
	return r.pool.PingContext(ctx)
}

// Dialect returns "sqlite" or "postgres".
func (r *Repository) Dialect() string {
	return r.dialect.name
}
