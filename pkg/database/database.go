package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DB wraps sqlx.DB with additional functionality
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &DB{
		DB:     db,
		logger: log,
	}, nil
}

// NewWithDSN creates a new database connection with a DSN string
func NewWithDSN(dsn string, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return Wrap(db, log), nil
}

// Wrap adopts an existing connection pool
func Wrap(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{
		DB:     db,
		logger: log,
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

type txKey struct{}

// TxOption configures a transaction started by RunInTx
type TxOption func(*txOptions)

type txOptions struct {
	lockTimeout time.Duration
}

// WithLockTimeout bounds how long any statement in the transaction waits
// for a row lock. Zero keeps the server default.
func WithLockTimeout(d time.Duration) TxOption {
	return func(o *txOptions) {
		o.lockTimeout = d
	}
}

// RunInTx runs fn inside a transaction carried by the context passed to it.
// Repositories obtain the transaction through Querier. When ctx already
// carries a transaction fn joins it and options are ignored.
// Errors coming out of fn or commit are translated with MapError.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return MapError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if o.lockTimeout > 0 {
		// set_config(..., true) is SET LOCAL with a bindable value
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, formatPGDuration(o.lockTimeout)); err != nil {
			db.rollback(tx)
			return MapError(fmt.Errorf("failed to set lock_timeout: %w", err))
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		db.rollback(tx)
		return MapError(err)
	}

	if err := tx.Commit(); err != nil {
		return MapError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (db *DB) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && db.logger != nil {
		db.logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}

// Querier returns the transaction carried by ctx, or the pool
func (db *DB) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

// InTx reports whether ctx carries a transaction
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}

func formatPGDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
