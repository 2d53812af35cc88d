// Package storage provides the Postgres persistence backend: the task
// queue, the usage ledger, and the options table, over sqlx.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and provides health checks.
type DB struct {
	conn *sqlx.DB

	optionCache *LRUCache
}

// DBConfig holds database configuration.
type DBConfig struct {
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Option cache settings
	OptionCacheSize int
	OptionCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration.
func DefaultDBConfig(url string) DBConfig {
	return DBConfig{
		URL: url,

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		OptionCacheSize: 500,
		OptionCacheTTL:  5 * time.Minute,
	}
}

// NewDB connects to Postgres and configures the pool.
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{
		conn:        conn,
		optionCache: NewLRUCache(cfg.OptionCacheSize, cfg.OptionCacheTTL),
	}, nil
}

// Close closes the database connection and clears caches.
func (db *DB) Close() error {
	db.optionCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health verifies the database answers a trivial query.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection for custom queries not
// covered by repositories.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// NewTaskRepository creates a new task repository.
func (db *DB) NewTaskRepository() *TaskRepository {
	return NewTaskRepository(db)
}

// NewUsageRepository creates a new usage repository capped at
// maxRecords non-system rows.
func (db *DB) NewUsageRepository(maxRecords int) *UsageRepository {
	return NewUsageRepository(db, maxRecords)
}

// NewOptionRepository creates a new option repository.
func (db *DB) NewOptionRepository() *OptionRepository {
	return NewOptionRepository(db)
}
