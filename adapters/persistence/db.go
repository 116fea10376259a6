package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/minhtranq/folio/internal/config"
	"github.com/minhtranq/folio/pkg/apperror"
	"github.com/minhtranq/folio/pkg/logger"
)

// Pool is a bounded set of connections to one on-disk SQLite file.
// It is built once at startup and shared by every repository; Close
// logs a metrics summary and releases the underlying handle.
type Pool struct {
	db      *sql.DB
	timeout time.Duration
	metrics *Metrics
	logger  logger.Logger
}

// NewSQLitePool opens the database file, applies the durability pragmas,
// runs outstanding schema migrations and verifies the migrations table.
// A migration failure here is fatal: the caller must not serve requests
// against an unmigrated schema.
func NewSQLitePool(cfg config.Config, log logger.Logger) (*Pool, error) {
	if dir := filepath.Dir(cfg.DB.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(cfg.DB.Path, cfg.DB.UseWAL))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	maxConns := cfg.DB.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := verifyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := verifyMigrationsTable(db); err != nil {
		db.Close()
		return nil, err
	}

	timeout := cfg.DB.ConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	log.Info("SQLite database ready",
		zap.String("path", cfg.DB.Path),
		zap.Int("max_connections", maxConns),
		zap.Bool("wal", cfg.DB.UseWAL),
	)

	return &Pool{
		db:      db,
		timeout: timeout,
		metrics: NewMetrics(),
		logger:  log,
	}, nil
}

// buildDSN encodes the pragmas in the connection string so the driver
// applies them to every pooled connection: journal mode is a property
// of the file, but synchronous and foreign_keys are per-connection.
func buildDSN(path string, useWAL bool) string {
	base := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(path))
	if useWAL {
		return base + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	return base + "&_pragma=journal_mode(DELETE)&_pragma=synchronous(FULL)"
}

func verifyPragmas(db *sql.DB) error {
	// Cascade deletes on post_tags and post_metadata depend on foreign
	// keys, which SQLite leaves off unless asked.
	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("verify foreign_keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got %d)", fkEnabled)
	}
	return nil
}

func verifyMigrationsTable(db *sql.DB) error {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("verify schema_migrations: %w", err)
	}
	if n == 0 {
		return errors.New("schema_migrations table is missing")
	}
	return nil
}

// Get hands out a dedicated connection, waiting at most the configured
// acquisition timeout when the pool is exhausted. The returned
// connection goes back to the pool on Close.
func (p *Pool) Get(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperror.NewTimeout(
				fmt.Sprintf("no database connection available within %s", p.timeout), err)
		}
		return nil, apperror.NewInternal("acquire database connection", err)
	}
	return conn, nil
}

// Metrics returns the pool's shared metrics recorder.
func (p *Pool) Metrics() *Metrics {
	return p.metrics
}

// DB exposes the underlying handle for administrative statements.
func (p *Pool) DB() *sql.DB {
	return p.db
}

func (p *Pool) Close() error {
	p.metrics.LogSummary(p.logger)
	return p.db.Close()
}
