// Package pgstore is the production StateStore implementation,
// backed by Postgres via lib/pq. Connection pooling, health checks,
// and embedded-migration support are adapted directly from the
// teacher's pkg/database/client.go; the repository-per-entity layer
// in pgstore.go follows pkg/database/repository_proof.go's CRUD shape.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/certen/statechain-entity/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client wraps a read pool and a write pool, following the
// read/write endpoint split SPEC_FULL.md §6 lists among recognized
// storage connection parameters. In the common single-instance
// deployment both URLs point at the same Postgres server.
type Client struct {
	write  *sql.DB
	read   *sql.DB
	logger *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger overrides the default component-prefixed logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient opens both pools and verifies connectivity.
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.DatabaseWriteURL == "" {
		return nil, fmt.Errorf("database write URL cannot be empty")
	}

	c := &Client{logger: log.New(log.Writer(), "[StateStore] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(c)
	}

	write, err := openPool(cfg, cfg.DatabaseWriteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open write pool: %w", err)
	}
	c.write = write

	readURL := cfg.DatabaseReadURL
	if readURL == "" {
		readURL = cfg.DatabaseWriteURL
	}
	read, err := openPool(cfg, readURL)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	c.read = read

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.write.PingContext(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ping write pool: %w", err)
	}

	c.logger.Printf("connected to state store (max_conns=%d, min_conns=%d)",
		cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	return c, nil
}

func openPool(cfg *config.Config, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMinConns)
	db.SetConnMaxIdleTime(time.Duration(cfg.DatabaseMaxIdleTime) * time.Second)
	db.SetConnMaxLifetime(time.Duration(cfg.DatabaseMaxLifetime) * time.Second)
	return db, nil
}

// Close closes both pools.
func (c *Client) Close() error {
	var errs []string
	if c.write != nil {
		if err := c.write.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.read != nil {
		if err := c.read.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing state store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Ping verifies the write pool is reachable, used by GET /readyz.
func (c *Client) Ping(ctx context.Context) error {
	return c.write.PingContext(ctx)
}

// ============================================================================
// MIGRATION SUPPORT (adapted from pkg/database/client.go)
// ============================================================================

// Migration is one embedded SQL file.
type Migration struct {
	Version  string
	Filename string
	SQL      string
}

// MigrateUp applies all pending migrations against the write pool.
func (c *Client) MigrateUp(ctx context.Context) error {
	c.logger.Println("running state store migrations...")

	migrations, err := c.getMigrations()
	if err != nil {
		return fmt.Errorf("failed to get migrations: %w", err)
	}

	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			c.logger.Printf("  skipping %s (already applied)", m.Version)
			continue
		}
		c.logger.Printf("  applying %s...", m.Version)
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
	}

	c.logger.Println("migrations complete")
	return nil
}

func (c *Client) getMigrations() ([]Migration, error) {
	var migrations []Migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		version := strings.TrimSuffix(d.Name(), ".sql")
		migrations = append(migrations, Migration{Version: version, Filename: d.Name(), SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (c *Client) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.write.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m Migration) error {
	tx, err := c.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	return tx.Commit()
}

// ============================================================================
// QUERY HELPERS
// ============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx so repository
// methods can run unchanged inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ querier = (*sql.DB)(nil)
	_ querier = (*sql.Tx)(nil)
)
