// Package database archives promptbench runs in SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// gooseMu guards goose's package-level base FS and dialect.
var gooseMu sync.Mutex

// DB represents a database connection with migration support.
type DB struct {
	*sql.DB
	driver   string
	mu       sync.Mutex
	migrated bool
}

// Config holds database configuration.
type Config struct {
	Driver string `json:"driver"` // "sqlite" or "postgres"
	DSN    string `json:"dsn"`    // SQLite file path or PostgreSQL connection string
}

// New opens and pings a database connection.
func New(ctx context.Context, cfg Config) (*DB, error) {
	var driver string
	connStr := cfg.DSN

	switch cfg.Driver {
	case "postgres", "postgresql":
		driver = "postgres"
	case "sqlite", "sqlite3":
		driver = "sqlite3"
		if connStr == "" {
			connStr = "promptbench.db"
		}
		if dir := filepath.Dir(connStr); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(connStr, "?") {
			connStr += "?_foreign_keys=on"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	if connStr == "" {
		return nil, fmt.Errorf("database DSN is required for %s", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: driver}, nil
}

// Driver returns the database driver name.
func (d *DB) Driver() string {
	return d.driver
}

// Migrate runs all pending database migrations using goose.
func (d *DB) Migrate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.migrated {
		return nil
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(d.driver); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, d.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.migrated = true
	return nil
}

// rebind rewrites ? placeholders into the driver's bind syntax.
func (d *DB) rebind(query string) string {
	if d.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
