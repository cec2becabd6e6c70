// Package database opens the SQLite databases (orders, rates, client_data),
// applies their embedded schemas and provides transaction helpers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DatabaseProfile selects durability and pool settings
type DatabaseProfile string

const (
	// ProfileLedger - orders and payments; full fsync, no auto-vacuum surprises
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache - upstream responses that can be refetched
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard - rate snapshots and everything else
	ProfileStandard DatabaseProfile = "standard"
)

type profileSettings struct {
	pragmas      []string
	maxOpen      int
	maxIdle      int
	connLifetime time.Duration
}

var profiles = map[DatabaseProfile]profileSettings{
	ProfileLedger: {
		pragmas: []string{
			"journal_mode(WAL)",
			"synchronous(FULL)",
			"foreign_keys(1)",
			"busy_timeout(5000)",
			"auto_vacuum(INCREMENTAL)",
		},
		maxOpen:      10,
		maxIdle:      2,
		connLifetime: time.Hour,
	},
	ProfileStandard: {
		pragmas: []string{
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(1)",
			"busy_timeout(5000)",
		},
		maxOpen:      10,
		maxIdle:      2,
		connLifetime: time.Hour,
	},
	ProfileCache: {
		pragmas: []string{
			"journal_mode(WAL)",
			"synchronous(OFF)",
			"busy_timeout(2000)",
			"temp_store(MEMORY)",
		},
		maxOpen:      4,
		maxIdle:      1,
		connLifetime: 30 * time.Minute,
	},
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // also selects the schema: orders, rates, client_data
}

// DB is one SQLite database and the profile it was opened with
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// New opens the database at cfg.Path, creating its directory if needed.
// Paths starting with "file:" are passed to the driver untouched.
func New(cfg Config) (*DB, error) {
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}
	settings, ok := profiles[cfg.Profile]
	if !ok {
		return nil, fmt.Errorf("unknown database profile %q", cfg.Profile)
	}

	if !strings.HasPrefix(cfg.Path, "file:") {
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path %s: %w", cfg.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = abs
	}

	conn, err := sql.Open("sqlite", dsn(cfg.Path, settings.pragmas))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}
	conn.SetMaxOpenConns(settings.maxOpen)
	conn.SetMaxIdleConns(settings.maxIdle)
	conn.SetConnMaxLifetime(settings.connLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
	}, nil
}

// dsn appends the profile's pragmas in the form the modernc driver applies
// to every new connection.
func dsn(path string, pragmas []string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying pool for repositories
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name
func (db *DB) Name() string {
	return db.name
}

// Profile returns the profile the database was opened with
func (db *DB) Profile() DatabaseProfile {
	return db.profile
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// QuickCheck pings the database
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// IntegrityCheck runs PRAGMA quick_check. Slow on large files; meant for
// manual diagnostics, not request paths.
func (db *DB) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check on %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check on %s: %s", db.name, result)
	}
	return nil
}

// Usage is the on-disk footprint of a database
type Usage struct {
	FileBytes int64
	WALBytes  int64
	Pages     int64
	PageSize  int64
	FreePages int64
}

// TotalMB is file plus WAL in megabytes
func (u Usage) TotalMB() float64 {
	return float64(u.FileBytes+u.WALBytes) / 1024 / 1024
}

// Usage reports file sizes and page counts
func (db *DB) Usage(ctx context.Context) (*Usage, error) {
	u := &Usage{}
	if fi, err := os.Stat(db.path); err == nil {
		u.FileBytes = fi.Size()
	}
	if fi, err := os.Stat(db.path + "-wal"); err == nil {
		u.WALBytes = fi.Size()
	}

	for pragma, dst := range map[string]*int64{
		"page_count":     &u.Pages,
		"page_size":      &u.PageSize,
		"freelist_count": &u.FreePages,
	} {
		if err := db.conn.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(dst); err != nil {
			return nil, fmt.Errorf("failed to read %s of %s: %w", pragma, db.name, err)
		}
	}
	return u, nil
}
