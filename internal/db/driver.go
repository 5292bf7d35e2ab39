package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Type identifies which SQL dialect a connection speaks.
type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"

	driverSQLite   = "sqlite3"
	driverPostgres = "pgx"

	// SQLiteMemory is the DSN for an ephemeral in-memory database.
	SQLiteMemory = ":memory:"
)

// Conn bundles a database handle with its dialect so that callers can
// build portable queries.
type Conn struct {
	DB   *sql.DB
	Type Type
}

// OpenSQLite opens a SQLite database. Use db.SQLiteMemory (or an empty path)
// for an ephemeral database, or a file path for persistent storage.
func OpenSQLite(ctx context.Context, dbPath string) (*Conn, error) {
	if dbPath == "" {
		dbPath = SQLiteMemory
	}

	dsn := dbPath
	if dbPath != SQLiteMemory {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	}

	sqlDB, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	conn := &Conn{DB: sqlDB, Type: TypeSQLite}
	conn.configurePool()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return conn, nil
}

// OpenPostgres opens an external PostgreSQL database by URL.
func OpenPostgres(ctx context.Context, databaseURL string) (*Conn, error) {
	databaseURL = strings.TrimSpace(databaseURL)

	if !strings.HasPrefix(databaseURL, "postgresql://") && !strings.HasPrefix(databaseURL, "postgres://") {
		return nil, fmt.Errorf(
			"unsupported external database URL: %q. Currently supported: postgresql://",
			databaseURL)
	}

	sqlDB, err := sql.Open(driverPostgres, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	conn := &Conn{DB: sqlDB, Type: TypePostgres}
	conn.configurePool()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return conn, nil
}

// Placeholder returns the appropriate SQL placeholder for the dialect.
// SQLite uses ?, PostgreSQL uses $1, $2, etc.
func (c *Conn) Placeholder(index int) string {
	if c.Type == TypeSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", index)
}

// Close closes the underlying database handle.
func (c *Conn) Close() error {
	return c.DB.Close()
}

const (
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 5
	defaultConnMaxLifetimeSecs = 300
)

// configurePool sets connection pool settings appropriate for the dialect.
func (c *Conn) configurePool() {
	if c.Type == TypePostgres {
		c.DB.SetMaxOpenConns(defaultMaxOpenConns)
		c.DB.SetMaxIdleConns(defaultMaxIdleConns)
		c.DB.SetConnMaxLifetime(defaultConnMaxLifetimeSecs * time.Second)
	} else {
		// SQLite: single connection to avoid database locking issues
		c.DB.SetMaxOpenConns(1)
		c.DB.SetMaxIdleConns(1)
		c.DB.SetConnMaxLifetime(0)
	}
}
