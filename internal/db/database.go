// Package db provides PostgreSQL persistence for the relay: accounts,
// sessions, session messages, machines, and pairing requests (§3, §6).
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration. The relay takes a single DSN
// (§6: DATABASE_URL) rather than discrete host/port/user fields.
type Config struct {
	DSN string
}

// Database represents the database connection.
type Database struct {
	db *sql.DB
}

// validateConfig checks that DATABASE_URL parses as a well-formed
// connection string before it's handed to the driver.
func validateConfig(config Config) error {
	if config.DSN == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	u, err := url.Parse(config.DSN)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("invalid DATABASE_URL: scheme must be postgres:// or postgresql://, got %q", u.Scheme)
	}
	return nil
}

// NewDatabase creates a new database connection with connection pooling.
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabaseForTesting creates a Database from an existing sql.DB
// connection. Intended only for tests, to allow dependency injection
// with sqlmock.
func NewDatabaseForTesting(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrate runs the relay's schema migrations. Idempotent: safe to run
// on every startup.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(255) PRIMARY KEY,
			public_key VARCHAR(255) UNIQUE NOT NULL,
			seq BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_public_key ON accounts(public_key)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(255) PRIMARY KEY,
			account_id VARCHAR(255) NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			tag VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL,
			metadata_version INT NOT NULL DEFAULT 1,
			agent_state TEXT,
			agent_state_version INT NOT NULL DEFAULT 0,
			data_encryption_key TEXT,
			active BOOLEAN NOT NULL DEFAULT true,
			last_active_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(account_id, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account_updated ON sessions(account_id, updated_at DESC)`,

		`CREATE TABLE IF NOT EXISTS session_messages (
			id VARCHAR(255) PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			content TEXT NOT NULL,
			local_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, local_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session_id ON session_messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session_created ON session_messages(session_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS machines (
			id VARCHAR(255) NOT NULL,
			account_id VARCHAR(255) NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			metadata TEXT NOT NULL,
			metadata_version INT NOT NULL DEFAULT 1,
			daemon_state TEXT,
			daemon_state_version INT NOT NULL DEFAULT 0,
			data_encryption_key TEXT,
			active BOOLEAN NOT NULL DEFAULT true,
			last_active_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_machines_account_id ON machines(account_id)`,

		`CREATE TABLE IF NOT EXISTS account_auth_requests (
			id VARCHAR(255) PRIMARY KEY,
			public_key VARCHAR(255) UNIQUE NOT NULL,
			response TEXT,
			response_account_id VARCHAR(255) REFERENCES accounts(id) ON DELETE SET NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_account_auth_requests_public_key ON account_auth_requests(public_key)`,
		`CREATE INDEX IF NOT EXISTS idx_account_auth_requests_created_at ON account_auth_requests(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nquery: %s", err, migration)
		}
	}

	return nil
}
