package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/yuku/sqlactor/postgres"
	"github.com/yuku/sqlactor/sqlite"
)

// TempSQLitePath returns a database path in a directory removed after the test.
func TempSQLitePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// MustSeedSQLite creates table kv at path holding the given pairs.
func MustSeedSQLite(t *testing.T, path string, pairs map[string]string) {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)"); err != nil {
		t.Fatalf("failed to create kv table: %v", err)
	}
	for k, v := range pairs {
		if _, err := conn.Exec(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", k, v); err != nil {
			t.Fatalf("failed to seed kv table: %v", err)
		}
	}
}

// PostgresConnString returns the connection string for PostgreSQL tests, or
// skips the test when DATABASE_URL is not set.
func PostgresConnString(t *testing.T) string {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL is not set")
	}
	return postgres.ConnString()
}

// MustGetConnectionWithCleanup returns a PostgreSQL connection closed after
// the test.
func MustGetConnectionWithCleanup(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := postgres.Connect(ctx, PostgresConnString(t))
	if err != nil {
		t.Fatalf("failed to get database connection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}
