// Package postgres provides pgx connections as actor resources.
//
// A *pgx.Conn is not safe for concurrent use, which makes it a natural fit for
// actor.Spawn and sqlactor.Pool: it satisfies actor.Resource as is.
//
// Connection settings follow the standard PostgreSQL environment variables:
//   - DATABASE_URL: Full connection string (overrides all other variables)
//   - PGHOST: Database host (default: localhost)
//   - PGPORT: Database port (default: 5432)
//   - PGUSER: Database user (default: postgres)
//   - PGPASSWORD: Database password (default: postgres)
//   - PGDATABASE: Database name (default: postgres)
package postgres

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/yuku/sqlactor/actor"
)

var _ actor.Resource = (*pgx.Conn)(nil)

// Connect opens a connection and verifies it with a ping.
func Connect(ctx context.Context, connString string) (*pgx.Conn, error) {
	config, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	return ConnectConfig(ctx, config)
}

// ConnectConfig opens a connection with a copy of config and verifies it with
// a ping.
func ConnectConfig(ctx context.Context, config *pgx.ConnConfig) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, config.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// Opener returns an actor.Opener that connects with connString.
func Opener(connString string) actor.Opener[*pgx.Conn] {
	return func(ctx context.Context) (*pgx.Conn, error) {
		return Connect(ctx, connString)
	}
}

// OpenerConfig returns an actor.Opener that connects with config.
func OpenerConfig(config *pgx.ConnConfig) actor.Opener[*pgx.Conn] {
	return func(ctx context.Context) (*pgx.Conn, error) {
		return ConnectConfig(ctx, config)
	}
}

// ConnString builds a connection string from the environment.
func ConnString() string {
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		return connStr
	}

	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := getEnvOrDefault("PGPASSWORD", "postgres")
	database := getEnvOrDefault("PGDATABASE", "postgres")

	if password != "" {
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, password, host, port, database,
		)
	}
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=disable",
		user, host, port, database,
	)
}

// getEnvOrDefault retrieves an environment variable or returns a default value
// if the variable is not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
