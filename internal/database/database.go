// Package database provides PostgreSQL connection pooling for kbstore.
//
// All persistent state (knowledge entries, provenance trackers, interaction
// logs) lives in a single PostgreSQL database with the pgvector extension.
// The pool registers pgvector types on every new connection so that
// vector-typed parameters and columns scan natively.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DBTX is the minimal query interface satisfied by *pgxpool.Pool, *pgx.Conn
// and pgx.Tx. Store implementations depend on this abstraction rather than
// the concrete pool, which keeps them testable and transaction-friendly.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool for the given DSN and verifies
// connectivity with a ping. pgvector types are registered on each
// connection via the AfterConnect hook.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
