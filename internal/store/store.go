// Package store persists the whatscrm data model to PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors shared by all repositories.
var (
	ErrBusinessNotFound = errors.New("store: business not found")
	ErrCustomerNotFound = errors.New("store: customer not found")
	ErrLeadNotFound     = errors.New("store: lead not found")
	ErrQuoteNotFound    = errors.New("store: quote not found")
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles all repositories over one connection pool.
type Store struct {
	db DB
}

// New creates a store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Store{db: pool}
}

// NewWithDB allows injecting mocks for tests.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}
