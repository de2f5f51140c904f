// Package store is the durable record of tenants, channels, templates,
// sessions, participants, and the notification schedule. Methods take an
// explicit Querier so the same query code runs against the pool or inside a
// caller-owned transaction; tenant isolation is applied by the transaction
// wrapper, never by SQL text here.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gamenight/scheduler/infra/postgres"
)

// Querier is satisfied by both the pooled DB wrapper and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *postgres.DB
}

func New(db *postgres.DB) *Store {
	return &Store{db: db}
}

// Q returns the pool-backed querier for single-statement reads.
func (s *Store) Q() Querier { return s.db }

// WithTx runs fn in a transaction, honoring any tenant binding on ctx.
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

func (s *Store) Health(ctx context.Context) error { return s.db.Health(ctx) }

// int32s converts offset minutes for the integer[] columns.
func int32s(in []int) []int32 {
	if in == nil {
		return nil
	}
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func ints(in []int32) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
