package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	dbLatency     metric.Float64Histogram
	dbActiveConns metric.Int64UpDownCounter
)

// DB wraps a pgx pool with tracing and the tenant session binder.
// All application queries go through here; the migrate command uses its own
// admin connection and never touches this pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to the database with the low-privileged application role.
// Row-level security policies on tenant-scoped tables consult the
// app.tenant_ids parameter, set per transaction by WithTx and per acquired
// connection for plain pool queries.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	var err error

	meter := otel.Meter("postgres")
	dbLatency, err = meter.Float64Histogram("db.query.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("postgres: create db.query.latency instrument: %w", err)
	}
	dbActiveConns, err = meter.Int64UpDownCounter("db.active.connections", metric.WithUnit("connections"))
	if err != nil {
		return nil, fmt.Errorf("postgres: create db.active.connections instrument: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		if err := applySessionBinding(ctx, conn); err != nil {
			return false
		}
		dbActiveConns.Add(ctx, 1)
		return true
	}
	cfg.AfterRelease = func(conn *pgx.Conn) bool {
		dbActiveConns.Add(context.Background(), -1)
		return clearSessionBinding(conn) == nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Pool() *pgxpool.Pool { return db.pool }

func (db *DB) Close() { db.pool.Close() }

func (db *DB) Health(ctx context.Context) error { return db.pool.Ping(ctx) }

// QueryRow instruments a single-row query.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	ctx, span := otel.Tracer("postgres").Start(ctx, "db.query_row")
	defer func() {
		dbLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()
	return db.pool.QueryRow(ctx, sql, args...)
}

// Query instruments a multi-row query.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	ctx, span := otel.Tracer("postgres").Start(ctx, "db.query")
	defer func() {
		dbLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
	}
	return rows, err
}

// Exec instruments a statement execution.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	ctx, span := otel.Tracer("postgres").Start(ctx, "db.exec")
	defer func() {
		dbLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exec failed")
	}
	return tag, err
}

// WithTx runs fn inside a transaction. If the context carries a tenant
// binding (BindTenants), the binding is applied with SET LOCAL immediately
// after BEGIN so row-level security filters every statement in fn. Without
// a binding the parameter stays unset, which the policies treat as a
// trusted principal (daemons, migrations).
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	ctx, span := otel.Tracer("postgres").Start(ctx, "db.tx",
		oteltrace.WithAttributes(attribute.Bool("db.tenant_bound", TenantsBound(ctx))))
	defer span.End()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyTenantBinding(ctx, tx); err != nil {
		span.RecordError(err)
		return err
	}

	if err := fn(tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tx rolled back")
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}
