// Package postgres implements the repositories on PostgreSQL. Conditional
// writes are single statements guarded by "WHERE id = ? AND version = ?";
// the active payment slot is a partial unique index.
package postgres

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lensmarket/api/internal/repositories"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry exposes Postgres-backed repositories sharing one pool.
type Registry struct {
	pool *pgxpool.Pool
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wraps an open pool. Close releases it.
func NewRegistry(pool *pgxpool.Pool) (*Registry, error) {
	if pool == nil {
		return nil, errors.New("postgres registry requires pool")
	}
	return &Registry{pool: pool}, nil
}

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("ping", r.pool.Ping(ctx))
}

func (r *Registry) Bookings() repositories.BookingRepository {
	return &bookingRepository{r.pool}
}

func (r *Registry) RetouchOrders() repositories.RetouchOrderRepository {
	return &retouchOrderRepository{r.pool}
}

func (r *Registry) Payments() repositories.PaymentRepository {
	return &paymentRepository{r.pool}
}

func (r *Registry) Photos() repositories.PhotoRepository {
	return &photoRepository{r.pool}
}

func (r *Registry) Portfolios() repositories.PortfolioRepository {
	return &portfolioRepository{r.pool}
}

func execInsert(ctx context.Context, q querier, op string, builder sq.InsertBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, query, args...)
	return wrapError(op, err)
}

// execVersioned runs a conditional UPDATE or DELETE. Zero affected rows means
// either the row vanished or its version moved on; a follow-up probe tells
// which.
func execVersioned(ctx context.Context, q querier, op, table, id string, expected int64, query string, args []any) error {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return wrapError(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	probe, probeArgs, err := psql.Select("1").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	var one int
	if err := q.QueryRow(ctx, probe, probeArgs...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(op, id)
		}
		return wrapError(op, err)
	}
	return versionConflict(op, id, expected)
}

func selectOne[T any](ctx context.Context, q querier, op, id string, builder sq.SelectBuilder, scan func(pgx.Row) (T, error)) (T, error) {
	var zero T
	query, args, err := builder.ToSql()
	if err != nil {
		return zero, err
	}
	value, err := scan(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, notFound(op, id)
	}
	if err != nil {
		return zero, wrapError(op, err)
	}
	return value, nil
}

func selectMany[T any](ctx context.Context, q querier, op string, builder sq.SelectBuilder, scan func(pgx.Row) (T, error)) ([]T, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		value, err := scan(rows)
		if err != nil {
			return nil, wrapError(op, err)
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}
	return out, nil
}

// updateVersioned builds "UPDATE table SET ... WHERE id = ? AND version = ?".
// columns[0] must be "id"; it is never rewritten.
func updateVersioned(table string, columns []string, values []any, id string, expected int64) (string, []any, error) {
	builder := psql.Update(table)
	for i, column := range columns {
		if column == "id" {
			continue
		}
		builder = builder.Set(column, values[i])
	}
	return builder.Where(sq.Eq{"id": id, "version": expected}).ToSql()
}

func deleteVersioned(table, id string, expected int64) (string, []any, error) {
	return psql.Delete(table).Where(sq.Eq{"id": id, "version": expected}).ToSql()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
