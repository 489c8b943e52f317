package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/lensmarket/api/internal/domain"
)

const paymentsTable = "payments"

var paymentColumns = []string{
	"id", "user_id", "order_type", "order_id", "amount", "currency", "method",
	"status", "transaction_id", "version", "created_at", "updated_at",
}

func paymentValues(p domain.Payment) []any {
	return []any{
		p.ID, p.UserID, string(p.Order.Type), p.Order.ID, p.Amount, p.Currency, p.Method,
		string(p.Status), p.TransactionID, p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p         domain.Payment
		orderType string
		status    string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &orderType, &p.Order.ID, &p.Amount, &p.Currency, &p.Method,
		&status, &p.TransactionID, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}
	p.Order.Type = domain.OrderType(orderType)
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// paymentRepository leans on payments_active_order_idx for the active slot:
// a second pending or completed row for the same order violates the index and
// surfaces as repositories.ErrActivePaymentExists.
type paymentRepository struct {
	pool *pgxpool.Pool
}

func (r *paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return execInsert(ctx, r.pool, "payments.insert",
		psql.Insert(paymentsTable).Columns(paymentColumns...).Values(paymentValues(payment)...))
}

func (r *paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	return selectOne(ctx, r.pool, "payments.get", paymentID,
		psql.Select(paymentColumns...).From(paymentsTable).Where(sq.Eq{"id": paymentID}), scanPayment)
}

func (r *paymentRepository) Update(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	next := payment
	next.Version = payment.Version + 1
	query, args, err := updateVersioned(paymentsTable, paymentColumns, paymentValues(next), payment.ID, payment.Version)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := execVersioned(ctx, r.pool, "payments.update", paymentsTable, payment.ID, payment.Version, query, args); err != nil {
		return domain.Payment{}, err
	}
	return next, nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return selectMany(ctx, r.pool, "payments.listByUser",
		psql.Select(paymentColumns...).From(paymentsTable).
			Where(sq.Eq{"user_id": userID}).
			OrderBy("created_at", "id"),
		scanPayment)
}

func (r *paymentRepository) ListByOrder(ctx context.Context, ref domain.OrderRef) ([]domain.Payment, error) {
	return selectMany(ctx, r.pool, "payments.listByOrder",
		psql.Select(paymentColumns...).From(paymentsTable).
			Where(sq.Eq{"order_type": string(ref.Type), "order_id": ref.ID}).
			OrderBy("created_at", "id"),
		scanPayment)
}
