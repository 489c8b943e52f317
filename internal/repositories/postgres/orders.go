package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/lensmarket/api/internal/domain"
)

const (
	bookingsTable      = "bookings"
	retouchOrdersTable = "retouch_orders"
)

var bookingColumns = []string{
	"id", "client_id", "photographer_id", "booking_date", "status",
	"initial_amount", "final_amount", "currency", "delivered_public", "services",
	"paid", "paid_at", "payment_id",
	"version", "created_at", "updated_at", "completed_at", "cancelled_at",
}

// serviceRow is the JSONB element stored in bookings.services.
type serviceRow struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	AddedAt     time.Time `json:"addedAt"`
}

func encodeServices(services []domain.BookingService) []serviceRow {
	rows := make([]serviceRow, 0, len(services))
	for _, svc := range services {
		rows = append(rows, serviceRow{Name: svc.Name, Description: svc.Description, Price: svc.Price, AddedAt: svc.AddedAt.UTC()})
	}
	return rows
}

func decodeServices(rows []serviceRow) []domain.BookingService {
	if len(rows) == 0 {
		return nil
	}
	services := make([]domain.BookingService, 0, len(rows))
	for _, row := range rows {
		services = append(services, domain.BookingService{Name: row.Name, Description: row.Description, Price: row.Price, AddedAt: row.AddedAt.UTC()})
	}
	return services
}

func bookingValues(b domain.Booking) []any {
	return []any{
		b.ID, b.ClientID, b.PhotographerID, b.BookingDate.UTC(), string(b.Status),
		b.InitialAmount, b.FinalAmount, b.Currency, b.DeliveredPublic, encodeServices(b.Services),
		b.Payment.Paid, utcPtr(b.Payment.PaidAt), b.Payment.PaymentID,
		b.Version, b.CreatedAt.UTC(), b.UpdatedAt.UTC(), utcPtr(b.CompletedAt), utcPtr(b.CancelledAt),
	}
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b        domain.Booking
		status   string
		services []serviceRow
	)
	err := row.Scan(
		&b.ID, &b.ClientID, &b.PhotographerID, &b.BookingDate, &status,
		&b.InitialAmount, &b.FinalAmount, &b.Currency, &b.DeliveredPublic, &services,
		&b.Payment.Paid, &b.Payment.PaidAt, &b.Payment.PaymentID,
		&b.Version, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt, &b.CancelledAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.OrderStatus(status)
	b.Services = decodeServices(services)
	b.BookingDate = b.BookingDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	b.Payment.PaidAt = utcPtr(b.Payment.PaidAt)
	b.CompletedAt = utcPtr(b.CompletedAt)
	b.CancelledAt = utcPtr(b.CancelledAt)
	return b, nil
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func (r *bookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	return execInsert(ctx, r.pool, "bookings.insert",
		psql.Insert(bookingsTable).Columns(bookingColumns...).Values(bookingValues(booking)...))
}

func (r *bookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	return selectOne(ctx, r.pool, "bookings.get", bookingID,
		psql.Select(bookingColumns...).From(bookingsTable).Where(sq.Eq{"id": bookingID}), scanBooking)
}

func (r *bookingRepository) Update(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	next := booking
	next.Version = booking.Version + 1
	query, args, err := updateVersioned(bookingsTable, bookingColumns, bookingValues(next), booking.ID, booking.Version)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := execVersioned(ctx, r.pool, "bookings.update", bookingsTable, booking.ID, booking.Version, query, args); err != nil {
		return domain.Booking{}, err
	}
	return next, nil
}

var retouchColumns = []string{
	"id", "client_id", "retoucher_id", "source_photo_id", "retouched_photo_id", "status",
	"price", "currency", "requirements",
	"paid", "paid_at", "payment_id",
	"version", "created_at", "updated_at", "completed_at", "cancelled_at",
}

func retouchValues(o domain.RetouchOrder) []any {
	return []any{
		o.ID, o.ClientID, o.RetoucherID, o.SourcePhotoID, o.RetouchedPhotoID, string(o.Status),
		o.Price, o.Currency, o.Requirements,
		o.Payment.Paid, utcPtr(o.Payment.PaidAt), o.Payment.PaymentID,
		o.Version, o.CreatedAt.UTC(), o.UpdatedAt.UTC(), utcPtr(o.CompletedAt), utcPtr(o.CancelledAt),
	}
}

func scanRetouchOrder(row pgx.Row) (domain.RetouchOrder, error) {
	var (
		o      domain.RetouchOrder
		status string
	)
	err := row.Scan(
		&o.ID, &o.ClientID, &o.RetoucherID, &o.SourcePhotoID, &o.RetouchedPhotoID, &status,
		&o.Price, &o.Currency, &o.Requirements,
		&o.Payment.Paid, &o.Payment.PaidAt, &o.Payment.PaymentID,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return domain.RetouchOrder{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.Payment.PaidAt = utcPtr(o.Payment.PaidAt)
	o.CompletedAt = utcPtr(o.CompletedAt)
	o.CancelledAt = utcPtr(o.CancelledAt)
	return o, nil
}

type retouchOrderRepository struct {
	pool *pgxpool.Pool
}

func (r *retouchOrderRepository) Insert(ctx context.Context, order domain.RetouchOrder) error {
	return execInsert(ctx, r.pool, "retouchOrders.insert",
		psql.Insert(retouchOrdersTable).Columns(retouchColumns...).Values(retouchValues(order)...))
}

func (r *retouchOrderRepository) FindByID(ctx context.Context, orderID string) (domain.RetouchOrder, error) {
	return selectOne(ctx, r.pool, "retouchOrders.get", orderID,
		psql.Select(retouchColumns...).From(retouchOrdersTable).Where(sq.Eq{"id": orderID}), scanRetouchOrder)
}

func (r *retouchOrderRepository) Update(ctx context.Context, order domain.RetouchOrder) (domain.RetouchOrder, error) {
	next := order
	next.Version = order.Version + 1
	query, args, err := updateVersioned(retouchOrdersTable, retouchColumns, retouchValues(next), order.ID, order.Version)
	if err != nil {
		return domain.RetouchOrder{}, err
	}
	if err := execVersioned(ctx, r.pool, "retouchOrders.update", retouchOrdersTable, order.ID, order.Version, query, args); err != nil {
		return domain.RetouchOrder{}, err
	}
	return next, nil
}

func (r *retouchOrderRepository) ListByPhoto(ctx context.Context, photoID string) ([]domain.RetouchOrder, error) {
	return selectMany(ctx, r.pool, "retouchOrders.listByPhoto",
		psql.Select(retouchColumns...).From(retouchOrdersTable).
			Where(sq.Or{sq.Eq{"source_photo_id": photoID}, sq.Eq{"retouched_photo_id": photoID}}).
			OrderBy("created_at", "id"),
		scanRetouchOrder)
}
