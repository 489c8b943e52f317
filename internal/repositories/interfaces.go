package repositories

import (
	"context"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Bookings() BookingRepository
	RetouchOrders() RetouchOrderRepository
	Payments() PaymentRepository
	Photos() PhotoRepository
	Portfolios() PortfolioRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// Conditional writes: every Update/Delete below succeeds only when the stored
// row's Version equals the Version carried by the argument. On success the
// stored row is returned with Version incremented by one; on mismatch the
// error reports IsConflict.

// BookingRepository persists bookings.
type BookingRepository interface {
	Insert(ctx context.Context, booking domain.Booking) error
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	Update(ctx context.Context, booking domain.Booking) (domain.Booking, error)
}

// RetouchOrderRepository persists retouch orders.
type RetouchOrderRepository interface {
	Insert(ctx context.Context, order domain.RetouchOrder) error
	FindByID(ctx context.Context, orderID string) (domain.RetouchOrder, error)
	Update(ctx context.Context, order domain.RetouchOrder) (domain.RetouchOrder, error)
	// ListByPhoto returns orders whose source or retouched photo is photoID.
	ListByPhoto(ctx context.Context, photoID string) ([]domain.RetouchOrder, error)
}

// PaymentRepository persists payments and owns the single active payment slot
// per order. Insert of an active payment fails with ErrActivePaymentExists when
// the slot is taken; an Update that leaves the active statuses frees it.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Payment, error)
	ListByOrder(ctx context.Context, ref domain.OrderRef) ([]domain.Payment, error)
}

// PhotoRepository persists booking photos.
type PhotoRepository interface {
	Insert(ctx context.Context, photo domain.Photo) error
	FindByID(ctx context.Context, photoID string) (domain.Photo, error)
	Update(ctx context.Context, photo domain.Photo) (domain.Photo, error)
	Delete(ctx context.Context, photo domain.Photo) error
	// ListUnlinked returns unlinked photos flagged before the cutoff, oldest first.
	ListUnlinked(ctx context.Context, before time.Time, limit int) ([]domain.Photo, error)
}

// PortfolioMutation is an all-or-nothing write scoped to one portfolio.
// Portfolio, Update and Delete entries are conditional on their Version;
// Insert entries must not exist yet and are stored with Version 1.
type PortfolioMutation struct {
	PortfolioID string
	Portfolio   *domain.Portfolio
	Insert      []domain.PortfolioItem
	Update      []domain.PortfolioItem
	Delete      []domain.PortfolioItem
}

// PortfolioMutationResult carries the stored rows after a successful mutation.
type PortfolioMutationResult struct {
	Portfolio *domain.Portfolio
	Items     []domain.PortfolioItem
}

// PortfolioRepository persists portfolios and their items.
type PortfolioRepository interface {
	InsertPortfolio(ctx context.Context, portfolio domain.Portfolio) error
	FindPortfolio(ctx context.Context, portfolioID string) (domain.Portfolio, error)
	FindItem(ctx context.Context, itemID string) (domain.PortfolioItem, error)
	ListItems(ctx context.Context, portfolioID string) ([]domain.PortfolioItem, error)
	Apply(ctx context.Context, mutation PortfolioMutation) (PortfolioMutationResult, error)
}
