// Package memory provides an in-process repository backend. Every write runs
// under a single mutex, which makes the conditional updates trivially atomic.
package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories"
)

// Store holds every record in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	bookings       map[string]domain.Booking
	retouchOrders  map[string]domain.RetouchOrder
	payments       map[string]domain.Payment
	activePayments map[domain.OrderRef]string
	photos         map[string]domain.Photo
	portfolios     map[string]domain.Portfolio
	items          map[string]domain.PortfolioItem
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		bookings:       make(map[string]domain.Booking),
		retouchOrders:  make(map[string]domain.RetouchOrder),
		payments:       make(map[string]domain.Payment),
		activePayments: make(map[domain.OrderRef]string),
		photos:         make(map[string]domain.Photo),
		portfolios:     make(map[string]domain.Portfolio),
		items:          make(map[string]domain.PortfolioItem),
	}
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Bookings() repositories.BookingRepository           { return bookingRepo{s} }
func (s *Store) RetouchOrders() repositories.RetouchOrderRepository { return retouchRepo{s} }
func (s *Store) Payments() repositories.PaymentRepository           { return paymentRepo{s} }
func (s *Store) Photos() repositories.PhotoRepository               { return photoRepo{s} }
func (s *Store) Portfolios() repositories.PortfolioRepository       { return portfolioRepo{s} }

type storeError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *storeError) Error() string       { return e.msg }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return e.conflict }
func (e *storeError) IsUnavailable() bool { return false }

func notFound(kind, id string) error {
	return &storeError{msg: fmt.Sprintf("memory: %s %q not found", kind, id), notFound: true}
}

func alreadyExists(kind, id string) error {
	return &storeError{msg: fmt.Sprintf("memory: %s %q already exists", kind, id), conflict: true}
}

func versionConflict(kind, id string, expected, actual int64) error {
	return &storeError{
		msg:      fmt.Sprintf("memory: %s %q version mismatch: expected %d, stored %d", kind, id, expected, actual),
		conflict: true,
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneMark(m domain.PaymentMark) domain.PaymentMark {
	return domain.PaymentMark{Paid: m.Paid, PaidAt: clonePtr(m.PaidAt), PaymentID: clonePtr(m.PaymentID)}
}

func cloneBooking(b domain.Booking) domain.Booking {
	out := b
	out.FinalAmount = clonePtr(b.FinalAmount)
	out.CompletedAt = clonePtr(b.CompletedAt)
	out.CancelledAt = clonePtr(b.CancelledAt)
	out.Payment = cloneMark(b.Payment)
	if b.Services != nil {
		out.Services = append([]domain.BookingService(nil), b.Services...)
	}
	return out
}

func cloneRetouch(o domain.RetouchOrder) domain.RetouchOrder {
	out := o
	out.RetouchedPhotoID = clonePtr(o.RetouchedPhotoID)
	out.CompletedAt = clonePtr(o.CompletedAt)
	out.CancelledAt = clonePtr(o.CancelledAt)
	out.Payment = cloneMark(o.Payment)
	return out
}

func clonePayment(p domain.Payment) domain.Payment {
	out := p
	out.TransactionID = clonePtr(p.TransactionID)
	return out
}

func clonePhoto(p domain.Photo) domain.Photo {
	out := p
	out.RetouchOrderID = clonePtr(p.RetouchOrderID)
	out.UnlinkedAt = clonePtr(p.UnlinkedAt)
	return out
}

func clonePortfolio(p domain.Portfolio) domain.Portfolio {
	out := p
	out.CoverItemID = clonePtr(p.CoverItemID)
	return out
}

func cloneItem(i domain.PortfolioItem) domain.PortfolioItem {
	out := i
	out.AfterImageID = clonePtr(i.AfterImageID)
	out.BeforeImageID = clonePtr(i.BeforeImageID)
	return out
}
