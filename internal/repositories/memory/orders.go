package memory

import (
	"context"
	"sort"

	domain "github.com/lensmarket/api/internal/domain"
)

type bookingRepo struct{ s *Store }

func (r bookingRepo) Insert(_ context.Context, booking domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[booking.ID]; ok {
		return alreadyExists("booking", booking.ID)
	}
	r.s.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (r bookingRepo) FindByID(_ context.Context, bookingID string) (domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.bookings[bookingID]
	if !ok {
		return domain.Booking{}, notFound("booking", bookingID)
	}
	return cloneBooking(stored), nil
}

func (r bookingRepo) Update(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return domain.Booking{}, notFound("booking", booking.ID)
	}
	if stored.Version != booking.Version {
		return domain.Booking{}, versionConflict("booking", booking.ID, booking.Version, stored.Version)
	}
	next := cloneBooking(booking)
	next.Version++
	r.s.bookings[booking.ID] = next
	return cloneBooking(next), nil
}

type retouchRepo struct{ s *Store }

func (r retouchRepo) Insert(_ context.Context, order domain.RetouchOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.retouchOrders[order.ID]; ok {
		return alreadyExists("retouch order", order.ID)
	}
	r.s.retouchOrders[order.ID] = cloneRetouch(order)
	return nil
}

func (r retouchRepo) FindByID(_ context.Context, orderID string) (domain.RetouchOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.retouchOrders[orderID]
	if !ok {
		return domain.RetouchOrder{}, notFound("retouch order", orderID)
	}
	return cloneRetouch(stored), nil
}

func (r retouchRepo) Update(_ context.Context, order domain.RetouchOrder) (domain.RetouchOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.retouchOrders[order.ID]
	if !ok {
		return domain.RetouchOrder{}, notFound("retouch order", order.ID)
	}
	if stored.Version != order.Version {
		return domain.RetouchOrder{}, versionConflict("retouch order", order.ID, order.Version, stored.Version)
	}
	next := cloneRetouch(order)
	next.Version++
	r.s.retouchOrders[order.ID] = next
	return cloneRetouch(next), nil
}

func (r retouchRepo) ListByPhoto(_ context.Context, photoID string) ([]domain.RetouchOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.RetouchOrder
	for _, order := range r.s.retouchOrders {
		if order.SourcePhotoID == photoID || (order.RetouchedPhotoID != nil && *order.RetouchedPhotoID == photoID) {
			out = append(out, cloneRetouch(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
