package firestore

import (
	"context"
	"sort"

	domain "github.com/lensmarket/api/internal/domain"
)

type bookingRepository struct{ r *Registry }

func (b *bookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	return b.r.create(ctx, bookingsCollection, booking.ID, encodeBooking(booking))
}

func (b *bookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	var doc bookingDocument
	if err := b.r.get(ctx, bookingsCollection, bookingID, &doc); err != nil {
		return domain.Booking{}, err
	}
	return decodeBooking(bookingID, doc), nil
}

func (b *bookingRepository) Update(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	next := booking
	next.Version = booking.Version + 1
	if err := b.r.replaceVersioned(ctx, bookingsCollection, booking.ID, booking.Version, encodeBooking(next)); err != nil {
		return domain.Booking{}, err
	}
	return next, nil
}

type retouchOrderRepository struct{ r *Registry }

func (o *retouchOrderRepository) Insert(ctx context.Context, order domain.RetouchOrder) error {
	return o.r.create(ctx, retouchOrdersCollection, order.ID, encodeRetouch(order))
}

func (o *retouchOrderRepository) FindByID(ctx context.Context, orderID string) (domain.RetouchOrder, error) {
	var doc retouchOrderDocument
	if err := o.r.get(ctx, retouchOrdersCollection, orderID, &doc); err != nil {
		return domain.RetouchOrder{}, err
	}
	return decodeRetouch(orderID, doc), nil
}

func (o *retouchOrderRepository) Update(ctx context.Context, order domain.RetouchOrder) (domain.RetouchOrder, error) {
	next := order
	next.Version = order.Version + 1
	if err := o.r.replaceVersioned(ctx, retouchOrdersCollection, order.ID, order.Version, encodeRetouch(next)); err != nil {
		return domain.RetouchOrder{}, err
	}
	return next, nil
}

func (o *retouchOrderRepository) ListByPhoto(ctx context.Context, photoID string) ([]domain.RetouchOrder, error) {
	coll, err := o.r.collection(ctx, retouchOrdersCollection)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []domain.RetouchOrder
	for _, field := range []string{"sourcePhotoId", "retouchedPhotoId"} {
		orders, err := query(ctx, coll.Where(field, "==", photoID), "retouchOrders.list_by_photo", decodeRetouch)
		if err != nil {
			return nil, err
		}
		for _, order := range orders {
			if _, ok := seen[order.ID]; ok {
				continue
			}
			seen[order.ID] = struct{}{}
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
