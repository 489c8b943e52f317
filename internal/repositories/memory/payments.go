package memory

import (
	"context"
	"sort"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories"
)

type paymentRepo struct{ s *Store }

func (r paymentRepo) Insert(_ context.Context, payment domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.ID]; ok {
		return alreadyExists("payment", payment.ID)
	}
	if payment.Active() {
		if _, taken := r.s.activePayments[payment.Order]; taken {
			return repositories.ErrActivePaymentExists
		}
		r.s.activePayments[payment.Order] = payment.ID
	}
	r.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r paymentRepo) FindByID(_ context.Context, paymentID string) (domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.payments[paymentID]
	if !ok {
		return domain.Payment{}, notFound("payment", paymentID)
	}
	return clonePayment(stored), nil
}

func (r paymentRepo) Update(_ context.Context, payment domain.Payment) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.payments[payment.ID]
	if !ok {
		return domain.Payment{}, notFound("payment", payment.ID)
	}
	if stored.Version != payment.Version {
		return domain.Payment{}, versionConflict("payment", payment.ID, payment.Version, stored.Version)
	}
	if !payment.Active() && r.s.activePayments[stored.Order] == payment.ID {
		delete(r.s.activePayments, stored.Order)
	}
	next := clonePayment(payment)
	next.Order = stored.Order
	next.Version++
	r.s.payments[payment.ID] = next
	return clonePayment(next), nil
}

func (r paymentRepo) ListByUser(_ context.Context, userID string) ([]domain.Payment, error) {
	return r.list(func(p domain.Payment) bool { return p.UserID == userID }), nil
}

func (r paymentRepo) ListByOrder(_ context.Context, ref domain.OrderRef) ([]domain.Payment, error) {
	return r.list(func(p domain.Payment) bool { return p.Order == ref }), nil
}

func (r paymentRepo) list(match func(domain.Payment) bool) []domain.Payment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if match(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
