package firestore

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lensmarket/api/internal/domain"
	pfirestore "github.com/lensmarket/api/internal/platform/firestore"
	"github.com/lensmarket/api/internal/repositories"
)

type paymentRepository struct{ r *Registry }

func lockID(ref domain.OrderRef) string {
	return string(ref.Type) + ":" + ref.ID
}

// Insert creates the payment and, for an active payment, the order's lock
// document in the same transaction.
func (p *paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	client, err := p.r.provider.Client(ctx)
	if err != nil {
		return err
	}
	paymentRef := client.Collection(paymentsCollection).Doc(payment.ID)
	lockRef := client.Collection(paymentLocksCollection).Doc(lockID(payment.Order))

	return p.r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if payment.Active() {
			_, err := tx.Get(lockRef)
			switch status.Code(err) {
			case codes.OK:
				return repositories.ErrActivePaymentExists
			case codes.NotFound:
			default:
				return err
			}
			if err := tx.Create(lockRef, paymentLockDocument{PaymentID: payment.ID, CreatedAt: payment.CreatedAt.UTC()}); err != nil {
				return err
			}
		}
		return tx.Create(paymentRef, encodePayment(payment))
	})
}

func (p *paymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var doc paymentDocument
	if err := p.r.get(ctx, paymentsCollection, paymentID, &doc); err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(paymentID, doc), nil
}

// Update replaces the payment and releases the order lock once the payment
// leaves the active statuses.
func (p *paymentRepository) Update(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	client, err := p.r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	paymentRef := client.Collection(paymentsCollection).Doc(payment.ID)

	var saved domain.Payment
	err = p.r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(paymentRef)
		if status.Code(err) == codes.NotFound {
			return pfirestore.NotFound("payments.update", payment.ID)
		}
		if err != nil {
			return err
		}
		var stored paymentDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if stored.Version != payment.Version {
			return pfirestore.Conflict("payments.update", "%s version mismatch: expected %d, stored %d", payment.ID, payment.Version, stored.Version)
		}

		next := payment
		next.Order = domain.OrderRef{Type: domain.OrderType(stored.OrderType), ID: stored.OrderID}
		next.Version = stored.Version + 1

		lockRef := client.Collection(paymentLocksCollection).Doc(lockID(next.Order))
		releaseLock := false
		if !next.Active() {
			lockSnap, err := tx.Get(lockRef)
			switch status.Code(err) {
			case codes.OK:
				var lock paymentLockDocument
				if err := lockSnap.DataTo(&lock); err != nil {
					return err
				}
				releaseLock = lock.PaymentID == payment.ID
			case codes.NotFound:
			default:
				return err
			}
		}

		if err := tx.Set(paymentRef, encodePayment(next)); err != nil {
			return err
		}
		if releaseLock {
			if err := tx.Delete(lockRef); err != nil {
				return err
			}
		}
		saved = next
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return saved, nil
}

func (p *paymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	coll, err := p.r.collection(ctx, paymentsCollection)
	if err != nil {
		return nil, err
	}
	payments, err := query(ctx, coll.Where("userId", "==", userID), "payments.list_by_user", decodePayment)
	if err != nil {
		return nil, err
	}
	sortPayments(payments)
	return payments, nil
}

func (p *paymentRepository) ListByOrder(ctx context.Context, ref domain.OrderRef) ([]domain.Payment, error) {
	coll, err := p.r.collection(ctx, paymentsCollection)
	if err != nil {
		return nil, err
	}
	q := coll.Where("orderType", "==", string(ref.Type)).Where("orderId", "==", ref.ID)
	payments, err := query(ctx, q, "payments.list_by_order", decodePayment)
	if err != nil {
		return nil, err
	}
	sortPayments(payments)
	return payments, nil
}

func sortPayments(payments []domain.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}
