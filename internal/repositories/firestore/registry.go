// Package firestore implements the repositories on Cloud Firestore. Every
// conditional write reads the stored version inside a transaction and aborts
// with a conflict when it differs from the caller's copy.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/lensmarket/api/internal/platform/firestore"
	"github.com/lensmarket/api/internal/repositories"
)

const (
	bookingsCollection       = "bookings"
	retouchOrdersCollection  = "retouchOrders"
	paymentsCollection       = "payments"
	paymentLocksCollection   = "paymentLocks"
	photosCollection         = "photos"
	portfoliosCollection     = "portfolios"
	portfolioItemsCollection = "portfolioItems"
)

// Registry exposes Firestore-backed repositories sharing one provider.
type Registry struct {
	provider *pfirestore.Provider
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs a registry over the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	return &Registry{provider: provider}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Ping issues a cheap read to confirm the backend is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collection(bookingsCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("ping", err)
	}
	return nil
}

func (r *Registry) Bookings() repositories.BookingRepository {
	return &bookingRepository{r}
}

func (r *Registry) RetouchOrders() repositories.RetouchOrderRepository {
	return &retouchOrderRepository{r}
}

func (r *Registry) Payments() repositories.PaymentRepository {
	return &paymentRepository{r}
}

func (r *Registry) Photos() repositories.PhotoRepository {
	return &photoRepository{r}
}

func (r *Registry) Portfolios() repositories.PortfolioRepository {
	return &portfolioRepository{r}
}

func (r *Registry) doc(ctx context.Context, collection, id string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(collection).Doc(id), nil
}

func (r *Registry) collection(ctx context.Context, name string) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(name), nil
}

// create stores a new document, failing with a conflict when the id is taken.
func (r *Registry) create(ctx context.Context, collection, id string, data any) error {
	ref, err := r.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, data); err != nil {
		return pfirestore.WrapError(collection+".create", err)
	}
	return nil
}

// get decodes one document into target.
func (r *Registry) get(ctx context.Context, collection, id string, target any) error {
	ref, err := r.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return pfirestore.WrapError(collection+".get", err)
	}
	if err := snap.DataTo(target); err != nil {
		return fmt.Errorf("firestore %s decode %s: %w", collection, id, err)
	}
	return nil
}

// replaceVersioned overwrites the document when its stored version matches expected.
func (r *Registry) replaceVersioned(ctx context.Context, collection, id string, expected int64, data any) error {
	ref, err := r.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	op := collection + ".update"
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := pfirestore.ExpectVersion(tx, ref, op, expected); err != nil {
			return err
		}
		return tx.Set(ref, data)
	})
}

// deleteVersioned removes the document when its stored version matches expected.
func (r *Registry) deleteVersioned(ctx context.Context, collection, id string, expected int64) error {
	ref, err := r.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	op := collection + ".delete"
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := pfirestore.ExpectVersion(tx, ref, op, expected); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
}

// query runs q and decodes each document with decode.
func query[D any, T any](ctx context.Context, q firestore.Query, op string, decode func(string, D) T) ([]T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		var doc D
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore: decode %s: %w", snap.Ref.ID, err)
		}
		out = append(out, decode(snap.Ref.ID, doc))
	}
	return out, nil
}
