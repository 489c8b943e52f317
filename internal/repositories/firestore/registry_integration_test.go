package firestore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lensmarket/api/internal/domain"
	pconfig "github.com/lensmarket/api/internal/platform/config"
	pfirestore "github.com/lensmarket/api/internal/platform/firestore"
	"github.com/lensmarket/api/internal/repositories"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "lensmarket-test", EmulatorHost: host})
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	return registry
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func TestBookingConditionalUpdate(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	booking := domain.Booking{
		ID:             "bkg_" + ulid.Make().String(),
		ClientID:       "client",
		PhotographerID: "photographer",
		BookingDate:    now.Add(48 * time.Hour),
		Status:         domain.OrderStatusPending,
		InitialAmount:  20000,
		Currency:       "JPY",
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	repo := registry.Bookings()
	if err := repo.Insert(ctx, booking); err != nil {
		t.Fatalf("insert: %v", err)
	}

	booking.Status = domain.OrderStatusConfirmed
	saved, err := repo.Update(ctx, booking)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}

	booking.Status = domain.OrderStatusCancelled
	if _, err := repo.Update(ctx, booking); !isConflict(err) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	loaded, err := repo.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if loaded.Status != domain.OrderStatusConfirmed || loaded.Version != 2 {
		t.Fatalf("unexpected stored booking: %+v", loaded)
	}
}

func TestPaymentActiveSlot(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	repo := registry.Payments()
	order := domain.OrderRef{Type: domain.OrderTypeRetouch, ID: "rto_" + ulid.Make().String()}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	ids := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = "pay_" + ulid.Make().String()
			errs[i] = repo.Insert(ctx, domain.Payment{
				ID:        ids[i],
				UserID:    "client",
				Order:     order,
				Amount:    8000,
				Currency:  "JPY",
				Status:    domain.PaymentStatusPending,
				Version:   1,
				CreatedAt: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	winner := ""
	for i, err := range errs {
		if err == nil {
			if winner != "" {
				t.Fatalf("expected a single active payment, got %s and %s", winner, ids[i])
			}
			winner = ids[i]
		}
	}
	if winner == "" {
		t.Fatalf("expected one insert to succeed: %v", errs)
	}

	payment, err := repo.FindByID(ctx, winner)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	payment.Status = domain.PaymentStatusFailed
	if _, err := repo.Update(ctx, payment); err != nil {
		t.Fatalf("fail payment: %v", err)
	}

	retry := domain.Payment{
		ID: "pay_" + ulid.Make().String(), UserID: "client", Order: order, Amount: 8000,
		Currency: "JPY", Status: domain.PaymentStatusPending, Version: 1, CreatedAt: time.Now().UTC(),
	}
	if err := repo.Insert(ctx, retry); err != nil {
		t.Fatalf("expected slot to be free after failure: %v", err)
	}
	if err := repo.Insert(ctx, domain.Payment{
		ID: "pay_" + ulid.Make().String(), UserID: "client", Order: order, Status: domain.PaymentStatusPending, Version: 1,
	}); !errors.Is(err, repositories.ErrActivePaymentExists) {
		t.Fatalf("expected ErrActivePaymentExists, got %v", err)
	}
}

func TestPortfolioApplyRejectsStaleHeader(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	repo := registry.Portfolios()
	now := time.Now().UTC()

	portfolio := domain.Portfolio{ID: "pfl_" + ulid.Make().String(), OwnerID: "photographer", Version: 1, CreatedAt: now, UpdatedAt: now}
	if err := repo.InsertPortfolio(ctx, portfolio); err != nil {
		t.Fatalf("insert portfolio: %v", err)
	}
	item := domain.PortfolioItem{ID: "pfi_" + ulid.Make().String(), ImagePath: "p/a.jpg", CreatedAt: now, UpdatedAt: now}
	cover := portfolio
	cover.CoverItemID = &item.ID
	item.IsPortfolioCover = true

	result, err := repo.Apply(ctx, repositories.PortfolioMutation{PortfolioID: portfolio.ID, Portfolio: &cover, Insert: []domain.PortfolioItem{item}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Portfolio == nil || result.Portfolio.Version != 2 || len(result.Items) != 1 || result.Items[0].Version != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	stale := portfolio
	stale.CoverItemID = nil
	if _, err := repo.Apply(ctx, repositories.PortfolioMutation{PortfolioID: portfolio.ID, Portfolio: &stale}); !isConflict(err) {
		t.Fatalf("expected conflict for stale header, got %v", err)
	}

	items, err := repo.ListItems(ctx, portfolio.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || !items[0].IsPortfolioCover {
		t.Fatalf("unexpected items: %+v", items)
	}
}
