package postgres

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
	ppostgres "github.com/lensmarket/api/internal/platform/postgres"
	"github.com/lensmarket/api/internal/repositories"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := os.Getenv("API_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("API_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := ppostgres.Connect(ctx, pconfig.PostgresConfig{DSN: dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := ppostgres.Migrate(ctx, pool, Migrations()); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	registry, err := NewRegistry(pool)
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

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func TestBookingRoundTripAndConditionalUpdate(t *testing.T) {
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
		Services:       []domain.BookingService{{Name: "Prints", Price: 5000, AddedAt: now}},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	repo := registry.Bookings()
	if err := repo.Insert(ctx, booking); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := repo.FindByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(loaded.Services) != 1 || loaded.Services[0].Price != 5000 || loaded.PayableAmount() != 25000 {
		t.Fatalf("services not round-tripped: %+v", loaded.Services)
	}

	loaded.Status = domain.OrderStatusConfirmed
	saved, err := repo.Update(ctx, loaded)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}

	loaded.Status = domain.OrderStatusCancelled
	if _, err := repo.Update(ctx, loaded); !isConflict(err) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	missing := booking
	missing.ID = "bkg_" + ulid.Make().String()
	if _, err := repo.Update(ctx, missing); !isNotFound(err) {
		t.Fatalf("expected not found for missing booking, got %v", err)
	}
	if _, err := repo.FindByID(ctx, missing.ID); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
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
			now := time.Now().UTC()
			errs[i] = repo.Insert(ctx, domain.Payment{
				ID: ids[i], UserID: "client", Order: order, Amount: 8000, Currency: "JPY",
				Status: domain.PaymentStatusPending, Version: 1, CreatedAt: now, UpdatedAt: now,
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
			continue
		}
		if !errors.Is(err, repositories.ErrActivePaymentExists) {
			t.Fatalf("expected ErrActivePaymentExists, got %v", err)
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

	now := time.Now().UTC()
	retry := domain.Payment{
		ID: "pay_" + ulid.Make().String(), UserID: "client", Order: order, Amount: 8000,
		Currency: "JPY", Status: domain.PaymentStatusPending, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.Insert(ctx, retry); err != nil {
		t.Fatalf("expected slot to be free after failure: %v", err)
	}

	listed, err := repo.ListByOrder(ctx, order)
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 payments for order, got %d", len(listed))
	}
}

func TestPortfolioApplySwapsCover(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	repo := registry.Portfolios()
	now := time.Now().UTC().Truncate(time.Microsecond)

	portfolio := domain.Portfolio{ID: "pfl_" + ulid.Make().String(), OwnerID: "photographer", Version: 1, CreatedAt: now, UpdatedAt: now}
	if err := repo.InsertPortfolio(ctx, portfolio); err != nil {
		t.Fatalf("insert portfolio: %v", err)
	}
	first := domain.PortfolioItem{ID: "pfi_" + ulid.Make().String(), ImagePath: "p/a.jpg", IsPortfolioCover: true, CreatedAt: now, UpdatedAt: now}
	second := domain.PortfolioItem{ID: "pfi_" + ulid.Make().String(), ImagePath: "p/b.jpg", CreatedAt: now.Add(time.Second), UpdatedAt: now}
	header := portfolio
	header.CoverItemID = &first.ID

	result, err := repo.Apply(ctx, repositories.PortfolioMutation{
		PortfolioID: portfolio.ID, Portfolio: &header, Insert: []domain.PortfolioItem{first, second},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Portfolio == nil || result.Portfolio.Version != 2 || len(result.Items) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Setting the new cover is listed first; the repository must still clear
	// the old one before the unique cover index sees two flags.
	storedFirst, storedSecond := result.Items[0], result.Items[1]
	storedSecond.IsPortfolioCover = true
	storedFirst.IsPortfolioCover = false
	swap := *result.Portfolio
	swap.CoverItemID = &storedSecond.ID
	result, err = repo.Apply(ctx, repositories.PortfolioMutation{
		PortfolioID: portfolio.ID, Portfolio: &swap, Update: []domain.PortfolioItem{storedSecond, storedFirst},
	})
	if err != nil {
		t.Fatalf("swap cover: %v", err)
	}
	if len(result.Items) != 2 || result.Items[0].ID != storedSecond.ID || result.Items[0].Version != 2 {
		t.Fatalf("expected results in request order: %+v", result.Items)
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
	if len(items) != 2 || items[0].IsPortfolioCover || !items[1].IsPortfolioCover {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestListUnlinkedPhotosOldestFirst(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	repo := registry.Photos()
	base := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Microsecond)

	var ids []string
	for i := 2; i >= 0; i-- {
		flagged := base.Add(time.Duration(i) * time.Minute)
		photo := domain.Photo{
			ID: "pho_" + ulid.Make().String(), BookingID: "bkg", ImagePath: "bookings/bkg/x.jpg",
			Unlinked: true, UnlinkedAt: &flagged, Version: 1, CreatedAt: base, UpdatedAt: base,
		}
		if err := repo.Insert(ctx, photo); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append([]string{photo.ID}, ids...)
	}

	listed, err := repo.ListUnlinked(ctx, base.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("list unlinked: %v", err)
	}
	var mine []string
	for _, p := range listed {
		for _, id := range ids {
			if p.ID == id {
				mine = append(mine, p.ID)
			}
		}
	}
	if len(mine) != 2 || mine[0] != ids[0] || mine[1] != ids[1] {
		t.Fatalf("expected the two oldest photos in order, got %v", mine)
	}

	photo, err := repo.FindByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	stale := photo
	stale.Version = 99
	if err := repo.Delete(ctx, stale); !isConflict(err) {
		t.Fatalf("expected conflict on stale delete, got %v", err)
	}
	if err := repo.Delete(ctx, photo); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
