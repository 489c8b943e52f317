package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("T%04d", n.Add(1))
	}
}

type captureNotifier struct {
	mu      sync.Mutex
	intents []domain.NotificationIntent
	err     error
}

func (n *captureNotifier) Notify(_ context.Context, intent domain.NotificationIntent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intent)
	return n.err
}

func (n *captureNotifier) ofType(kind string) []domain.NotificationIntent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.NotificationIntent
	for _, intent := range n.intents {
		if intent.Type == kind {
			out = append(out, intent)
		}
	}
	return out
}

type fixture struct {
	store       *memory.Store
	clock       *fakeClock
	notifier    *captureNotifier
	ledger      OrderLedger
	gateway     PaymentGateway
	assets      AssetStore
	coordinator ConsistencyCoordinator
}

var (
	client       = Actor{ID: "user-client", Roles: []domain.Role{domain.RoleClient}}
	photographer = Actor{ID: "user-photographer", Roles: []domain.Role{domain.RolePhotographer}}
	retoucher    = Actor{ID: "user-retoucher", Roles: []domain.Role{domain.RoleRetoucher}}
	admin        = Actor{ID: "user-admin", Roles: []domain.Role{domain.RoleAdmin}}
	stranger     = Actor{ID: "user-stranger", Roles: []domain.Role{domain.RoleClient}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := newFakeClock()
	notifier := &captureNotifier{}
	ids := sequentialIDs()

	ledger, err := NewOrderLedger(OrderLedgerDeps{
		Bookings:        store.Bookings(),
		RetouchOrders:   store.RetouchOrders(),
		Photos:          store.Photos(),
		Payments:        store.Payments(),
		Notifier:        notifier,
		DefaultCurrency: "JPY",
		Clock:           clock.Now,
		IDGenerator:     ids,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	gateway, err := NewPaymentGateway(PaymentGatewayDeps{
		Payments:    store.Payments(),
		Ledger:      ledger,
		Notifier:    notifier,
		Retry:       RetryPolicy{MaxAttempts: 3},
		Clock:       clock.Now,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	assets, err := NewAssetStore(AssetStoreDeps{
		Photos:        store.Photos(),
		Portfolios:    store.Portfolios(),
		RetouchOrders: store.RetouchOrders(),
		Clock:         clock.Now,
		IDGenerator:   ids,
	})
	if err != nil {
		t.Fatalf("new asset store: %v", err)
	}
	coordinator, err := NewConsistencyCoordinator(CoordinatorDeps{
		Ledger:      ledger,
		Payments:    gateway,
		Assets:      assets,
		Notifier:    notifier,
		Retry:       RetryPolicy{MaxAttempts: 3},
		Clock:       clock.Now,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	return &fixture{
		store:       store,
		clock:       clock,
		notifier:    notifier,
		ledger:      ledger,
		gateway:     gateway,
		assets:      assets,
		coordinator: coordinator,
	}
}

func (f *fixture) booking(t *testing.T, status domain.OrderStatus) Booking {
	t.Helper()
	ctx := context.Background()
	booking, err := f.ledger.CreateBooking(ctx, CreateBookingCommand{
		Actor:          client,
		PhotographerID: photographer.ID,
		BookingDate:    f.clock.Now().Add(72 * time.Hour),
		InitialAmount:  30000,
		Services:       []BookingServiceInput{{Name: "Extra hour", Price: 5000}},
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	ref := OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID}
	path := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:   nil,
		domain.OrderStatusConfirmed: {domain.OrderStatusConfirmed},
		domain.OrderStatusCompleted: {domain.OrderStatusConfirmed, domain.OrderStatusCompleted},
	}[status]
	for _, step := range path {
		order, err := f.ledger.Advance(ctx, AdvanceOrderCommand{Ref: ref, Target: step, Actor: photographer})
		if err != nil {
			t.Fatalf("advance booking to %s: %v", step, err)
		}
		booking = *order.Booking
	}
	return booking
}

func (f *fixture) sourcePhoto(t *testing.T) Photo {
	t.Helper()
	booking := f.booking(t, domain.OrderStatusConfirmed)
	asset, err := f.assets.Upload(context.Background(), UploadAssetCommand{
		Kind:      domain.AssetKindPhoto,
		OwnerID:   booking.ID,
		ImagePath: "bookings/" + booking.ID + "/raw.jpg",
		Title:     "Raw shot",
	})
	if err != nil {
		t.Fatalf("upload source photo: %v", err)
	}
	return *asset.Photo
}

func (f *fixture) retouchOrder(t *testing.T, status domain.OrderStatus) RetouchOrder {
	t.Helper()
	ctx := context.Background()
	source := f.sourcePhoto(t)
	order, err := f.ledger.CreateRetouchOrder(ctx, CreateRetouchOrderCommand{
		Actor:         client,
		RetoucherID:   retoucher.ID,
		SourcePhotoID: source.ID,
		Price:         8000,
		Requirements:  "Remove background <b>clutter</b>",
	})
	if err != nil {
		t.Fatalf("create retouch order: %v", err)
	}
	if status == domain.OrderStatusInProgress {
		advanced, err := f.ledger.Advance(ctx, AdvanceOrderCommand{
			Ref:    OrderRef{Type: domain.OrderTypeRetouch, ID: order.ID},
			Target: domain.OrderStatusInProgress,
			Actor:  retoucher,
		})
		if err != nil {
			t.Fatalf("start retouch order: %v", err)
		}
		order = *advanced.Retouch
	}
	return order
}

func (f *fixture) sourceBookingID(t *testing.T, order RetouchOrder) string {
	t.Helper()
	source, err := f.store.Photos().FindByID(context.Background(), order.SourcePhotoID)
	if err != nil {
		t.Fatalf("load source photo: %v", err)
	}
	return source.BookingID
}
