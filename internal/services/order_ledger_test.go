package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	domain "github.com/lensmarket/api/internal/domain"
)

func TestCanTransitionTable(t *testing.T) {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	}
	legal := map[domain.OrderType]map[[2]domain.OrderStatus]bool{
		domain.OrderTypeBooking: {
			{domain.OrderStatusPending, domain.OrderStatusConfirmed}:   true,
			{domain.OrderStatusPending, domain.OrderStatusCancelled}:   true,
			{domain.OrderStatusConfirmed, domain.OrderStatusCompleted}: true,
			{domain.OrderStatusConfirmed, domain.OrderStatusCancelled}: true,
		},
		domain.OrderTypeRetouch: {
			{domain.OrderStatusPending, domain.OrderStatusInProgress}:   true,
			{domain.OrderStatusPending, domain.OrderStatusCancelled}:    true,
			{domain.OrderStatusInProgress, domain.OrderStatusCompleted}: true,
			{domain.OrderStatusInProgress, domain.OrderStatusCancelled}: true,
		},
	}

	for orderType, allowed := range legal {
		for _, from := range statuses {
			for _, to := range statuses {
				want := allowed[[2]domain.OrderStatus{from, to}]
				if got := CanTransition(orderType, from, to); got != want {
					t.Fatalf("%s %s -> %s: expected %v got %v", orderType, from, to, want, got)
				}
			}
		}
	}
	if CanTransition("unknown", domain.OrderStatusPending, domain.OrderStatusCancelled) {
		t.Fatalf("expected unknown order type to reject every transition")
	}
}

func TestOrderLedgerBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking := f.booking(t, domain.OrderStatusPending)
	if booking.Status != domain.OrderStatusPending || booking.Version != 1 {
		t.Fatalf("unexpected new booking: %#v", booking)
	}
	if booking.Currency != "JPY" {
		t.Fatalf("expected default currency JPY, got %s", booking.Currency)
	}
	ref := OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID}

	confirmed, err := f.ledger.Advance(ctx, AdvanceOrderCommand{Ref: ref, Target: domain.OrderStatusConfirmed, Actor: photographer})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status() != domain.OrderStatusConfirmed || confirmed.Version() != 2 {
		t.Fatalf("unexpected confirmed booking: %#v", confirmed.Booking)
	}
	if got := f.notifier.ofType("booking.confirmed"); len(got) != 1 || got[0].UserID != client.ID {
		t.Fatalf("expected confirmation intent for client, got %#v", got)
	}

	completed, err := f.ledger.Advance(ctx, AdvanceOrderCommand{Ref: ref, Target: domain.OrderStatusCompleted, Actor: photographer})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	b := completed.Booking
	if b.CompletedAt == nil || !b.CompletedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected completedAt to be set, got %v", b.CompletedAt)
	}
	if b.FinalAmount == nil || *b.FinalAmount != 35000 {
		t.Fatalf("expected final amount frozen at 35000, got %v", b.FinalAmount)
	}
	if b.CancelledAt != nil {
		t.Fatalf("expected cancelledAt to stay nil")
	}
}

func TestOrderLedgerRejectsIllegalTransitionsWithoutChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		status domain.OrderStatus
		target domain.OrderStatus
		actor  Actor
	}{
		{name: "no-op re-apply", status: domain.OrderStatusConfirmed, target: domain.OrderStatusConfirmed, actor: photographer},
		{name: "skip confirmation", status: domain.OrderStatusPending, target: domain.OrderStatusCompleted, actor: photographer},
		{name: "retouch status on booking", status: domain.OrderStatusPending, target: domain.OrderStatusInProgress, actor: photographer},
		{name: "out of completed", status: domain.OrderStatusCompleted, target: domain.OrderStatusCancelled, actor: admin},
		{name: "completed again", status: domain.OrderStatusCompleted, target: domain.OrderStatusCompleted, actor: photographer},
		{name: "back to pending", status: domain.OrderStatusConfirmed, target: domain.OrderStatusPending, actor: photographer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			booking := f.booking(t, tc.status)
			before, err := f.store.Bookings().FindByID(ctx, booking.ID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}

			_, err = f.ledger.Advance(ctx, AdvanceOrderCommand{
				Ref:    OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID},
				Target: tc.target,
				Actor:  tc.actor,
			})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}

			after, err := f.store.Bookings().FindByID(ctx, booking.ID)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Fatalf("expected booking unchanged\nbefore %#v\nafter  %#v", before, after)
			}
		})
	}
}

func TestOrderLedgerAdvanceAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		status  domain.OrderStatus
		target  domain.OrderStatus
		actor   Actor
		wantErr error
	}{
		{name: "client confirms", status: domain.OrderStatusPending, target: domain.OrderStatusConfirmed, actor: client, wantErr: ErrForbidden},
		{name: "client cancels pending", status: domain.OrderStatusPending, target: domain.OrderStatusCancelled, actor: client},
		{name: "client cancels confirmed", status: domain.OrderStatusConfirmed, target: domain.OrderStatusCancelled, actor: client, wantErr: ErrForbidden},
		{name: "photographer cancels", status: domain.OrderStatusPending, target: domain.OrderStatusCancelled, actor: photographer, wantErr: ErrForbidden},
		{name: "admin forces cancel", status: domain.OrderStatusConfirmed, target: domain.OrderStatusCancelled, actor: admin},
		{name: "admin completes", status: domain.OrderStatusConfirmed, target: domain.OrderStatusCompleted, actor: admin, wantErr: ErrForbidden},
		{name: "stranger confirms", status: domain.OrderStatusPending, target: domain.OrderStatusConfirmed, actor: stranger, wantErr: ErrForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			booking := f.booking(t, tc.status)
			order, err := f.ledger.Advance(ctx, AdvanceOrderCommand{
				Ref:    OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID},
				Target: tc.target,
				Actor:  tc.actor,
				Reason: "schedule clash",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order.Status() != tc.target {
				t.Fatalf("expected status %s, got %s", tc.target, order.Status())
			}
			if tc.target == domain.OrderStatusCancelled && order.Booking.CancelledAt == nil {
				t.Fatalf("expected cancelledAt to be set")
			}
		})
	}

	cancelled := f.notifier.ofType("booking.cancelled")
	if len(cancelled) != 3 {
		t.Fatalf("expected 3 cancellation intents (photographer, then client and photographer), got %d", len(cancelled))
	}
	if cancelled[0].UserID != photographer.ID {
		t.Fatalf("expected client cancellation to notify photographer, got %s", cancelled[0].UserID)
	}
}

func TestOrderLedgerExpectedStatusMismatch(t *testing.T) {
	f := newFixture(t)
	booking := f.booking(t, domain.OrderStatusPending)
	expected := domain.OrderStatusConfirmed

	_, err := f.ledger.Advance(context.Background(), AdvanceOrderCommand{
		Ref:            OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID},
		Target:         domain.OrderStatusCompleted,
		Actor:          photographer,
		ExpectedStatus: &expected,
	})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestOrderLedgerConcurrentCompletion(t *testing.T) {
	f := newFixture(t)
	booking := f.booking(t, domain.OrderStatusConfirmed)
	observed := domain.OrderStatusConfirmed

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.ledger.Advance(context.Background(), AdvanceOrderCommand{
				Ref:            OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID},
				Target:         domain.OrderStatusCompleted,
				Actor:          photographer,
				ExpectedStatus: &observed,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConcurrentModification):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one completion, got %d", succeeded)
	}

	stored, err := f.store.Bookings().FindByID(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != domain.OrderStatusCompleted || stored.Version != booking.Version+1 {
		t.Fatalf("expected one committed completion, got status %s version %d", stored.Status, stored.Version)
	}
}

func TestOrderLedgerRetouchCompletionRequiresPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.retouchOrder(t, domain.OrderStatusInProgress)
	ref := OrderRef{Type: domain.OrderTypeRetouch, ID: order.ID}

	if order.Requirements != "Remove background clutter" {
		t.Fatalf("expected sanitised requirements, got %q", order.Requirements)
	}

	if _, err := f.ledger.Advance(ctx, AdvanceOrderCommand{Ref: ref, Target: domain.OrderStatusCompleted, Actor: retoucher}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without photo, got %v", err)
	}

	for name, photoID := range map[string]string{
		"missing photo":   "pho_does_not_exist",
		"unrelated photo": order.SourcePhotoID,
	} {
		if _, err := f.ledger.Advance(ctx, AdvanceOrderCommand{
			Ref:              ref,
			Target:           domain.OrderStatusCompleted,
			Actor:            retoucher,
			RetouchedPhotoID: &photoID,
		}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	stored, err := f.store.RetouchOrders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != domain.OrderStatusInProgress || stored.RetouchedPhotoID != nil {
		t.Fatalf("expected rejected completions to leave the order untouched, got %#v", stored)
	}

	uploaded, err := f.assets.Upload(ctx, UploadAssetCommand{
		Kind:           domain.AssetKindPhoto,
		OwnerID:        f.sourceBookingID(t, order),
		ImagePath:      "retouched/done.jpg",
		RetouchOrderID: &order.ID,
	})
	if err != nil {
		t.Fatalf("upload retouched photo: %v", err)
	}
	photoID := uploaded.ID()
	completed, err := f.ledger.Advance(ctx, AdvanceOrderCommand{
		Ref:              ref,
		Target:           domain.OrderStatusCompleted,
		Actor:            retoucher,
		RetouchedPhotoID: &photoID,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if derefString(completed.Retouch.RetouchedPhotoID) != photoID || completed.Retouch.CompletedAt == nil {
		t.Fatalf("expected retouched photo and completedAt, got %#v", completed.Retouch)
	}
}

func TestOrderLedgerCreateRetouchOrderValidatesSourcePhoto(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.CreateRetouchOrder(context.Background(), CreateRetouchOrderCommand{
		Actor:         client,
		RetoucherID:   retoucher.ID,
		SourcePhotoID: "pho_missing",
		Price:         100,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOrderLedgerCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := CreateBookingCommand{
		Actor:          client,
		PhotographerID: photographer.ID,
		BookingDate:    f.clock.Now(),
		InitialAmount:  100,
	}

	self := base
	self.PhotographerID = client.ID
	if _, err := f.ledger.CreateBooking(ctx, self); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self booking, got %v", err)
	}

	negative := base
	negative.InitialAmount = -1
	if _, err := f.ledger.CreateBooking(ctx, negative); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative amount, got %v", err)
	}

	badCurrency := base
	badCurrency.Currency = "dollars"
	if _, err := f.ledger.CreateBooking(ctx, badCurrency); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for currency, got %v", err)
	}

	onBehalf := base
	onBehalf.Actor = stranger
	onBehalf.ClientID = client.ID
	if _, err := f.ledger.CreateBooking(ctx, onBehalf); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden when booking for someone else, got %v", err)
	}

	onBehalf.Actor = admin
	if _, err := f.ledger.CreateBooking(ctx, onBehalf); err != nil {
		t.Fatalf("expected admin to book on behalf of client: %v", err)
	}
}

func TestOrderLedgerSetFinalAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.booking(t, domain.OrderStatusPending)
	if _, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: pending.ID, Amount: 100, Actor: photographer}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on pending booking, got %v", err)
	}

	confirmed := f.booking(t, domain.OrderStatusConfirmed)
	if _, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: confirmed.ID, Amount: 100, Actor: client}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for client, got %v", err)
	}
	if _, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: confirmed.ID, Amount: -5, Actor: photographer}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative amount, got %v", err)
	}
	updated, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: confirmed.ID, Amount: 42000, Actor: photographer})
	if err != nil {
		t.Fatalf("set final amount: %v", err)
	}
	if updated.PayableAmount() != 42000 {
		t.Fatalf("expected payable amount 42000, got %d", updated.PayableAmount())
	}

	completed := f.booking(t, domain.OrderStatusCompleted)
	if _, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: completed.ID, Amount: 1, Actor: admin}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on completed booking, got %v", err)
	}
}

func TestOrderLedgerAmountLockedWhilePaymentOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.booking(t, domain.OrderStatusConfirmed)
	ref := bookingRef(booking)

	changeAmount := func() error {
		_, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: booking.ID, Amount: 90000, Actor: photographer})
		return err
	}
	addService := func() error {
		_, err := f.ledger.AddBookingService(ctx, AddBookingServiceCommand{
			BookingID: booking.ID,
			Actor:     photographer,
			Service:   BookingServiceInput{Name: "Album", Price: 9000},
		})
		return err
	}

	first, err := f.gateway.CreatePayment(ctx, CreatePaymentCommand{UserID: client.ID, Order: ref, Method: "card"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := changeAmount(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState with a pending payment, got %v", err)
	}
	if err := addService(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState adding a service with a pending payment, got %v", err)
	}

	if _, err := f.gateway.UpdateStatus(ctx, UpdatePaymentStatusCommand{PaymentID: first.ID, Status: domain.PaymentStatusFailed}); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if _, err := f.ledger.SetFinalAmount(ctx, SetFinalAmountCommand{BookingID: booking.ID, Amount: 40000, Actor: photographer}); err != nil {
		t.Fatalf("expected a failed payment to reopen the amount: %v", err)
	}

	second, err := f.gateway.CreatePayment(ctx, CreatePaymentCommand{UserID: client.ID, Order: ref, Method: "card"})
	if err != nil {
		t.Fatalf("create second payment: %v", err)
	}
	if _, err := f.gateway.UpdateStatus(ctx, UpdatePaymentStatusCommand{PaymentID: second.ID, Status: domain.PaymentStatusCompleted}); err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if err := changeAmount(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on a paid booking, got %v", err)
	}
	if err := addService(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState adding a service to a paid booking, got %v", err)
	}

	order, err := f.ledger.GetOrder(ctx, ref)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.PayableAmount() != second.Amount || second.Amount != 40000 {
		t.Fatalf("expected order and payment to agree on 40000, got order %d payment %d", order.PayableAmount(), second.Amount)
	}
}

func TestOrderLedgerBookingServices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.booking(t, domain.OrderStatusPending)
	added, err := f.ledger.AddBookingService(ctx, AddBookingServiceCommand{
		BookingID: pending.ID,
		Actor:     photographer,
		Service:   BookingServiceInput{Name: "Prints", Price: 2000},
	})
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	if len(added.Services) != 2 || added.PayableAmount() != 37000 {
		t.Fatalf("expected two services totalling 37000, got %#v", added.Services)
	}
	removed, err := f.ledger.RemoveBookingService(ctx, RemoveBookingServiceCommand{BookingID: pending.ID, Actor: client, Index: 0})
	if err != nil {
		t.Fatalf("remove service: %v", err)
	}
	if len(removed.Services) != 1 || removed.Services[0].Name != "Prints" {
		t.Fatalf("unexpected services after removal: %#v", removed.Services)
	}

	confirmed := f.booking(t, domain.OrderStatusConfirmed)
	if _, err := f.ledger.AddBookingService(ctx, AddBookingServiceCommand{
		BookingID: confirmed.ID,
		Actor:     photographer,
		Service:   BookingServiceInput{Name: "Album", Price: 9000},
	}); err != nil {
		t.Fatalf("expected append after confirmation: %v", err)
	}
	if _, err := f.ledger.RemoveBookingService(ctx, RemoveBookingServiceCommand{BookingID: confirmed.ID, Actor: photographer, Index: 0}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState removing after confirmation, got %v", err)
	}
	if _, err := f.ledger.AddBookingService(ctx, AddBookingServiceCommand{
		BookingID: confirmed.ID,
		Actor:     stranger,
		Service:   BookingServiceInput{Name: "Album", Price: 9000},
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
}

func TestOrderLedgerRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.booking(t, domain.OrderStatusConfirmed)
	ref := OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID}

	paid, err := f.ledger.RecordPayment(ctx, RecordOrderPaymentCommand{Ref: ref, PaymentID: "pay_1", Paid: true})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	mark := paid.PaymentMark()
	if !mark.Paid || derefString(mark.PaymentID) != "pay_1" || mark.PaidAt == nil {
		t.Fatalf("unexpected payment mark: %#v", mark)
	}
	if paid.Status() != domain.OrderStatusConfirmed {
		t.Fatalf("expected delivery status untouched, got %s", paid.Status())
	}

	again, err := f.ledger.RecordPayment(ctx, RecordOrderPaymentCommand{Ref: ref, PaymentID: "pay_1", Paid: true})
	if err != nil || again.Version() != paid.Version() {
		t.Fatalf("expected idempotent re-record without a write, got version %d err %v", again.Version(), err)
	}
	if _, err := f.ledger.RecordPayment(ctx, RecordOrderPaymentCommand{Ref: ref, PaymentID: "pay_2", Paid: true}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for second payment, got %v", err)
	}

	cleared, err := f.ledger.RecordPayment(ctx, RecordOrderPaymentCommand{Ref: ref, PaymentID: "pay_1", Paid: false})
	if err != nil {
		t.Fatalf("clear payment: %v", err)
	}
	if cleared.PaymentMark().Paid {
		t.Fatalf("expected paid flag cleared")
	}
}

func TestOrderLedgerGetOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.GetOrder(context.Background(), OrderRef{Type: domain.OrderTypeRetouch, ID: "rto_missing"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	_, err = f.ledger.GetOrder(context.Background(), OrderRef{Type: "invoice", ID: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

func TestNewOrderLedgerRequiresRepositories(t *testing.T) {
	if _, err := NewOrderLedger(OrderLedgerDeps{}); err == nil {
		t.Fatalf("expected error without repositories")
	}
}
