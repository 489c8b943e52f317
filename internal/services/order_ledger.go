package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/platform/textutil"
	"github.com/lensmarket/api/internal/repositories"
)

const (
	bookingIDPrefix = "bkg_"
	retouchIDPrefix = "rto_"

	maxServiceNameLength   = 120
	maxDescriptionLength   = 2000
	maxRequirementsLength  = 4000
	defaultCurrency        = "USD"
	notificationOrderState = "order.status.changed"
)

var bookingTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

var retouchTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusInProgress, domain.OrderStatusCancelled},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// CanTransition reports whether the transition table allows moving an order of
// the given type from current to target. Re-applying the current status is
// never allowed.
func CanTransition(orderType domain.OrderType, current, target domain.OrderStatus) bool {
	var table map[domain.OrderStatus][]domain.OrderStatus
	switch orderType {
	case domain.OrderTypeBooking:
		table = bookingTransitions
	case domain.OrderTypeRetouch:
		table = retouchTransitions
	default:
		return false
	}
	return slices.Contains(table[current], target)
}

// OrderLedgerDeps bundles collaborators required to construct the order ledger.
type OrderLedgerDeps struct {
	Bookings        repositories.BookingRepository
	RetouchOrders   repositories.RetouchOrderRepository
	Photos          repositories.PhotoRepository
	Payments        repositories.PaymentRepository
	Notifier        Notifier
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderLedger struct {
	bookings repositories.BookingRepository
	retouch  repositories.RetouchOrderRepository
	photos   repositories.PhotoRepository
	payments repositories.PaymentRepository
	currency string
	clock    func() time.Time
	newID    func() string
	logger   logFunc
	notify   notifier
}

// NewOrderLedger wires dependencies into a concrete OrderLedger implementation.
func NewOrderLedger(deps OrderLedgerDeps) (OrderLedger, error) {
	if deps.Bookings == nil {
		return nil, errors.New("order ledger: booking repository is required")
	}
	if deps.RetouchOrders == nil {
		return nil, errors.New("order ledger: retouch order repository is required")
	}
	if deps.Photos == nil {
		return nil, errors.New("order ledger: photo repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order ledger: payment repository is required")
	}

	currency, err := textutil.NormalizeCurrency(deps.DefaultCurrency, defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("order ledger: default currency: %w", err)
	}

	clock := defaultClock(deps.Clock)
	newID := defaultIDGenerator(deps.IDGenerator)
	logger := defaultLogger(deps.Logger)

	return &orderLedger{
		bookings: deps.Bookings,
		retouch:  deps.RetouchOrders,
		photos:   deps.Photos,
		payments: deps.Payments,
		currency: currency,
		clock:    clock,
		newID:    newID,
		logger:   logger,
		notify:   notifier{target: deps.Notifier, clock: clock, newID: newID, logger: logger},
	}, nil
}

func (s *orderLedger) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error) {
	clientID := strings.TrimSpace(cmd.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(cmd.Actor.ID)
	}
	photographerID := strings.TrimSpace(cmd.PhotographerID)

	switch {
	case clientID == "":
		return Booking{}, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	case photographerID == "":
		return Booking{}, fmt.Errorf("%w: photographer id is required", ErrInvalidInput)
	case clientID == photographerID:
		return Booking{}, fmt.Errorf("%w: client and photographer must differ", ErrInvalidInput)
	case cmd.BookingDate.IsZero():
		return Booking{}, fmt.Errorf("%w: booking date is required", ErrInvalidInput)
	case cmd.InitialAmount < 0:
		return Booking{}, fmt.Errorf("%w: initial amount must not be negative", ErrInvalidInput)
	}
	if cmd.Actor.ID != clientID && !cmd.Actor.IsAdmin() {
		return Booking{}, fmt.Errorf("%w: bookings are opened by the client or an administrator", ErrForbidden)
	}

	currency, err := textutil.NormalizeCurrency(cmd.Currency, s.currency)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.clock()
	services := make([]BookingService, 0, len(cmd.Services))
	for _, input := range cmd.Services {
		svc, err := s.buildService(input, now)
		if err != nil {
			return Booking{}, err
		}
		services = append(services, svc)
	}

	booking := Booking{
		ID:              bookingIDPrefix + s.newID(),
		ClientID:        clientID,
		PhotographerID:  photographerID,
		BookingDate:     cmd.BookingDate.UTC(),
		Status:          domain.OrderStatusPending,
		InitialAmount:   cmd.InitialAmount,
		Currency:        currency,
		DeliveredPublic: cmd.DeliveredPublic,
		Services:        services,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.bookings.Insert(ctx, booking); err != nil {
		return Booking{}, mapRepositoryError(err, ErrOrderNotFound)
	}

	s.logger(ctx, "booking.created", map[string]any{
		"booking":      booking.ID,
		"client":       booking.ClientID,
		"photographer": booking.PhotographerID,
	})
	s.notify.emit(ctx, domain.NotificationIntent{
		UserID:  booking.PhotographerID,
		Type:    "booking.requested",
		Message: fmt.Sprintf("New booking request %s for %s", booking.ID, booking.BookingDate.Format("2006-01-02")),
		Order:   valuePtr(domain.OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID}),
	})

	return booking, nil
}

func (s *orderLedger) CreateRetouchOrder(ctx context.Context, cmd CreateRetouchOrderCommand) (RetouchOrder, error) {
	clientID := strings.TrimSpace(cmd.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(cmd.Actor.ID)
	}
	retoucherID := strings.TrimSpace(cmd.RetoucherID)
	sourcePhotoID := strings.TrimSpace(cmd.SourcePhotoID)

	switch {
	case clientID == "":
		return RetouchOrder{}, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	case retoucherID == "":
		return RetouchOrder{}, fmt.Errorf("%w: retoucher id is required", ErrInvalidInput)
	case clientID == retoucherID:
		return RetouchOrder{}, fmt.Errorf("%w: client and retoucher must differ", ErrInvalidInput)
	case sourcePhotoID == "":
		return RetouchOrder{}, fmt.Errorf("%w: source photo id is required", ErrInvalidInput)
	case cmd.Price < 0:
		return RetouchOrder{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if cmd.Actor.ID != clientID && !cmd.Actor.IsAdmin() {
		return RetouchOrder{}, fmt.Errorf("%w: retouch orders are opened by the client or an administrator", ErrForbidden)
	}

	if _, err := s.photos.FindByID(ctx, sourcePhotoID); err != nil {
		if errors.Is(mapRepositoryError(err, ErrAssetNotFound), ErrAssetNotFound) {
			return RetouchOrder{}, fmt.Errorf("%w: source photo %s does not exist", ErrInvalidInput, sourcePhotoID)
		}
		return RetouchOrder{}, mapRepositoryError(err, ErrAssetNotFound)
	}

	currency, err := textutil.NormalizeCurrency(cmd.Currency, s.currency)
	if err != nil {
		return RetouchOrder{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.clock()
	order := RetouchOrder{
		ID:            retouchIDPrefix + s.newID(),
		ClientID:      clientID,
		RetoucherID:   retoucherID,
		SourcePhotoID: sourcePhotoID,
		Status:        domain.OrderStatusPending,
		Price:         cmd.Price,
		Currency:      currency,
		Requirements:  textutil.PlainText(cmd.Requirements, maxRequirementsLength),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.retouch.Insert(ctx, order); err != nil {
		return RetouchOrder{}, mapRepositoryError(err, ErrOrderNotFound)
	}

	s.logger(ctx, "retouch_order.created", map[string]any{
		"retouchOrder": order.ID,
		"client":       order.ClientID,
		"retoucher":    order.RetoucherID,
	})
	s.notify.emit(ctx, domain.NotificationIntent{
		UserID:  order.RetoucherID,
		Type:    "retouch_order.requested",
		Message: fmt.Sprintf("New retouch request %s", order.ID),
		Order:   valuePtr(domain.OrderRef{Type: domain.OrderTypeRetouch, ID: order.ID}),
	})

	return order, nil
}

func (s *orderLedger) GetOrder(ctx context.Context, ref OrderRef) (Order, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	switch ref.Type {
	case domain.OrderTypeBooking:
		booking, err := s.bookings.FindByID(ctx, id)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		return domain.BookingOrder(booking), nil
	case domain.OrderTypeRetouch:
		order, err := s.retouch.FindByID(ctx, id)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		return domain.RetouchOrderOf(order), nil
	default:
		return Order{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidInput, ref.Type)
	}
}

func (s *orderLedger) Advance(ctx context.Context, cmd AdvanceOrderCommand) (Order, error) {
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.Target)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrInvalidInput)
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return Order{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}

	order, err := s.GetOrder(ctx, cmd.Ref)
	if err != nil {
		return Order{}, err
	}

	actor := cmd.Actor
	if !isParty(actor, order) && !actor.IsAdmin() {
		return Order{}, fmt.Errorf("%w: actor %s is not a party to %s", ErrForbidden, actor.ID, order.Ref())
	}

	current := order.Status()
	if cmd.ExpectedStatus != nil && *cmd.ExpectedStatus != current {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrConcurrentModification, *cmd.ExpectedStatus, current)
	}
	if !CanTransition(order.Type, current, target) {
		return Order{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, order.Type, current, target)
	}
	if err := authorizeTransition(actor, order, current, target); err != nil {
		return Order{}, err
	}

	now := s.clock()
	var updated Order
	switch order.Type {
	case domain.OrderTypeBooking:
		if cmd.RetouchedPhotoID != nil {
			return Order{}, fmt.Errorf("%w: bookings do not carry a retouched photo", ErrInvalidInput)
		}
		booking := *order.Booking
		applyBookingTransition(&booking, target, now)
		saved, err := s.bookings.Update(ctx, booking)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		updated = domain.BookingOrder(saved)
	case domain.OrderTypeRetouch:
		retouch := *order.Retouch
		if err := applyRetouchTransition(&retouch, target, cmd.RetouchedPhotoID, now); err != nil {
			return Order{}, err
		}
		if target == domain.OrderStatusCompleted {
			if err := s.checkRetouchedPhoto(ctx, retouch); err != nil {
				return Order{}, err
			}
		}
		saved, err := s.retouch.Update(ctx, retouch)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		updated = domain.RetouchOrderOf(saved)
	}

	s.logger(ctx, notificationOrderState, map[string]any{
		"order":    updated.Ref().String(),
		"previous": string(current),
		"current":  string(target),
		"actor":    actor.ID,
	})
	s.notifyTransition(ctx, actor, updated, target, strings.TrimSpace(cmd.Reason))

	return updated, nil
}

func (s *orderLedger) SetFinalAmount(ctx context.Context, cmd SetFinalAmountCommand) (Booking, error) {
	if cmd.Amount < 0 {
		return Booking{}, fmt.Errorf("%w: final amount must not be negative", ErrInvalidInput)
	}

	booking, err := s.loadBooking(ctx, cmd.BookingID)
	if err != nil {
		return Booking{}, err
	}
	if cmd.Actor.ID != booking.PhotographerID && !cmd.Actor.IsAdmin() {
		return Booking{}, fmt.Errorf("%w: only the photographer may set the final amount", ErrForbidden)
	}
	if booking.Status != domain.OrderStatusConfirmed {
		return Booking{}, fmt.Errorf("%w: final amount can only be set on confirmed bookings (status %s)", ErrInvalidState, booking.Status)
	}
	if err := s.checkAmountOpen(ctx, booking); err != nil {
		return Booking{}, err
	}

	booking.FinalAmount = valuePtr(cmd.Amount)
	booking.UpdatedAt = s.clock()

	saved, err := s.bookings.Update(ctx, booking)
	if err != nil {
		return Booking{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	s.logger(ctx, "booking.final_amount.set", map[string]any{
		"booking": saved.ID,
		"amount":  cmd.Amount,
		"actor":   cmd.Actor.ID,
	})
	return saved, nil
}

func (s *orderLedger) AddBookingService(ctx context.Context, cmd AddBookingServiceCommand) (Booking, error) {
	booking, err := s.loadBooking(ctx, cmd.BookingID)
	if err != nil {
		return Booking{}, err
	}
	if !isParty(cmd.Actor, domain.BookingOrder(booking)) && !cmd.Actor.IsAdmin() {
		return Booking{}, fmt.Errorf("%w: actor is not a party to booking %s", ErrForbidden, booking.ID)
	}
	if booking.Status.Terminal() {
		return Booking{}, fmt.Errorf("%w: booking %s is %s", ErrInvalidState, booking.ID, booking.Status)
	}
	if err := s.checkAmountOpen(ctx, booking); err != nil {
		return Booking{}, err
	}

	now := s.clock()
	svc, err := s.buildService(cmd.Service, now)
	if err != nil {
		return Booking{}, err
	}
	booking.Services = append(booking.Services, svc)
	booking.UpdatedAt = now

	saved, err := s.bookings.Update(ctx, booking)
	if err != nil {
		return Booking{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return saved, nil
}

func (s *orderLedger) RemoveBookingService(ctx context.Context, cmd RemoveBookingServiceCommand) (Booking, error) {
	booking, err := s.loadBooking(ctx, cmd.BookingID)
	if err != nil {
		return Booking{}, err
	}
	if !isParty(cmd.Actor, domain.BookingOrder(booking)) && !cmd.Actor.IsAdmin() {
		return Booking{}, fmt.Errorf("%w: actor is not a party to booking %s", ErrForbidden, booking.ID)
	}
	// Service lines become append-only once the booking leaves pending.
	if booking.Status != domain.OrderStatusPending {
		return Booking{}, fmt.Errorf("%w: services can only be removed while pending", ErrInvalidState)
	}
	if cmd.Index < 0 || cmd.Index >= len(booking.Services) {
		return Booking{}, fmt.Errorf("%w: service index %d out of range", ErrInvalidInput, cmd.Index)
	}

	booking.Services = slices.Delete(booking.Services, cmd.Index, cmd.Index+1)
	booking.UpdatedAt = s.clock()

	saved, err := s.bookings.Update(ctx, booking)
	if err != nil {
		return Booking{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return saved, nil
}

func (s *orderLedger) RecordPayment(ctx context.Context, cmd RecordOrderPaymentCommand) (Order, error) {
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		return Order{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}

	order, err := s.GetOrder(ctx, cmd.Ref)
	if err != nil {
		return Order{}, err
	}

	mark := order.PaymentMark()
	owner := derefString(mark.PaymentID)
	var next domain.PaymentMark
	switch {
	case cmd.Paid && mark.Paid && owner == paymentID:
		return order, nil
	case cmd.Paid && mark.Paid:
		return Order{}, fmt.Errorf("%w: %s already paid by %s", ErrInvalidState, order.Ref(), owner)
	case cmd.Paid:
		if order.Status() == domain.OrderStatusCancelled {
			return Order{}, fmt.Errorf("%w: %s is cancelled", ErrOrderNotPayable, order.Ref())
		}
		now := s.clock()
		next = domain.PaymentMark{Paid: true, PaidAt: &now, PaymentID: valuePtr(paymentID)}
	case !mark.Paid:
		return order, nil
	case owner != paymentID:
		return Order{}, fmt.Errorf("%w: %s is paid by %s, not %s", ErrInvalidState, order.Ref(), owner, paymentID)
	default:
		next = domain.PaymentMark{}
	}

	now := s.clock()
	var saved Order
	switch order.Type {
	case domain.OrderTypeBooking:
		booking := *order.Booking
		booking.Payment = next
		booking.UpdatedAt = now
		stored, err := s.bookings.Update(ctx, booking)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		saved = domain.BookingOrder(stored)
	case domain.OrderTypeRetouch:
		retouch := *order.Retouch
		retouch.Payment = next
		retouch.UpdatedAt = now
		stored, err := s.retouch.Update(ctx, retouch)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrOrderNotFound)
		}
		saved = domain.RetouchOrderOf(stored)
	}

	s.logger(ctx, "order.payment.recorded", map[string]any{
		"order":   saved.Ref().String(),
		"payment": paymentID,
		"paid":    cmd.Paid,
	})
	return saved, nil
}

// checkAmountOpen rejects price changes once the booking is paid or a payment
// for it is pending, so the order keeps agreeing with the amount charged.
func (s *orderLedger) checkAmountOpen(ctx context.Context, booking Booking) error {
	if booking.Payment.Paid {
		return fmt.Errorf("%w: booking %s is already paid", ErrInvalidState, booking.ID)
	}
	payments, err := s.payments.ListByOrder(ctx, OrderRef{Type: domain.OrderTypeBooking, ID: booking.ID})
	if err != nil {
		return mapRepositoryError(err, ErrPaymentNotFound)
	}
	for _, p := range payments {
		if p.Active() {
			return fmt.Errorf("%w: booking %s has payment %s (%s)", ErrInvalidState, booking.ID, p.ID, p.Status)
		}
	}
	return nil
}

// checkRetouchedPhoto requires the delivered photo to exist and to have been
// uploaded for this order.
func (s *orderLedger) checkRetouchedPhoto(ctx context.Context, order RetouchOrder) error {
	photoID := derefString(order.RetouchedPhotoID)
	photo, err := s.photos.FindByID(ctx, photoID)
	if err != nil {
		if errors.Is(mapRepositoryError(err, ErrAssetNotFound), ErrAssetNotFound) {
			return fmt.Errorf("%w: retouched photo %s does not exist", ErrInvalidInput, photoID)
		}
		return mapRepositoryError(err, ErrAssetNotFound)
	}
	if derefString(photo.RetouchOrderID) != order.ID {
		return fmt.Errorf("%w: photo %s was not uploaded for %s", ErrInvalidInput, photoID, order.ID)
	}
	return nil
}

func (s *orderLedger) loadBooking(ctx context.Context, bookingID string) (Booking, error) {
	order, err := s.GetOrder(ctx, OrderRef{Type: domain.OrderTypeBooking, ID: bookingID})
	if err != nil {
		return Booking{}, err
	}
	return *order.Booking, nil
}

func (s *orderLedger) buildService(input BookingServiceInput, now time.Time) (BookingService, error) {
	name := textutil.PlainText(input.Name, maxServiceNameLength)
	if name == "" {
		return BookingService{}, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if input.Price < 0 {
		return BookingService{}, fmt.Errorf("%w: service price must not be negative", ErrInvalidInput)
	}
	return BookingService{
		Name:        name,
		Description: textutil.PlainText(input.Description, maxDescriptionLength),
		Price:       input.Price,
		AddedAt:     now,
	}, nil
}

func (s *orderLedger) notifyTransition(ctx context.Context, actor Actor, order Order, target domain.OrderStatus, reason string) {
	ref := order.Ref()
	kind := "booking"
	if order.Type == domain.OrderTypeRetouch {
		kind = "retouch_order"
	}

	var recipients []string
	var message string
	switch target {
	case domain.OrderStatusConfirmed:
		recipients = []string{order.ClientID()}
		message = fmt.Sprintf("Your booking %s was confirmed", ref.ID)
	case domain.OrderStatusInProgress:
		recipients = []string{order.ClientID()}
		message = fmt.Sprintf("Work started on your retouch order %s", ref.ID)
	case domain.OrderStatusCompleted:
		recipients = []string{order.ClientID()}
		message = fmt.Sprintf("Your %s %s was completed", strings.ReplaceAll(kind, "_", " "), ref.ID)
	case domain.OrderStatusCancelled:
		switch actor.ID {
		case order.ClientID():
			recipients = []string{order.ProviderID()}
		case order.ProviderID():
			recipients = []string{order.ClientID()}
		default:
			recipients = []string{order.ClientID(), order.ProviderID()}
		}
		message = fmt.Sprintf("%s %s was cancelled", strings.ReplaceAll(kind, "_", " "), ref.ID)
		if reason != "" {
			message += ": " + reason
		}
	}

	for _, userID := range recipients {
		s.notify.emit(ctx, domain.NotificationIntent{
			UserID:   userID,
			Type:     kind + "." + string(target),
			Message:  message,
			Order:    &ref,
			Metadata: map[string]string{"actor": actor.ID},
		})
	}
}

func isParty(actor Actor, order Order) bool {
	id := strings.TrimSpace(actor.ID)
	return id != "" && (id == order.ClientID() || id == order.ProviderID())
}

// authorizeTransition applies the actor rules: clients cancel their own
// pending orders, providers move their orders forward, administrators may
// force a cancellation.
func authorizeTransition(actor Actor, order Order, current, target domain.OrderStatus) error {
	if target == domain.OrderStatusCancelled {
		if actor.IsAdmin() {
			return nil
		}
		if actor.ID == order.ClientID() && current == domain.OrderStatusPending {
			return nil
		}
		return fmt.Errorf("%w: actor %s may not cancel %s in status %s", ErrForbidden, actor.ID, order.Ref(), current)
	}
	if actor.ID != order.ProviderID() {
		return fmt.Errorf("%w: only the provider may move %s to %s", ErrForbidden, order.Ref(), target)
	}
	return nil
}

func applyBookingTransition(booking *Booking, target domain.OrderStatus, now time.Time) {
	booking.Status = target
	booking.UpdatedAt = now
	switch target {
	case domain.OrderStatusCompleted:
		booking.CompletedAt = &now
		if booking.FinalAmount == nil {
			booking.FinalAmount = valuePtr(booking.PayableAmount())
		}
	case domain.OrderStatusCancelled:
		booking.CancelledAt = &now
	}
}

func applyRetouchTransition(order *RetouchOrder, target domain.OrderStatus, photoID *string, now time.Time) error {
	id := strings.TrimSpace(derefString(photoID))
	if target == domain.OrderStatusCompleted {
		if id == "" {
			return fmt.Errorf("%w: retouched photo id is required to complete %s", ErrInvalidInput, order.ID)
		}
	} else if photoID != nil {
		return fmt.Errorf("%w: retouched photo id is only accepted on completion", ErrInvalidInput)
	}

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusCompleted:
		order.RetouchedPhotoID = &id
		order.CompletedAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}
