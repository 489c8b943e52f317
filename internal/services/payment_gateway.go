package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/repositories"
)

const (
	paymentIDPrefix = "pay_"

	maxPaymentMethodLength = 32
)

var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending:   {domain.PaymentStatusCompleted, domain.PaymentStatusFailed},
	domain.PaymentStatusCompleted: {domain.PaymentStatusRefunded},
}

// PaymentGatewayDeps bundles collaborators required to construct the payment gateway.
type PaymentGatewayDeps struct {
	Payments    repositories.PaymentRepository
	Ledger      OrderLedger
	Notifier    Notifier
	Retry       RetryPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentGateway struct {
	payments repositories.PaymentRepository
	ledger   OrderLedger
	retry    RetryPolicy
	clock    func() time.Time
	newID    func() string
	logger   logFunc
	notify   notifier
}

// NewPaymentGateway wires dependencies into a concrete PaymentGateway implementation.
func NewPaymentGateway(deps PaymentGatewayDeps) (PaymentGateway, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment gateway: payment repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("payment gateway: order ledger is required")
	}

	clock := defaultClock(deps.Clock)
	newID := defaultIDGenerator(deps.IDGenerator)
	logger := defaultLogger(deps.Logger)

	return &paymentGateway{
		payments: deps.Payments,
		ledger:   deps.Ledger,
		retry:    deps.Retry.normalised(),
		clock:    clock,
		newID:    newID,
		logger:   logger,
		notify:   notifier{target: deps.Notifier, clock: clock, newID: newID, logger: logger},
	}, nil
}

func (s *paymentGateway) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (Payment, error) {
	userID := strings.TrimSpace(cmd.UserID)
	method := strings.ToLower(strings.TrimSpace(cmd.Method))
	switch {
	case userID == "":
		return Payment{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case !cmd.Order.Type.Valid():
		return Payment{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidInput, cmd.Order.Type)
	case method == "":
		return Payment{}, fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	case len(method) > maxPaymentMethodLength:
		return Payment{}, fmt.Errorf("%w: payment method too long", ErrInvalidInput)
	}

	order, err := s.ledger.GetOrder(ctx, cmd.Order)
	if err != nil {
		return Payment{}, err
	}
	if order.ClientID() != userID {
		return Payment{}, fmt.Errorf("%w: user %s is not the client of %s", ErrForbidden, userID, order.Ref())
	}
	if !payable(order) {
		return Payment{}, fmt.Errorf("%w: %s is %s", ErrOrderNotPayable, order.Ref(), order.Status())
	}

	existing, err := s.payments.ListByOrder(ctx, order.Ref())
	if err != nil {
		return Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	for _, p := range existing {
		if p.Active() {
			return Payment{}, fmt.Errorf("%w: %s already has payment %s (%s)", ErrDuplicateActivePayment, order.Ref(), p.ID, p.Status)
		}
	}

	amount := order.PayableAmount()
	if cmd.RequestedAmount != nil && *cmd.RequestedAmount != amount {
		s.logger(ctx, "payment.amount.ignored", map[string]any{
			"order":     order.Ref().String(),
			"requested": *cmd.RequestedAmount,
			"amount":    amount,
			"user":      userID,
		})
	}

	now := s.clock()
	payment := Payment{
		ID:        paymentIDPrefix + s.newID(),
		UserID:    userID,
		Order:     order.Ref(),
		Amount:    amount,
		Currency:  order.Currency(),
		Method:    method,
		Status:    domain.PaymentStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The repository owns the active slot, so a concurrent creator that passed
	// the check above still fails here.
	if err := s.payments.Insert(ctx, payment); err != nil {
		return Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}

	s.logger(ctx, "payment.created", map[string]any{
		"payment": payment.ID,
		"order":   payment.Order.String(),
		"amount":  payment.Amount,
		"method":  payment.Method,
	})
	return payment, nil
}

func (s *paymentGateway) UpdateStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error) {
	target := domain.PaymentStatus(strings.TrimSpace(string(cmd.Status)))
	if target == "" {
		return Payment{}, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	payment, err := s.GetPayment(ctx, cmd.PaymentID)
	if err != nil {
		return Payment{}, err
	}

	if !slices.Contains(paymentTransitions[payment.Status], target) {
		return Payment{}, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, payment.Status, target)
	}

	if target == domain.PaymentStatusCompleted {
		order, err := s.ledger.GetOrder(ctx, payment.Order)
		if err != nil {
			return Payment{}, err
		}
		if order.Status() == domain.OrderStatusCancelled {
			return Payment{}, fmt.Errorf("%w: %s was cancelled before the payment settled", ErrOrderNotPayable, order.Ref())
		}
	}

	previous := payment.Status
	payment.Status = target
	payment.UpdatedAt = s.clock()
	if txn := strings.TrimSpace(derefString(cmd.TransactionID)); txn != "" {
		payment.TransactionID = &txn
	}

	saved, err := s.payments.Update(ctx, payment)
	if err != nil {
		return Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}

	s.logger(ctx, "payment.status.changed", map[string]any{
		"payment":  saved.ID,
		"order":    saved.Order.String(),
		"previous": string(previous),
		"current":  string(saved.Status),
	})
	s.notify.emit(ctx, domain.NotificationIntent{
		UserID:  saved.UserID,
		Type:    "payment." + string(saved.Status),
		Message: fmt.Sprintf("Payment %s for %s is %s", saved.ID, saved.Order.ID, saved.Status),
		Order:   valuePtr(saved.Order),
	})

	if err := s.propagate(ctx, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

func (s *paymentGateway) SyncOrderPayment(ctx context.Context, paymentID string) (Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	switch payment.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
	default:
		return Payment{}, fmt.Errorf("%w: payment %s is %s", ErrInvalidState, payment.ID, payment.Status)
	}
	if err := s.propagate(ctx, payment); err != nil {
		return payment, err
	}
	return payment, nil
}

func (s *paymentGateway) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payment, nil
}

func (s *paymentGateway) ListByUser(ctx context.Context, userID string) ([]Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payments, nil
}

func (s *paymentGateway) ListByOrder(ctx context.Context, ref OrderRef) ([]Payment, error) {
	if !ref.Type.Valid() || strings.TrimSpace(ref.ID) == "" {
		return nil, fmt.Errorf("%w: order reference is invalid", ErrInvalidInput)
	}
	payments, err := s.payments.ListByOrder(ctx, ref)
	if err != nil {
		return nil, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payments, nil
}

// propagate mirrors a settled or refunded payment onto the order's paid flag.
func (s *paymentGateway) propagate(ctx context.Context, payment Payment) error {
	var paid bool
	switch payment.Status {
	case domain.PaymentStatusCompleted:
		paid = true
	case domain.PaymentStatusRefunded:
		paid = false
	default:
		return nil
	}

	err := retryOnConflict(ctx, s.retry, func(attempt int, err error) {
		s.logger(ctx, "payment.propagation.retry", map[string]any{
			"payment": payment.ID,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}, func(ctx context.Context) error {
		_, err := s.ledger.RecordPayment(ctx, RecordOrderPaymentCommand{
			Ref:       payment.Order,
			PaymentID: payment.ID,
			Paid:      paid,
		})
		return err
	})
	if err != nil {
		s.logger(ctx, "payment.propagation.failed", map[string]any{
			"payment": payment.ID,
			"order":   payment.Order.String(),
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %w", ErrPaymentPropagation, err)
	}
	return nil
}

// payable reports whether the order accepts a new payment: bookings once
// confirmed, retouch orders once delivered.
func payable(order Order) bool {
	switch order.Type {
	case domain.OrderTypeBooking:
		return order.Status() == domain.OrderStatusConfirmed
	case domain.OrderTypeRetouch:
		return order.Status() == domain.OrderStatusCompleted
	default:
		return false
	}
}
