package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/lensmarket/api/internal/domain"
)

const (
	instrumentationName = "github.com/lensmarket/api/internal/services"

	defaultCompensationTimeout = 10 * time.Second
)

// CoordinatorDeps bundles collaborators required to construct the consistency coordinator.
type CoordinatorDeps struct {
	Ledger   OrderLedger
	Payments PaymentGateway
	Assets   AssetStore
	Notifier Notifier
	Retry    RetryPolicy
	// CompensationTimeout bounds the compensating write issued after the
	// caller's context has already been cancelled.
	CompensationTimeout time.Duration
	Tracer              trace.Tracer
	Meter               metric.Meter
	Clock               func() time.Time
	IDGenerator         func() string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type coordinator struct {
	ledger   OrderLedger
	payments PaymentGateway
	assets   AssetStore
	retry    RetryPolicy

	compensationTimeout time.Duration

	tracer        trace.Tracer
	retries       metric.Int64Counter
	compensations metric.Int64Counter

	logger logFunc
	notify notifier
}

// NewConsistencyCoordinator wires dependencies into a concrete ConsistencyCoordinator.
func NewConsistencyCoordinator(deps CoordinatorDeps) (ConsistencyCoordinator, error) {
	if deps.Ledger == nil {
		return nil, errors.New("coordinator: order ledger is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("coordinator: payment gateway is required")
	}
	if deps.Assets == nil {
		return nil, errors.New("coordinator: asset store is required")
	}

	clock := defaultClock(deps.Clock)
	newID := defaultIDGenerator(deps.IDGenerator)
	logger := defaultLogger(deps.Logger)

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	retries, err := meter.Int64Counter(
		"coordinator.retries",
		metric.WithDescription("Conflicting writes retried by the coordinator"),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator: register retry metric: %w", err)
	}
	compensations, err := meter.Int64Counter(
		"coordinator.compensations",
		metric.WithDescription("Retouched photos left unlinked after a failed completion"),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator: register compensation metric: %w", err)
	}

	timeout := deps.CompensationTimeout
	if timeout <= 0 {
		timeout = defaultCompensationTimeout
	}

	return &coordinator{
		ledger:              deps.Ledger,
		payments:            deps.Payments,
		assets:              deps.Assets,
		retry:               deps.Retry.normalised(),
		compensationTimeout: timeout,
		tracer:              tracer,
		retries:             retries,
		compensations:       compensations,
		logger:              logger,
		notify:              notifier{target: deps.Notifier, clock: clock, newID: newID, logger: logger},
	}, nil
}

// PayForOrder opens a pending payment. Nothing downstream runs until the
// provider confirms, so a failure here needs no compensation.
func (c *coordinator) PayForOrder(ctx context.Context, cmd CreatePaymentCommand) (Payment, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.PayForOrder", trace.WithAttributes(
		attribute.String("order.type", string(cmd.Order.Type)),
		attribute.String("order.id", cmd.Order.ID),
	))
	defer span.End()

	payment, err := c.payments.CreatePayment(ctx, cmd)
	if err != nil {
		recordSpanError(span, err)
		return Payment{}, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID))
	return payment, nil
}

// ConfirmPayment applies a provider status update, retrying lost conditional writes.
func (c *coordinator) ConfirmPayment(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.ConfirmPayment", trace.WithAttributes(
		attribute.String("payment.id", cmd.PaymentID),
		attribute.String("payment.status", string(cmd.Status)),
	))
	defer span.End()

	var payment Payment
	err := retryOnConflict(ctx, c.retry, c.onRetry(ctx, "confirm_payment", cmd.PaymentID), func(ctx context.Context) error {
		var err error
		payment, err = c.payments.UpdateStatus(ctx, cmd)
		return err
	})
	if errors.Is(err, ErrInvalidTransition) {
		err = c.replaySettlement(ctx, cmd, err)
	}
	if err != nil {
		recordSpanError(span, err)
		return payment, err
	}
	return payment, nil
}

// replaySettlement handles a redelivered settlement or refund. The payment
// already carries the status, but an earlier delivery may have failed to reach
// the order, so the stored status is pushed onto it again. The original
// transition error is kept unless that replay fails.
func (c *coordinator) replaySettlement(ctx context.Context, cmd UpdatePaymentStatusCommand, cause error) error {
	switch cmd.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
	default:
		return cause
	}
	payment, err := c.payments.GetPayment(ctx, cmd.PaymentID)
	if err != nil || payment.Status != cmd.Status {
		return cause
	}
	if _, err := c.payments.SyncOrderPayment(ctx, payment.ID); err != nil {
		c.logger(ctx, "payment.replay.failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
		return err
	}
	return cause
}

// CompleteRetouchOrder stores the retouched photo and completes the order.
// The photo is created flagged unlinked and only cleared once the order points
// at it, so any failure after the upload leaves a soft orphan for the cleanup
// pass rather than a half-completed order.
func (c *coordinator) CompleteRetouchOrder(ctx context.Context, cmd CompleteRetouchOrderCommand) (RetouchOrder, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	ctx, span := c.tracer.Start(ctx, "coordinator.CompleteRetouchOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("actor.id", cmd.Actor.ID),
	))
	defer span.End()

	if orderID == "" {
		err := fmt.Errorf("%w: order id is required", ErrInvalidInput)
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}

	ref := OrderRef{Type: domain.OrderTypeRetouch, ID: orderID}
	order, err := c.ledger.GetOrder(ctx, ref)
	if err != nil {
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}
	retouch := *order.Retouch
	if cmd.Actor.ID == "" || retouch.RetoucherID != cmd.Actor.ID {
		err := fmt.Errorf("%w: only the assigned retoucher may complete %s", ErrForbidden, retouch.ID)
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}
	observed := retouch.Status
	if !CanTransition(domain.OrderTypeRetouch, observed, domain.OrderStatusCompleted) {
		err := fmt.Errorf("%w: retouch order %s is %s", ErrInvalidTransition, retouch.ID, observed)
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}

	source, err := c.assets.GetAsset(ctx, AssetRef{Kind: domain.AssetKindPhoto, ID: retouch.SourcePhotoID})
	if err != nil {
		err = fmt.Errorf("load source photo %s: %w", retouch.SourcePhotoID, err)
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}

	uploaded, err := c.assets.Upload(ctx, UploadAssetCommand{
		Kind:           domain.AssetKindPhoto,
		OwnerID:        source.Photo.BookingID,
		ImagePath:      cmd.Asset.ImagePath,
		Title:          cmd.Asset.Title,
		Description:    cmd.Asset.Description,
		IsPublic:       cmd.Asset.IsPublic,
		RetouchOrderID: &retouch.ID,
		Unlinked:       true,
	})
	if err != nil {
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}
	photoID := uploaded.ID()
	span.SetAttributes(attribute.String("photo.id", photoID))

	var advanced Order
	err = retryOnConflict(ctx, c.retry, c.onRetry(ctx, "complete_retouch_order", retouch.ID), func(ctx context.Context) error {
		var err error
		advanced, err = c.ledger.Advance(ctx, AdvanceOrderCommand{
			Ref:              ref,
			Target:           domain.OrderStatusCompleted,
			Actor:            cmd.Actor,
			ExpectedStatus:   &observed,
			RetouchedPhotoID: &photoID,
		})
		if errors.Is(err, ErrConcurrentModification) {
			// A cancellation that won the race cannot be retried past.
			if current, getErr := c.ledger.GetOrder(ctx, ref); getErr == nil && !CanTransition(domain.OrderTypeRetouch, current.Status(), domain.OrderStatusCompleted) {
				return fmt.Errorf("%w: retouch order %s became %s", ErrInvalidTransition, retouch.ID, current.Status())
			}
		}
		return err
	})
	if err != nil {
		c.compensate(ctx, retouch, photoID, err)
		err = fmt.Errorf("%w: %w", ErrCompletionConflict, err)
		recordSpanError(span, err)
		return RetouchOrder{}, err
	}

	if _, err := c.assets.MarkLinked(ctx, photoID); err != nil {
		// The cleanup pass re-checks references and relinks referenced photos.
		c.logger(ctx, "retouch.complete.mark_linked.failed", map[string]any{
			"order": retouch.ID,
			"photo": photoID,
			"error": err.Error(),
		})
	}

	c.logger(ctx, "retouch.completed", map[string]any{
		"order": retouch.ID,
		"photo": photoID,
		"actor": cmd.Actor.ID,
	})
	return *advanced.Retouch, nil
}

// compensate refreshes the unlinked flag on the orphaned photo so its grace
// period starts now. It runs detached from the caller's cancellation because a
// timeout is one of the failures it handles.
func (c *coordinator) compensate(ctx context.Context, order RetouchOrder, photoID string, cause error) {
	c.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "complete_retouch_order")))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compensationTimeout)
	defer cancel()

	if _, err := c.assets.MarkUnlinked(cctx, photoID); err != nil {
		c.logger(ctx, "retouch.compensation.failed", map[string]any{
			"order": order.ID,
			"photo": photoID,
			"error": err.Error(),
		})
	}
	c.logger(ctx, "retouch.completion.conflict", map[string]any{
		"order": order.ID,
		"photo": photoID,
		"cause": cause.Error(),
	})
	c.notify.emit(cctx, domain.NotificationIntent{
		UserID:  order.RetoucherID,
		Type:    "retouch_order.completion_conflict",
		Message: fmt.Sprintf("Retouch order %s could not be completed; the uploaded photo was kept aside", order.ID),
		Order:   &OrderRef{Type: domain.OrderTypeRetouch, ID: order.ID},
		Metadata: map[string]string{
			"photo": photoID,
		},
	})
}

func (c *coordinator) onRetry(ctx context.Context, operation, id string) func(int, error) {
	return func(attempt int, err error) {
		c.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
		c.logger(ctx, "coordinator.retry", map[string]any{
			"operation": operation,
			"id":        id,
			"attempt":   attempt,
			"error":     err.Error(),
		})
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
