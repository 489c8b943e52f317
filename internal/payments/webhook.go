// Package payments turns payment provider callbacks into status updates for
// the payment gateway. Talking to the provider's API is out of scope; only
// inbound events are handled here.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/services"
)

// PaymentIDMetadataKey is the metadata key that carries our payment id on
// Stripe objects.
const PaymentIDMetadataKey = "payment_id"

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventChargeRefunded  = "charge.refunded"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	ErrMissingPaymentID = errors.New("payments: event carries no payment id")
)

// StripeWebhook verifies and translates Stripe webhook deliveries.
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
}

func NewStripeWebhook(secret string) (*StripeWebhook, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: stripe webhook secret is required")
	}
	return &StripeWebhook{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Translate verifies payload against the Stripe-Signature header. It returns
// ok=false for event types that do not change payment status, including
// partial refunds.
func (w *StripeWebhook) Translate(payload []byte, signature string) (cmd services.UpdatePaymentStatusCommand, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		Tolerance:                w.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return cmd, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return cmd, false, nil
	}

	switch string(event.Type) {
	case eventIntentSucceeded, eventIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return cmd, false, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		status := domain.PaymentStatusCompleted
		if string(event.Type) == eventIntentFailed {
			status = domain.PaymentStatusFailed
		}
		return command(intent.Metadata, intent.ID, status)

	case eventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return cmd, false, fmt.Errorf("payments: decode charge: %w", err)
		}
		if !charge.Refunded {
			return cmd, false, nil
		}
		metadata := charge.Metadata
		transactionID := charge.ID
		if charge.PaymentIntent != nil {
			transactionID = charge.PaymentIntent.ID
			if metadata[PaymentIDMetadataKey] == "" {
				metadata = charge.PaymentIntent.Metadata
			}
		}
		return command(metadata, transactionID, domain.PaymentStatusRefunded)
	}
	return cmd, false, nil
}

func command(metadata map[string]string, transactionID string, status domain.PaymentStatus) (services.UpdatePaymentStatusCommand, bool, error) {
	paymentID := strings.TrimSpace(metadata[PaymentIDMetadataKey])
	if paymentID == "" {
		return services.UpdatePaymentStatusCommand{}, false, ErrMissingPaymentID
	}
	cmd := services.UpdatePaymentStatusCommand{PaymentID: paymentID, Status: status}
	if transactionID != "" {
		cmd.TransactionID = &transactionID
	}
	return cmd, true, nil
}
