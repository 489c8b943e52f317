package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lensmarket/api/internal/payments"
	"github.com/lensmarket/api/internal/platform/httpx"
	"github.com/lensmarket/api/internal/platform/requestctx"
	"github.com/lensmarket/api/internal/services"
)

const (
	stripeSignatureHeader  = "Stripe-Signature"
	maxWebhookPayloadBytes = 64 * 1024
)

// PaymentEventTranslator verifies a provider callback and converts it into a
// payment status update. ok is false for events that change nothing.
type PaymentEventTranslator interface {
	Translate(payload []byte, signature string) (cmd services.UpdatePaymentStatusCommand, ok bool, err error)
}

// WebhookHandlers receives payment provider callbacks.
type WebhookHandlers struct {
	stripe      PaymentEventTranslator
	coordinator services.ConsistencyCoordinator
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(stripe PaymentEventTranslator, coordinator services.ConsistencyCoordinator) *WebhookHandlers {
	return &WebhookHandlers{stripe: stripe, coordinator: coordinator}
}

// Routes registers the /webhooks endpoints. They are authenticated by the
// provider signature, not by Firebase.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.stripeEvent)
}

type webhookAck struct {
	Status string `json:"status"`
}

func (h *WebhookHandlers) stripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripe == nil || h.coordinator == nil {
		unavailable(ctx, w, "payment_webhook")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayloadBytes+1))
	if err != nil {
		badRequest(ctx, w, "failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadBytes {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	logger := requestctx.Logger(ctx)
	cmd, ok, err := h.stripe.Translate(payload, r.Header.Get(stripeSignatureHeader))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case errors.Is(err, payments.ErrMissingPaymentID):
		logger.Warn("stripe event without payment id ignored")
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
		return
	case err != nil:
		badRequest(ctx, w, "malformed webhook event")
		return
	case !ok:
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
		return
	}

	payment, err := h.coordinator.ConfirmPayment(ctx, cmd)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: string(payment.Status)})
	case errors.Is(err, services.ErrPaymentNotFound):
		// Events for payments opened outside this service.
		logger.Warn("stripe event for unknown payment ignored", zap.String("payment_id", cmd.PaymentID))
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
	case errors.Is(err, services.ErrPaymentPropagation):
		// 5xx so the provider redelivers; the redelivery replays the settlement.
		logger.Error("payment stored but order not updated", zap.String("payment_id", cmd.PaymentID), zap.Error(err))
		writeServiceError(ctx, w, err)
	case errors.Is(err, services.ErrInvalidTransition):
		// Redelivery of an event that was already applied.
		httpx.WriteJSON(w, http.StatusOK, webhookAck{Status: "duplicate"})
	default:
		writeServiceError(ctx, w, err)
	}
}
