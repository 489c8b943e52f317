package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/platform/httpx"
	"github.com/lensmarket/api/internal/services"
)

type createPaymentRequest struct {
	OrderType string `json:"order_type"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method"`
	Amount    *int64 `json:"amount"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

// PaymentHandlers exposes the payment endpoints of the authenticated user.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentGateway
	coordinator services.ConsistencyCoordinator
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentGateway, coordinator services.ConsistencyCoordinator) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments, coordinator: coordinator}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createPayment)
	r.Get("/", h.listPayments)
	r.Get("/{paymentID}", h.getPayment)
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coordinator == nil {
		unavailable(ctx, w, "coordinator")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	orderType := domain.OrderType(strings.ToLower(strings.TrimSpace(req.OrderType)))
	if !orderType.Valid() {
		badRequest(ctx, w, "order_type must be booking or retouch_order")
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		badRequest(ctx, w, "order_id is required")
		return
	}

	payment, err := h.coordinator.PayForOrder(ctx, services.CreatePaymentCommand{
		UserID:          strings.TrimSpace(identity.UID),
		Order:           domain.OrderRef{Type: orderType, ID: orderID},
		Method:          req.Method,
		RequestedAmount: req.Amount,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(ctx, w, "payment_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	payments, err := h.payments.ListByUser(ctx, strings.TrimSpace(identity.UID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentListResponse{Items: buildPaymentList(payments)})
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(ctx, w, "payment_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	paymentID, ok := pathParam(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(ctx, paymentID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if payment.UserID != strings.TrimSpace(identity.UID) && !identity.HasRole(domain.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
