package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/platform/httpx"
	"github.com/lensmarket/api/internal/services"
)

type bookingServiceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

type createBookingRequest struct {
	ClientID        string                  `json:"client_id"`
	PhotographerID  string                  `json:"photographer_id"`
	BookingDate     string                  `json:"booking_date"`
	InitialAmount   int64                   `json:"initial_amount"`
	Currency        string                  `json:"currency"`
	DeliveredPublic bool                    `json:"delivered_public"`
	Services        []bookingServiceRequest `json:"services"`
}

type createRetouchOrderRequest struct {
	ClientID      string `json:"client_id"`
	RetoucherID   string `json:"retoucher_id"`
	SourcePhotoID string `json:"source_photo_id"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Requirements  string `json:"requirements"`
}

type advanceOrderRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expected_status"`
	Reason         string `json:"reason"`
}

type finalAmountRequest struct {
	Amount *int64 `json:"amount"`
}

type completeRetouchRequest struct {
	ImagePath   string `json:"image_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

type orderResponse struct {
	Order any `json:"order"`
}

type paymentListResponse struct {
	Items []paymentPayload `json:"items"`
}

// OrderHandlers exposes booking and retouch order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	ledger      services.OrderLedger
	payments    services.PaymentGateway
	coordinator services.ConsistencyCoordinator
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, ledger services.OrderLedger, payments services.PaymentGateway, coordinator services.ConsistencyCoordinator) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		ledger:      ledger,
		payments:    payments,
		coordinator: coordinator,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}

	r.Post("/bookings", h.createBooking)
	r.Get("/bookings/{orderID}", h.getOrder(domain.OrderTypeBooking))
	r.Post("/bookings/{orderID}:advance", h.advanceOrder(domain.OrderTypeBooking))
	r.Put("/bookings/{orderID}/final-amount", h.setFinalAmount)
	r.Post("/bookings/{orderID}/services", h.addService)
	r.Delete("/bookings/{orderID}/services/{index}", h.removeService)
	r.Get("/bookings/{orderID}/payments", h.listOrderPayments(domain.OrderTypeBooking))

	r.Post("/retouch-orders", h.createRetouchOrder)
	r.Get("/retouch-orders/{orderID}", h.getOrder(domain.OrderTypeRetouch))
	r.Post("/retouch-orders/{orderID}:advance", h.advanceOrder(domain.OrderTypeRetouch))
	r.Post("/retouch-orders/{orderID}:complete", h.completeRetouchOrder)
	r.Get("/retouch-orders/{orderID}/payments", h.listOrderPayments(domain.OrderTypeRetouch))
}

func (h *OrderHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.BookingDate))
	if err != nil {
		badRequest(ctx, w, "booking_date must be a valid RFC3339 timestamp")
		return
	}

	lines := make([]services.BookingServiceInput, 0, len(req.Services))
	for _, svc := range req.Services {
		lines = append(lines, services.BookingServiceInput{Name: svc.Name, Description: svc.Description, Price: svc.Price})
	}

	booking, err := h.ledger.CreateBooking(ctx, services.CreateBookingCommand{
		Actor:           identity.Actor(),
		ClientID:        strings.TrimSpace(req.ClientID),
		PhotographerID:  strings.TrimSpace(req.PhotographerID),
		BookingDate:     date,
		InitialAmount:   req.InitialAmount,
		Currency:        req.Currency,
		DeliveredPublic: req.DeliveredPublic,
		Services:        lines,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildBookingPayload(booking)})
}

func (h *OrderHandlers) createRetouchOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createRetouchOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.ledger.CreateRetouchOrder(ctx, services.CreateRetouchOrderCommand{
		Actor:         identity.Actor(),
		ClientID:      strings.TrimSpace(req.ClientID),
		RetoucherID:   strings.TrimSpace(req.RetoucherID),
		SourcePhotoID: strings.TrimSpace(req.SourcePhotoID),
		Price:         req.Price,
		Currency:      req.Currency,
		Requirements:  req.Requirements,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildRetouchPayload(order)})
}

func (h *OrderHandlers) getOrder(orderType domain.OrderType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := h.visibleOrder(w, r, orderType)
		if !ok {
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
	}
}

func (h *OrderHandlers) advanceOrder(orderType domain.OrderType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.ledger == nil {
			unavailable(ctx, w, "order_service")
			return
		}
		identity, ok := requireIdentity(ctx, w)
		if !ok {
			return
		}
		orderID, ok := pathParam(w, r, "orderID")
		if !ok {
			return
		}

		var req advanceOrderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		target, ok := parseOrderStatus(req.Status)
		if !ok {
			badRequest(ctx, w, "status must be a valid order status")
			return
		}
		// Delivery needs the photo upload, so it only happens through :complete.
		if orderType == domain.OrderTypeRetouch && target == domain.OrderStatusCompleted {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "retouch orders are completed through :complete", http.StatusUnprocessableEntity))
			return
		}
		cmd := services.AdvanceOrderCommand{
			Ref:    domain.OrderRef{Type: orderType, ID: orderID},
			Target: target,
			Actor:  identity.Actor(),
			Reason: strings.TrimSpace(req.Reason),
		}
		if raw := strings.TrimSpace(req.ExpectedStatus); raw != "" {
			expected, ok := parseOrderStatus(raw)
			if !ok {
				badRequest(ctx, w, "expected_status must be a valid order status")
				return
			}
			cmd.ExpectedStatus = &expected
		}

		order, err := h.ledger.Advance(ctx, cmd)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
	}
}

func (h *OrderHandlers) setFinalAmount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}

	var req finalAmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == nil {
		badRequest(ctx, w, "amount is required")
		return
	}

	booking, err := h.ledger.SetFinalAmount(ctx, services.SetFinalAmountCommand{
		BookingID: orderID,
		Amount:    *req.Amount,
		Actor:     identity.Actor(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildBookingPayload(booking)})
}

func (h *OrderHandlers) addService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}

	var req bookingServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	booking, err := h.ledger.AddBookingService(ctx, services.AddBookingServiceCommand{
		BookingID: orderID,
		Actor:     identity.Actor(),
		Service:   services.BookingServiceInput{Name: req.Name, Description: req.Description, Price: req.Price},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildBookingPayload(booking)})
}

func (h *OrderHandlers) removeService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}
	index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
	if err != nil || index < 0 {
		badRequest(ctx, w, "index must be a non-negative integer")
		return
	}

	booking, err := h.ledger.RemoveBookingService(ctx, services.RemoveBookingServiceCommand{
		BookingID: orderID,
		Actor:     identity.Actor(),
		Index:     index,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildBookingPayload(booking)})
}

func (h *OrderHandlers) completeRetouchOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coordinator == nil {
		unavailable(ctx, w, "coordinator")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return
	}

	var req completeRetouchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.coordinator.CompleteRetouchOrder(ctx, services.CompleteRetouchOrderCommand{
		OrderID: orderID,
		Actor:   identity.Actor(),
		Asset: services.RetouchedAssetPayload{
			ImagePath:   strings.TrimSpace(req.ImagePath),
			Title:       req.Title,
			Description: req.Description,
			IsPublic:    req.IsPublic,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildRetouchPayload(order)})
}

func (h *OrderHandlers) listOrderPayments(orderType domain.OrderType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.payments == nil {
			unavailable(ctx, w, "payment_service")
			return
		}
		order, ok := h.visibleOrder(w, r, orderType)
		if !ok {
			return
		}
		payments, err := h.payments.ListByOrder(ctx, order.Ref())
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, paymentListResponse{Items: buildPaymentList(payments)})
	}
}

// visibleOrder loads the order named in the path. Orders the caller is not a
// party to are reported as missing.
func (h *OrderHandlers) visibleOrder(w http.ResponseWriter, r *http.Request, orderType domain.OrderType) (services.Order, bool) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(ctx, w, "order_service")
		return services.Order{}, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.Order{}, false
	}
	orderID, ok := pathParam(w, r, "orderID")
	if !ok {
		return services.Order{}, false
	}

	order, err := h.ledger.GetOrder(ctx, domain.OrderRef{Type: orderType, ID: orderID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, false
	}
	if !canViewOrder(identity, order) {
		writeOrderNotFound(ctx, w)
		return services.Order{}, false
	}
	return order, true
}

func canViewOrder(identity *auth.Identity, order services.Order) bool {
	if identity.HasRole(domain.RoleAdmin) {
		return true
	}
	uid := strings.TrimSpace(identity.UID)
	return uid == order.ClientID() || uid == order.ProviderID()
}

func writeOrderNotFound(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled:
		return status, true
	default:
		return "", false
	}
}
