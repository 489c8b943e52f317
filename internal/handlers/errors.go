package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/platform/httpx"
	"github.com/lensmarket/api/internal/services"
)

// serviceErrorMapping orders checks from most to least specific; the first
// sentinel matched wins.
var serviceErrorMapping = []struct {
	target  error
	code    string
	status  int
	message string
}{
	{services.ErrPaymentPropagation, "payment_propagation_failed", http.StatusServiceUnavailable, "payment recorded but the order was not updated"},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, "order not found"},
	{services.ErrPaymentNotFound, "payment_not_found", http.StatusNotFound, "payment not found"},
	{services.ErrAssetNotFound, "asset_not_found", http.StatusNotFound, "asset not found"},
	{services.ErrForbidden, "forbidden", http.StatusForbidden, ""},
	{services.ErrDuplicateActivePayment, "duplicate_active_payment", http.StatusConflict, "order already has an active payment"},
	{services.ErrConcurrentModification, "concurrent_modification", http.StatusConflict, "resource was modified concurrently, retry"},
	{services.ErrCompletionConflict, "completion_conflict", http.StatusConflict, ""},
	{services.ErrAlreadyLinked, "asset_already_linked", http.StatusConflict, ""},
	{services.ErrAssetInUse, "asset_in_use", http.StatusConflict, ""},
	{services.ErrOrderNotPayable, "order_not_payable", http.StatusUnprocessableEntity, ""},
	{services.ErrInvalidTransition, "invalid_transition", http.StatusUnprocessableEntity, ""},
	{services.ErrInvalidState, "invalid_state", http.StatusUnprocessableEntity, ""},
	{services.ErrCrossPortfolio, "cross_portfolio", http.StatusUnprocessableEntity, ""},
	{services.ErrSelfReference, "self_reference", http.StatusUnprocessableEntity, ""},
	{services.ErrInvalidInput, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrUnavailable, "storage_unavailable", http.StatusServiceUnavailable, "storage temporarily unavailable"},
}

// writeServiceError translates service sentinels into HTTP errors. Messages of
// internal failures are never echoed back.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMapping {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}

func unavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", strings.ReplaceAll(name, "_", " ")+" unavailable", http.StatusServiceUnavailable))
}

func badRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// requireIdentity returns the authenticated identity, writing 401 when absent.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// pathParam reads a trimmed URL parameter, writing 400 when it is blank.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		badRequest(r.Context(), w, name+" is required")
		return "", false
	}
	return value, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		badRequest(r.Context(), w, err.Error())
		return false
	}
	return true
}
