package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/repositories/memory"
	"github.com/lensmarket/api/internal/services"
)

const (
	clientUID       = "user-client"
	photographerUID = "user-photographer"
	retoucherUID    = "user-retoucher"
	strangerUID     = "user-stranger"
	adminUID        = "user-admin"
)

// tokenVerifier accepts "Bearer <uid>" for every uid in roles.
type tokenVerifier struct {
	roles map[string][]any
}

func (v tokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	roles, ok := v.roles[idToken]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &firebaseauth.Token{UID: idToken, Claims: map[string]any{"role": roles}}, nil
}

type stubTranslator struct {
	cmd services.UpdatePaymentStatusCommand
	ok  bool
	err error
}

func (s stubTranslator) Translate([]byte, string) (services.UpdatePaymentStatusCommand, bool, error) {
	return s.cmd, s.ok, s.err
}

type apiFixture struct {
	store       *memory.Store
	ledger      services.OrderLedger
	gateway     services.PaymentGateway
	assets      services.AssetStore
	coordinator services.ConsistencyCoordinator
	translator  *stubTranslator
	router      chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	ledger, err := services.NewOrderLedger(services.OrderLedgerDeps{
		Bookings:        store.Bookings(),
		RetouchOrders:   store.RetouchOrders(),
		Photos:          store.Photos(),
		Payments:        store.Payments(),
		DefaultCurrency: "JPY",
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	gateway, err := services.NewPaymentGateway(services.PaymentGatewayDeps{
		Payments: store.Payments(),
		Ledger:   ledger,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	assets, err := services.NewAssetStore(services.AssetStoreDeps{
		Photos:        store.Photos(),
		Portfolios:    store.Portfolios(),
		RetouchOrders: store.RetouchOrders(),
	})
	if err != nil {
		t.Fatalf("new asset store: %v", err)
	}
	coordinator, err := services.NewConsistencyCoordinator(services.CoordinatorDeps{
		Ledger:   ledger,
		Payments: gateway,
		Assets:   assets,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	authn := auth.NewAuthenticator(tokenVerifier{roles: map[string][]any{
		clientUID:       {"client"},
		photographerUID: {"photographer"},
		retoucherUID:    {"retoucher"},
		strangerUID:     {"client", "photographer"},
		adminUID:        {"admin"},
	}})
	translator := &stubTranslator{}

	orders := NewOrderHandlers(authn, ledger, gateway, coordinator)
	payments := NewPaymentHandlers(authn, gateway, coordinator)
	assetHandlers := NewAssetHandlers(authn, assets, ledger)
	webhooks := NewWebhookHandlers(translator, coordinator)

	router := NewRouter(
		WithOrderRoutes(orders.Routes),
		WithPaymentRoutes(payments.Routes),
		WithPortfolioRoutes(assetHandlers.PortfolioRoutes),
		WithPhotoRoutes(assetHandlers.PhotoRoutes),
		WithWebhookRoutes(webhooks.Routes),
	)

	return &apiFixture{
		store:       store,
		ledger:      ledger,
		gateway:     gateway,
		assets:      assets,
		coordinator: coordinator,
		translator:  translator,
		router:      router,
	}
}

// do sends a JSON request as uid (anonymous when empty) and decodes the
// response body into out when provided.
func (f *apiFixture) do(t *testing.T, uid, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+uid)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v (body %s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

type bookingEnvelope struct {
	Order bookingPayload `json:"order"`
}

type retouchEnvelope struct {
	Order retouchOrderPayload `json:"order"`
}

type paymentEnvelope struct {
	Payment paymentPayload `json:"payment"`
}

type photoEnvelope struct {
	Asset photoPayload `json:"asset"`
}

type itemEnvelope struct {
	Asset portfolioItemPayload `json:"asset"`
}

type portfolioEnvelope struct {
	Portfolio portfolioPayload `json:"portfolio"`
}

// pendingBooking opens a booking as the client with one service line.
func (f *apiFixture) pendingBooking(t *testing.T) bookingPayload {
	t.Helper()
	var created bookingEnvelope
	rec := f.do(t, clientUID, http.MethodPost, "/api/v1/orders/bookings", map[string]any{
		"photographer_id": photographerUID,
		"booking_date":    "2025-06-01T09:00:00Z",
		"initial_amount":  20000,
		"services":        []map[string]any{{"name": "Prints", "price": 3000}},
	}, &created)
	expectStatus(t, rec, http.StatusCreated)
	return created.Order
}

// confirmedBooking opens a booking and confirms it as the photographer.
func (f *apiFixture) confirmedBooking(t *testing.T) bookingPayload {
	t.Helper()
	created := f.pendingBooking(t)
	var confirmed bookingEnvelope
	rec := f.do(t, photographerUID, http.MethodPost, "/api/v1/orders/bookings/"+created.ID+":advance", map[string]any{
		"status": "confirmed",
	}, &confirmed)
	expectStatus(t, rec, http.StatusOK)
	return confirmed.Order
}
