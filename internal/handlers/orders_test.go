package handlers

import (
	"net/http"
	"testing"
)

func TestOrderHandlersBookingLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.confirmedBooking(t)

	if booking.Status != "confirmed" || booking.Version != 2 {
		t.Fatalf("unexpected booking after confirm: %+v", booking)
	}
	if booking.PayableAmount != 23000 {
		t.Fatalf("expected payable amount 23000, got %d", booking.PayableAmount)
	}

	var updated bookingEnvelope
	rec := f.do(t, photographerUID, http.MethodPut, "/api/v1/orders/bookings/"+booking.ID+"/final-amount", map[string]any{"amount": 25000}, &updated)
	expectStatus(t, rec, http.StatusOK)
	if updated.Order.FinalAmount == nil || *updated.Order.FinalAmount != 25000 || updated.Order.PayableAmount != 25000 {
		t.Fatalf("expected final amount 25000, got %+v", updated.Order)
	}

	var fetched bookingEnvelope
	rec = f.do(t, clientUID, http.MethodGet, "/api/v1/orders/bookings/"+booking.ID, nil, &fetched)
	expectStatus(t, rec, http.StatusOK)
	if fetched.Order.Version != updated.Order.Version {
		t.Fatalf("expected version %d, got %d", updated.Order.Version, fetched.Order.Version)
	}
}

func TestOrderHandlersHideOrdersFromStrangers(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.confirmedBooking(t)

	rec := f.do(t, strangerUID, http.MethodGet, "/api/v1/orders/bookings/"+booking.ID, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
	if code := errorCode(t, rec); code != "order_not_found" {
		t.Fatalf("expected order_not_found, got %s", code)
	}

	rec = f.do(t, adminUID, http.MethodGet, "/api/v1/orders/bookings/"+booking.ID, nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestOrderHandlersAdvanceErrors(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.confirmedBooking(t)
	path := "/api/v1/orders/bookings/" + booking.ID + ":advance"

	tests := []struct {
		name   string
		uid    string
		body   map[string]any
		status int
		code   string
	}{
		{name: "unknown status", uid: photographerUID, body: map[string]any{"status": "shipped"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "illegal transition", uid: photographerUID, body: map[string]any{"status": "pending"}, status: http.StatusUnprocessableEntity, code: "invalid_transition"},
		{name: "client cannot complete", uid: clientUID, body: map[string]any{"status": "completed"}, status: http.StatusForbidden, code: "forbidden"},
		{name: "client cannot cancel confirmed", uid: clientUID, body: map[string]any{"status": "cancelled"}, status: http.StatusForbidden, code: "forbidden"},
		{name: "stale expected status", uid: photographerUID, body: map[string]any{"status": "completed", "expected_status": "pending"}, status: http.StatusConflict, code: "concurrent_modification"},
		{name: "unknown field", uid: photographerUID, body: map[string]any{"status": "completed", "force": true}, status: http.StatusBadRequest, code: "invalid_request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.uid, http.MethodPost, path, tc.body, nil)
			expectStatus(t, rec, tc.status)
			if code := errorCode(t, rec); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}

	var fetched bookingEnvelope
	rec := f.do(t, clientUID, http.MethodGet, "/api/v1/orders/bookings/"+booking.ID, nil, &fetched)
	expectStatus(t, rec, http.StatusOK)
	if fetched.Order.Status != "confirmed" || fetched.Order.Version != booking.Version {
		t.Fatalf("rejected transitions must not change the booking: %+v", fetched.Order)
	}
}

func TestOrderHandlersBookingServices(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.pendingBooking(t)
	base := "/api/v1/orders/bookings/" + booking.ID + "/services"

	var added bookingEnvelope
	rec := f.do(t, clientUID, http.MethodPost, base, map[string]any{
		"name":  "Extra hour",
		"price": 5000,
	}, &added)
	expectStatus(t, rec, http.StatusOK)
	if len(added.Order.Services) != 2 || added.Order.PayableAmount != 28000 {
		t.Fatalf("unexpected booking after adding a service: %+v", added.Order)
	}

	var removed bookingEnvelope
	rec = f.do(t, clientUID, http.MethodDelete, base+"/0", nil, &removed)
	expectStatus(t, rec, http.StatusOK)
	if len(removed.Order.Services) != 1 || removed.Order.Services[0].Name != "Extra hour" {
		t.Fatalf("unexpected services after removal: %+v", removed.Order.Services)
	}

	rec = f.do(t, clientUID, http.MethodDelete, base+"/x", nil, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, strangerUID, http.MethodPost, base, map[string]any{"name": "Drone", "price": 1}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(t, photographerUID, http.MethodPost, "/api/v1/orders/bookings/"+booking.ID+":advance", map[string]any{"status": "confirmed"}, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = f.do(t, clientUID, http.MethodDelete, base+"/0", nil, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if code := errorCode(t, rec); code != "invalid_state" {
		t.Fatalf("expected invalid_state once confirmed, got %s", code)
	}
}

func TestOrderHandlersCreateBookingValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, clientUID, http.MethodPost, "/api/v1/orders/bookings", map[string]any{
		"photographer_id": photographerUID,
		"booking_date":    "tomorrow",
	}, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, clientUID, http.MethodPost, "/api/v1/orders/bookings", map[string]any{
		"photographer_id": clientUID,
		"booking_date":    "2025-06-01T09:00:00Z",
	}, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, "", http.MethodPost, "/api/v1/orders/bookings", map[string]any{}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestOrderHandlersRetouchCompletion(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.confirmedBooking(t)

	var photo photoEnvelope
	rec := f.do(t, photographerUID, http.MethodPost, "/api/v1/photos", map[string]any{
		"booking_id": booking.ID,
		"image_path": "bookings/b/photos/original.jpg",
	}, &photo)
	expectStatus(t, rec, http.StatusCreated)

	var created retouchEnvelope
	rec = f.do(t, clientUID, http.MethodPost, "/api/v1/orders/retouch-orders", map[string]any{
		"retoucher_id":    retoucherUID,
		"source_photo_id": photo.Asset.ID,
		"price":           8000,
	}, &created)
	expectStatus(t, rec, http.StatusCreated)
	orderPath := "/api/v1/orders/retouch-orders/" + created.Order.ID

	rec = f.do(t, retoucherUID, http.MethodPost, orderPath+":complete", map[string]any{"image_path": "retouched.jpg"}, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = f.do(t, retoucherUID, http.MethodPost, orderPath+":advance", map[string]any{"status": "in_progress"}, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(t, retoucherUID, http.MethodPost, orderPath+":advance", map[string]any{"status": "completed", "retouched_photo_id": photo.Asset.ID}, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = f.do(t, retoucherUID, http.MethodPost, orderPath+":advance", map[string]any{"status": "completed"}, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if code := errorCode(t, rec); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
	var current retouchEnvelope
	rec = f.do(t, retoucherUID, http.MethodGet, orderPath, nil, &current)
	expectStatus(t, rec, http.StatusOK)
	if current.Order.Status != "in_progress" || current.Order.RetouchedPhotoID != nil {
		t.Fatalf("expected the order to stay in progress without a photo, got %+v", current.Order)
	}

	rec = f.do(t, photographerUID, http.MethodPost, orderPath+":complete", map[string]any{"image_path": "retouched.jpg"}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	var completed retouchEnvelope
	rec = f.do(t, retoucherUID, http.MethodPost, orderPath+":complete", map[string]any{"image_path": "retouched.jpg", "title": "Final"}, &completed)
	expectStatus(t, rec, http.StatusOK)
	if completed.Order.Status != "completed" || completed.Order.RetouchedPhotoID == nil {
		t.Fatalf("unexpected completed order: %+v", completed.Order)
	}

	var retouched photoEnvelope
	rec = f.do(t, clientUID, http.MethodGet, "/api/v1/photos/"+*completed.Order.RetouchedPhotoID, nil, &retouched)
	expectStatus(t, rec, http.StatusOK)
	if retouched.Asset.Unlinked {
		t.Fatalf("expected delivered photo to be linked")
	}
	if retouched.Asset.RetouchOrderID == nil || *retouched.Asset.RetouchOrderID != created.Order.ID {
		t.Fatalf("expected photo to reference order %s, got %+v", created.Order.ID, retouched.Asset.RetouchOrderID)
	}
}
