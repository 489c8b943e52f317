package handlers

import (
	"net/http"
	"testing"
)

func (f *apiFixture) portfolio(t *testing.T, uid string) portfolioPayload {
	t.Helper()
	var created portfolioEnvelope
	rec := f.do(t, uid, http.MethodPost, "/api/v1/portfolios", map[string]any{"title": "Weddings"}, &created)
	expectStatus(t, rec, http.StatusCreated)
	return created.Portfolio
}

func (f *apiFixture) uploadItem(t *testing.T, uid, portfolioID string, body map[string]any) portfolioItemPayload {
	t.Helper()
	var item itemEnvelope
	rec := f.do(t, uid, http.MethodPost, "/api/v1/portfolios/"+portfolioID+"/items", body, &item)
	expectStatus(t, rec, http.StatusCreated)
	return item.Asset
}

func TestAssetHandlersPortfolioPairingAndCover(t *testing.T) {
	f := newAPIFixture(t)
	portfolio := f.portfolio(t, photographerUID)
	base := "/api/v1/portfolios/" + portfolio.ID

	before := f.uploadItem(t, photographerUID, portfolio.ID, map[string]any{"image_path": "p/before.jpg"})
	after := f.uploadItem(t, photographerUID, portfolio.ID, map[string]any{"image_path": "p/after.jpg"})

	var linked portfolioEnvelope
	rec := f.do(t, photographerUID, http.MethodPost, base+"/items/"+before.ID+":link", map[string]any{"after_id": after.ID}, &linked)
	expectStatus(t, rec, http.StatusOK)
	for _, item := range linked.Portfolio.Items {
		switch item.ID {
		case before.ID:
			if item.AfterImageID == nil || *item.AfterImageID != after.ID {
				t.Fatalf("expected before-image to point at %s, got %+v", after.ID, item.AfterImageID)
			}
		case after.ID:
			if item.BeforeImageID == nil || *item.BeforeImageID != before.ID {
				t.Fatalf("expected after-image to point back at %s, got %+v", before.ID, item.BeforeImageID)
			}
		}
	}

	var covered portfolioEnvelope
	rec = f.do(t, photographerUID, http.MethodPut, base+"/cover", map[string]any{"item_id": after.ID}, &covered)
	expectStatus(t, rec, http.StatusOK)
	if covered.Portfolio.CoverItemID == nil || *covered.Portfolio.CoverItemID != after.ID {
		t.Fatalf("expected cover %s, got %+v", after.ID, covered.Portfolio.CoverItemID)
	}
	rec = f.do(t, photographerUID, http.MethodPut, base+"/cover", map[string]any{"item_id": before.ID}, &covered)
	expectStatus(t, rec, http.StatusOK)
	covers := 0
	for _, item := range covered.Portfolio.Items {
		if item.IsPortfolioCover {
			covers++
			if item.ID != before.ID {
				t.Fatalf("expected %s to be the cover, got %s", before.ID, item.ID)
			}
		}
	}
	if covers != 1 {
		t.Fatalf("expected exactly one cover item, got %d", covers)
	}

	var unlinked portfolioEnvelope
	rec = f.do(t, photographerUID, http.MethodPost, base+"/items/"+before.ID+":unlink", nil, &unlinked)
	expectStatus(t, rec, http.StatusOK)
	for _, item := range unlinked.Portfolio.Items {
		if item.AfterImageID != nil || item.BeforeImageID != nil {
			t.Fatalf("expected pair to be dissolved, got %+v", item)
		}
	}

	rec = f.do(t, photographerUID, http.MethodDelete, base+"/items/"+after.ID, nil, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = f.do(t, photographerUID, http.MethodGet, base+"/items/"+after.ID, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestAssetHandlersPortfolioOwnership(t *testing.T) {
	f := newAPIFixture(t)
	portfolio := f.portfolio(t, photographerUID)
	other := f.portfolio(t, strangerUID)
	item := f.uploadItem(t, photographerUID, portfolio.ID, map[string]any{"image_path": "p/a.jpg"})
	foreign := f.uploadItem(t, strangerUID, other.ID, map[string]any{"image_path": "p/b.jpg"})

	rec := f.do(t, clientUID, http.MethodPost, "/api/v1/portfolios", map[string]any{"title": "Mine"}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(t, strangerUID, http.MethodPut, "/api/v1/portfolios/"+portfolio.ID+"/cover", map[string]any{"item_id": item.ID}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(t, photographerUID, http.MethodGet, "/api/v1/portfolios/"+portfolio.ID+"/items/"+foreign.ID, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = f.do(t, photographerUID, http.MethodPost, "/api/v1/portfolios/"+portfolio.ID+"/items/"+item.ID+":link", map[string]any{"after_id": foreign.ID}, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if code := errorCode(t, rec); code != "cross_portfolio" {
		t.Fatalf("expected cross_portfolio, got %s", code)
	}

	rec = f.do(t, photographerUID, http.MethodPost, "/api/v1/portfolios/"+portfolio.ID+"/items/"+item.ID+":link", map[string]any{"after_id": item.ID}, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	var view portfolioEnvelope
	rec = f.do(t, clientUID, http.MethodGet, "/api/v1/portfolios/"+portfolio.ID, nil, &view)
	expectStatus(t, rec, http.StatusOK)
	if len(view.Portfolio.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(view.Portfolio.Items))
	}
}

func TestAssetHandlersPhotoDeliveryAndApproval(t *testing.T) {
	f := newAPIFixture(t)
	booking := f.confirmedBooking(t)

	rec := f.do(t, strangerUID, http.MethodPost, "/api/v1/photos", map[string]any{"booking_id": booking.ID, "image_path": "x.jpg"}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	var photo photoEnvelope
	rec = f.do(t, photographerUID, http.MethodPost, "/api/v1/photos", map[string]any{
		"booking_id": booking.ID,
		"image_path": "bookings/b/photos/a.jpg",
		"title":      "First look",
	}, &photo)
	expectStatus(t, rec, http.StatusCreated)
	if photo.Asset.BookingID != booking.ID || photo.Asset.ClientApproved {
		t.Fatalf("unexpected photo: %+v", photo.Asset)
	}
	path := "/api/v1/photos/" + photo.Asset.ID

	rec = f.do(t, strangerUID, http.MethodGet, path, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = f.do(t, photographerUID, http.MethodPost, path+":approve", map[string]any{"approved": true}, nil)
	expectStatus(t, rec, http.StatusForbidden)

	var approved photoEnvelope
	rec = f.do(t, clientUID, http.MethodPost, path+":approve", map[string]any{"approved": true}, &approved)
	expectStatus(t, rec, http.StatusOK)
	if !approved.Asset.ClientApproved {
		t.Fatalf("expected photo to be approved")
	}

	rec = f.do(t, clientUID, http.MethodDelete, path, nil, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = f.do(t, photographerUID, http.MethodDelete, path, nil, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = f.do(t, clientUID, http.MethodGet, path, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}
