package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/platform/httpx"
	"github.com/lensmarket/api/internal/services"
)

type createPortfolioRequest struct {
	Title string `json:"title"`
}

type uploadItemRequest struct {
	ImagePath        string  `json:"image_path"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	IsPublic         bool    `json:"is_public"`
	IsBeforeImage    bool    `json:"is_before_image"`
	AfterImageID     *string `json:"after_image_id"`
	IsPortfolioCover bool    `json:"is_portfolio_cover"`
}

type uploadPhotoRequest struct {
	BookingID   string `json:"booking_id"`
	ImagePath   string `json:"image_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

type setCoverRequest struct {
	ItemID string `json:"item_id"`
}

type linkRequest struct {
	AfterID string `json:"after_id"`
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

type portfolioResponse struct {
	Portfolio portfolioPayload `json:"portfolio"`
}

type assetResponse struct {
	Asset any `json:"asset"`
}

// AssetHandlers exposes portfolio and delivered photo endpoints.
type AssetHandlers struct {
	authn  *auth.Authenticator
	assets services.AssetStore
	ledger services.OrderLedger
}

// NewAssetHandlers constructs a new AssetHandlers instance. The ledger is used
// to authorise photo access against the owning booking.
func NewAssetHandlers(authn *auth.Authenticator, assets services.AssetStore, ledger services.OrderLedger) *AssetHandlers {
	return &AssetHandlers{authn: authn, assets: assets, ledger: ledger}
}

// PortfolioRoutes registers the /portfolios endpoints.
func (h *AssetHandlers) PortfolioRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createPortfolio)
	r.Get("/{portfolioID}", h.getPortfolio)
	r.Put("/{portfolioID}/cover", h.setCover)
	r.Post("/{portfolioID}/items", h.uploadItem)
	r.Get("/{portfolioID}/items/{itemID}", h.getItem)
	r.Post("/{portfolioID}/items/{itemID}:link", h.linkItem)
	r.Post("/{portfolioID}/items/{itemID}:unlink", h.unlinkItem)
	r.Delete("/{portfolioID}/items/{itemID}", h.deleteItem)
}

// PhotoRoutes registers the /photos endpoints.
func (h *AssetHandlers) PhotoRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.uploadPhoto)
	r.Get("/{photoID}", h.getPhoto)
	r.Post("/{photoID}:approve", h.approvePhoto)
	r.Delete("/{photoID}", h.deletePhoto)
}

func (h *AssetHandlers) createPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		unavailable(ctx, w, "asset_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(domain.RolePhotographer) && !identity.HasRole(domain.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "only photographers keep portfolios", http.StatusForbidden))
		return
	}

	var req createPortfolioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	portfolio, err := h.assets.CreatePortfolio(ctx, services.CreatePortfolioCommand{
		OwnerID: strings.TrimSpace(identity.UID),
		Title:   req.Title,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, portfolioResponse{Portfolio: buildPortfolioPayload(services.PortfolioView{Portfolio: portfolio})})
}

func (h *AssetHandlers) getPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		unavailable(ctx, w, "asset_service")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	portfolioID, ok := pathParam(w, r, "portfolioID")
	if !ok {
		return
	}

	view, err := h.assets.GetPortfolio(ctx, portfolioID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portfolioResponse{Portfolio: buildPortfolioPayload(view)})
}

func (h *AssetHandlers) setCover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}

	var req setCoverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.assets.SetCover(ctx, services.SetCoverCommand{PortfolioID: portfolioID, ItemID: strings.TrimSpace(req.ItemID)}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.writePortfolio(ctx, w, portfolioID)
}

func (h *AssetHandlers) uploadItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}

	var req uploadItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := h.assets.Upload(ctx, services.UploadAssetCommand{
		Kind:             domain.AssetKindPortfolioItem,
		OwnerID:          portfolioID,
		ImagePath:        req.ImagePath,
		Title:            req.Title,
		Description:      req.Description,
		IsPublic:         req.IsPublic,
		IsBeforeImage:    req.IsBeforeImage,
		AfterImageID:     req.AfterImageID,
		IsPortfolioCover: req.IsPortfolioCover,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, assetResponse{Asset: buildAssetPayload(asset)})
}

func (h *AssetHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		unavailable(ctx, w, "asset_service")
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}
	item, ok := h.portfolioItem(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, assetResponse{Asset: buildItemPayload(item)})
}

func (h *AssetHandlers) linkItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	item, ok := h.portfolioItem(w, r)
	if !ok {
		return
	}

	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.assets.LinkBeforeAfter(ctx, services.LinkBeforeAfterCommand{BeforeID: item.ID, AfterID: strings.TrimSpace(req.AfterID)}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.writePortfolio(ctx, w, portfolioID)
}

func (h *AssetHandlers) unlinkItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}
	item, ok := h.portfolioItem(w, r)
	if !ok {
		return
	}
	if err := h.assets.UnlinkBeforeAfter(ctx, item.ID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.writePortfolio(ctx, w, portfolioID)
}

func (h *AssetHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.ownedPortfolio(w, r); !ok {
		return
	}
	item, ok := h.portfolioItem(w, r)
	if !ok {
		return
	}
	if err := h.assets.Delete(ctx, domain.AssetRef{Kind: domain.AssetKindPortfolioItem, ID: item.ID}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssetHandlers) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil || h.ledger == nil {
		unavailable(ctx, w, "asset_service")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req uploadPhotoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		badRequest(ctx, w, "booking_id is required")
		return
	}
	booking, err := h.ledger.GetOrder(ctx, domain.OrderRef{Type: domain.OrderTypeBooking, ID: bookingID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if booking.ProviderID() != strings.TrimSpace(identity.UID) && !identity.HasRole(domain.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the booked photographer may deliver photos", http.StatusForbidden))
		return
	}

	asset, err := h.assets.Upload(ctx, services.UploadAssetCommand{
		Kind:        domain.AssetKindPhoto,
		OwnerID:     bookingID,
		ImagePath:   req.ImagePath,
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, assetResponse{Asset: buildAssetPayload(asset)})
}

func (h *AssetHandlers) getPhoto(w http.ResponseWriter, r *http.Request) {
	photo, _, ok := h.visiblePhoto(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, assetResponse{Asset: buildPhotoPayload(photo)})
}

func (h *AssetHandlers) approvePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photo, booking, ok := h.visiblePhoto(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	if booking.ClientID() != strings.TrimSpace(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the booking client may approve photos", http.StatusForbidden))
		return
	}

	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}

	updated, err := h.assets.Approve(ctx, services.ApprovePhotoCommand{PhotoID: photo.ID, Approved: approved})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, assetResponse{Asset: buildPhotoPayload(updated)})
}

func (h *AssetHandlers) deletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photo, booking, ok := h.visiblePhoto(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	if booking.ProviderID() != strings.TrimSpace(identity.UID) && !identity.HasRole(domain.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the booked photographer may delete photos", http.StatusForbidden))
		return
	}
	if err := h.assets.Delete(ctx, domain.AssetRef{Kind: domain.AssetKindPhoto, ID: photo.ID}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedPortfolio resolves the path portfolio and requires the caller to own it
// or be an admin. Other callers get 403.
func (h *AssetHandlers) ownedPortfolio(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.assets == nil {
		unavailable(ctx, w, "asset_service")
		return "", false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return "", false
	}
	portfolioID, ok := pathParam(w, r, "portfolioID")
	if !ok {
		return "", false
	}
	view, err := h.assets.GetPortfolio(ctx, portfolioID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return "", false
	}
	if view.Portfolio.OwnerID != strings.TrimSpace(identity.UID) && !identity.HasRole(domain.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "portfolio belongs to another photographer", http.StatusForbidden))
		return "", false
	}
	return portfolioID, true
}

// portfolioItem loads the item named in the path, treating items of a
// different portfolio as missing.
func (h *AssetHandlers) portfolioItem(w http.ResponseWriter, r *http.Request) (services.PortfolioItem, bool) {
	ctx := r.Context()
	portfolioID, ok := pathParam(w, r, "portfolioID")
	if !ok {
		return services.PortfolioItem{}, false
	}
	itemID, ok := pathParam(w, r, "itemID")
	if !ok {
		return services.PortfolioItem{}, false
	}
	asset, err := h.assets.GetAsset(ctx, domain.AssetRef{Kind: domain.AssetKindPortfolioItem, ID: itemID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.PortfolioItem{}, false
	}
	if asset.PortfolioItem == nil || asset.PortfolioItem.PortfolioID != portfolioID {
		httpx.WriteError(ctx, w, httpx.NewError("asset_not_found", "asset not found", http.StatusNotFound))
		return services.PortfolioItem{}, false
	}
	return *asset.PortfolioItem, true
}

// visiblePhoto loads the photo named in the path together with its booking.
// Photos of bookings the caller is not a party to are reported as missing.
func (h *AssetHandlers) visiblePhoto(w http.ResponseWriter, r *http.Request) (services.Photo, services.Order, bool) {
	ctx := r.Context()
	if h.assets == nil || h.ledger == nil {
		unavailable(ctx, w, "asset_service")
		return services.Photo{}, services.Order{}, false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return services.Photo{}, services.Order{}, false
	}
	photoID, ok := pathParam(w, r, "photoID")
	if !ok {
		return services.Photo{}, services.Order{}, false
	}

	asset, err := h.assets.GetAsset(ctx, domain.AssetRef{Kind: domain.AssetKindPhoto, ID: photoID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Photo{}, services.Order{}, false
	}
	if asset.Photo == nil {
		writeAssetNotFound(ctx, w)
		return services.Photo{}, services.Order{}, false
	}
	booking, err := h.ledger.GetOrder(ctx, domain.OrderRef{Type: domain.OrderTypeBooking, ID: asset.Photo.BookingID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Photo{}, services.Order{}, false
	}
	if !canViewOrder(identity, booking) {
		writeAssetNotFound(ctx, w)
		return services.Photo{}, services.Order{}, false
	}
	return *asset.Photo, booking, true
}

func (h *AssetHandlers) writePortfolio(ctx context.Context, w http.ResponseWriter, portfolioID string) {
	view, err := h.assets.GetPortfolio(ctx, portfolioID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portfolioResponse{Portfolio: buildPortfolioPayload(view)})
}

func writeAssetNotFound(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("asset_not_found", "asset not found", http.StatusNotFound))
}
