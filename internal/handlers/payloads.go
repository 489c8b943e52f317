package handlers

import (
	"time"

	domain "github.com/lensmarket/api/internal/domain"
	"github.com/lensmarket/api/internal/services"
)

type paymentMarkPayload struct {
	Paid      bool    `json:"paid"`
	PaidAt    string  `json:"paid_at,omitempty"`
	PaymentID *string `json:"payment_id,omitempty"`
}

type bookingServicePayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	AddedAt     string `json:"added_at"`
}

type bookingPayload struct {
	ID              string                  `json:"id"`
	Type            string                  `json:"type"`
	ClientID        string                  `json:"client_id"`
	PhotographerID  string                  `json:"photographer_id"`
	BookingDate     string                  `json:"booking_date"`
	Status          string                  `json:"status"`
	InitialAmount   int64                   `json:"initial_amount"`
	FinalAmount     *int64                  `json:"final_amount,omitempty"`
	PayableAmount   int64                   `json:"payable_amount"`
	Currency        string                  `json:"currency"`
	DeliveredPublic bool                    `json:"delivered_public"`
	Services        []bookingServicePayload `json:"services"`
	Payment         paymentMarkPayload      `json:"payment"`
	Version         int64                   `json:"version"`
	CreatedAt       string                  `json:"created_at"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
	CompletedAt     string                  `json:"completed_at,omitempty"`
	CancelledAt     string                  `json:"cancelled_at,omitempty"`
}

type retouchOrderPayload struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	ClientID         string             `json:"client_id"`
	RetoucherID      string             `json:"retoucher_id"`
	SourcePhotoID    string             `json:"source_photo_id"`
	RetouchedPhotoID *string            `json:"retouched_photo_id,omitempty"`
	Status           string             `json:"status"`
	Price            int64              `json:"price"`
	Currency         string             `json:"currency"`
	Requirements     string             `json:"requirements,omitempty"`
	Payment          paymentMarkPayload `json:"payment"`
	Version          int64              `json:"version"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at,omitempty"`
	CompletedAt      string             `json:"completed_at,omitempty"`
	CancelledAt      string             `json:"cancelled_at,omitempty"`
}

type paymentPayload struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	OrderType     string  `json:"order_type"`
	OrderID       string  `json:"order_id"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Method        string  `json:"method,omitempty"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Version       int64   `json:"version"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

type photoPayload struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	BookingID      string  `json:"booking_id"`
	RetouchOrderID *string `json:"retouch_order_id,omitempty"`
	ImagePath      string  `json:"image_path"`
	Title          string  `json:"title,omitempty"`
	Description    string  `json:"description,omitempty"`
	IsPublic       bool    `json:"is_public"`
	ClientApproved bool    `json:"client_approved"`
	Unlinked       bool    `json:"unlinked"`
	Version        int64   `json:"version"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

type portfolioPayload struct {
	ID          string                 `json:"id"`
	OwnerID     string                 `json:"owner_id"`
	Title       string                 `json:"title,omitempty"`
	CoverItemID *string                `json:"cover_item_id,omitempty"`
	Version     int64                  `json:"version"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at,omitempty"`
	Items       []portfolioItemPayload `json:"items,omitempty"`
}

type portfolioItemPayload struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	PortfolioID      string  `json:"portfolio_id"`
	ImagePath        string  `json:"image_path"`
	Title            string  `json:"title,omitempty"`
	Description      string  `json:"description,omitempty"`
	IsPublic         bool    `json:"is_public"`
	IsBeforeImage    bool    `json:"is_before_image"`
	AfterImageID     *string `json:"after_image_id,omitempty"`
	BeforeImageID    *string `json:"before_image_id,omitempty"`
	IsPortfolioCover bool    `json:"is_portfolio_cover"`
	Version          int64   `json:"version"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) any {
	switch {
	case order.Booking != nil:
		return buildBookingPayload(*order.Booking)
	case order.Retouch != nil:
		return buildRetouchPayload(*order.Retouch)
	default:
		return nil
	}
}

func buildBookingPayload(b services.Booking) bookingPayload {
	lines := make([]bookingServicePayload, 0, len(b.Services))
	for _, svc := range b.Services {
		lines = append(lines, bookingServicePayload{
			Name:        svc.Name,
			Description: svc.Description,
			Price:       svc.Price,
			AddedAt:     formatTime(svc.AddedAt),
		})
	}
	return bookingPayload{
		ID:              b.ID,
		Type:            string(domain.OrderTypeBooking),
		ClientID:        b.ClientID,
		PhotographerID:  b.PhotographerID,
		BookingDate:     formatTime(b.BookingDate),
		Status:          string(b.Status),
		InitialAmount:   b.InitialAmount,
		FinalAmount:     cloneInt64Pointer(b.FinalAmount),
		PayableAmount:   b.PayableAmount(),
		Currency:        b.Currency,
		DeliveredPublic: b.DeliveredPublic,
		Services:        lines,
		Payment:         buildPaymentMark(b.Payment),
		Version:         b.Version,
		CreatedAt:       formatTime(b.CreatedAt),
		UpdatedAt:       formatTime(b.UpdatedAt),
		CompletedAt:     formatTimePointer(b.CompletedAt),
		CancelledAt:     formatTimePointer(b.CancelledAt),
	}
}

func buildRetouchPayload(o services.RetouchOrder) retouchOrderPayload {
	return retouchOrderPayload{
		ID:               o.ID,
		Type:             string(domain.OrderTypeRetouch),
		ClientID:         o.ClientID,
		RetoucherID:      o.RetoucherID,
		SourcePhotoID:    o.SourcePhotoID,
		RetouchedPhotoID: cloneStringPointer(o.RetouchedPhotoID),
		Status:           string(o.Status),
		Price:            o.Price,
		Currency:         o.Currency,
		Requirements:     o.Requirements,
		Payment:          buildPaymentMark(o.Payment),
		Version:          o.Version,
		CreatedAt:        formatTime(o.CreatedAt),
		UpdatedAt:        formatTime(o.UpdatedAt),
		CompletedAt:      formatTimePointer(o.CompletedAt),
		CancelledAt:      formatTimePointer(o.CancelledAt),
	}
}

func buildPaymentMark(m domain.PaymentMark) paymentMarkPayload {
	return paymentMarkPayload{
		Paid:      m.Paid,
		PaidAt:    formatTimePointer(m.PaidAt),
		PaymentID: cloneStringPointer(m.PaymentID),
	}
}

func buildPaymentPayload(p services.Payment) paymentPayload {
	return paymentPayload{
		ID:            p.ID,
		UserID:        p.UserID,
		OrderType:     string(p.Order.Type),
		OrderID:       p.Order.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        string(p.Status),
		TransactionID: cloneStringPointer(p.TransactionID),
		Version:       p.Version,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func buildPaymentList(payments []services.Payment) []paymentPayload {
	out := make([]paymentPayload, 0, len(payments))
	for _, p := range payments {
		out = append(out, buildPaymentPayload(p))
	}
	return out
}

func buildAssetPayload(asset services.Asset) any {
	switch {
	case asset.Photo != nil:
		return buildPhotoPayload(*asset.Photo)
	case asset.PortfolioItem != nil:
		return buildItemPayload(*asset.PortfolioItem)
	default:
		return nil
	}
}

func buildPhotoPayload(p services.Photo) photoPayload {
	return photoPayload{
		ID:             p.ID,
		Kind:           string(domain.AssetKindPhoto),
		BookingID:      p.BookingID,
		RetouchOrderID: cloneStringPointer(p.RetouchOrderID),
		ImagePath:      p.ImagePath,
		Title:          p.Title,
		Description:    p.Description,
		IsPublic:       p.IsPublic,
		ClientApproved: p.ClientApproved,
		Unlinked:       p.Unlinked,
		Version:        p.Version,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func buildPortfolioPayload(view services.PortfolioView) portfolioPayload {
	p := view.Portfolio
	items := make([]portfolioItemPayload, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, buildItemPayload(item))
	}
	return portfolioPayload{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		CoverItemID: cloneStringPointer(p.CoverItemID),
		Version:     p.Version,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
		Items:       items,
	}
}

func buildItemPayload(i services.PortfolioItem) portfolioItemPayload {
	return portfolioItemPayload{
		ID:               i.ID,
		Kind:             string(domain.AssetKindPortfolioItem),
		PortfolioID:      i.PortfolioID,
		ImagePath:        i.ImagePath,
		Title:            i.Title,
		Description:      i.Description,
		IsPublic:         i.IsPublic,
		IsBeforeImage:    i.IsBeforeImage,
		AfterImageID:     cloneStringPointer(i.AfterImageID),
		BeforeImageID:    cloneStringPointer(i.BeforeImageID),
		IsPortfolioCover: i.IsPortfolioCover,
		Version:          i.Version,
		CreatedAt:        formatTime(i.CreatedAt),
		UpdatedAt:        formatTime(i.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneInt64Pointer(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
