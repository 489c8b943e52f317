package firestore

import (
	"time"

	domain "github.com/lensmarket/api/internal/domain"
)

type paymentMarkDocument struct {
	Paid      bool       `firestore:"paid"`
	PaidAt    *time.Time `firestore:"paidAt,omitempty"`
	PaymentID *string    `firestore:"paymentId,omitempty"`
}

type bookingServiceDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	AddedAt     time.Time `firestore:"addedAt"`
}

type bookingDocument struct {
	ClientID        string                   `firestore:"clientId"`
	PhotographerID  string                   `firestore:"photographerId"`
	BookingDate     time.Time                `firestore:"bookingDate"`
	Status          string                   `firestore:"status"`
	InitialAmount   int64                    `firestore:"initialAmount"`
	FinalAmount     *int64                   `firestore:"finalAmount,omitempty"`
	Currency        string                   `firestore:"currency"`
	DeliveredPublic bool                     `firestore:"deliveredPublic"`
	Services        []bookingServiceDocument `firestore:"services"`
	Payment         paymentMarkDocument      `firestore:"payment"`
	Version         int64                    `firestore:"version"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
	CompletedAt     *time.Time               `firestore:"completedAt,omitempty"`
	CancelledAt     *time.Time               `firestore:"cancelledAt,omitempty"`
}

type retouchOrderDocument struct {
	ClientID         string              `firestore:"clientId"`
	RetoucherID      string              `firestore:"retoucherId"`
	SourcePhotoID    string              `firestore:"sourcePhotoId"`
	RetouchedPhotoID *string             `firestore:"retouchedPhotoId"`
	Status           string              `firestore:"status"`
	Price            int64               `firestore:"price"`
	Currency         string              `firestore:"currency"`
	Requirements     string              `firestore:"requirements,omitempty"`
	Payment          paymentMarkDocument `firestore:"payment"`
	Version          int64               `firestore:"version"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	CompletedAt      *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt      *time.Time          `firestore:"cancelledAt,omitempty"`
}

type paymentDocument struct {
	UserID        string    `firestore:"userId"`
	OrderType     string    `firestore:"orderType"`
	OrderID       string    `firestore:"orderId"`
	Amount        int64     `firestore:"amount"`
	Currency      string    `firestore:"currency"`
	Method        string    `firestore:"method"`
	Status        string    `firestore:"status"`
	TransactionID *string   `firestore:"transactionId,omitempty"`
	Version       int64     `firestore:"version"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// paymentLockDocument occupies paymentLocks/{orderType}:{orderId} while the
// order holds a pending or completed payment.
type paymentLockDocument struct {
	PaymentID string    `firestore:"paymentId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type photoDocument struct {
	BookingID      string     `firestore:"bookingId"`
	RetouchOrderID *string    `firestore:"retouchOrderId,omitempty"`
	ImagePath      string     `firestore:"imagePath"`
	Title          string     `firestore:"title,omitempty"`
	Description    string     `firestore:"description,omitempty"`
	IsPublic       bool       `firestore:"isPublic"`
	ClientApproved bool       `firestore:"clientApproved"`
	Unlinked       bool       `firestore:"unlinked"`
	UnlinkedAt     *time.Time `firestore:"unlinkedAt"`
	Version        int64      `firestore:"version"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

type portfolioDocument struct {
	OwnerID     string    `firestore:"ownerId"`
	Title       string    `firestore:"title,omitempty"`
	CoverItemID *string   `firestore:"coverItemId"`
	Version     int64     `firestore:"version"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type portfolioItemDocument struct {
	PortfolioID      string    `firestore:"portfolioId"`
	ImagePath        string    `firestore:"imagePath"`
	Title            string    `firestore:"title,omitempty"`
	Description      string    `firestore:"description,omitempty"`
	IsPublic         bool      `firestore:"isPublic"`
	IsBeforeImage    bool      `firestore:"isBeforeImage"`
	AfterImageID     *string   `firestore:"afterImageId"`
	BeforeImageID    *string   `firestore:"beforeImageId"`
	IsPortfolioCover bool      `firestore:"isPortfolioCover"`
	Version          int64     `firestore:"version"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func encodeMark(m domain.PaymentMark) paymentMarkDocument {
	return paymentMarkDocument{Paid: m.Paid, PaidAt: utcPtr(m.PaidAt), PaymentID: m.PaymentID}
}

func decodeMark(d paymentMarkDocument) domain.PaymentMark {
	return domain.PaymentMark{Paid: d.Paid, PaidAt: utcPtr(d.PaidAt), PaymentID: d.PaymentID}
}

func encodeBooking(b domain.Booking) bookingDocument {
	services := make([]bookingServiceDocument, 0, len(b.Services))
	for _, svc := range b.Services {
		services = append(services, bookingServiceDocument{
			Name:        svc.Name,
			Description: svc.Description,
			Price:       svc.Price,
			AddedAt:     svc.AddedAt.UTC(),
		})
	}
	return bookingDocument{
		ClientID:        b.ClientID,
		PhotographerID:  b.PhotographerID,
		BookingDate:     b.BookingDate.UTC(),
		Status:          string(b.Status),
		InitialAmount:   b.InitialAmount,
		FinalAmount:     b.FinalAmount,
		Currency:        b.Currency,
		DeliveredPublic: b.DeliveredPublic,
		Services:        services,
		Payment:         encodeMark(b.Payment),
		Version:         b.Version,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
		CompletedAt:     utcPtr(b.CompletedAt),
		CancelledAt:     utcPtr(b.CancelledAt),
	}
}

func decodeBooking(id string, d bookingDocument) domain.Booking {
	var services []domain.BookingService
	for _, svc := range d.Services {
		services = append(services, domain.BookingService{
			Name:        svc.Name,
			Description: svc.Description,
			Price:       svc.Price,
			AddedAt:     svc.AddedAt.UTC(),
		})
	}
	return domain.Booking{
		ID:              id,
		ClientID:        d.ClientID,
		PhotographerID:  d.PhotographerID,
		BookingDate:     d.BookingDate.UTC(),
		Status:          domain.OrderStatus(d.Status),
		InitialAmount:   d.InitialAmount,
		FinalAmount:     d.FinalAmount,
		Currency:        d.Currency,
		DeliveredPublic: d.DeliveredPublic,
		Services:        services,
		Payment:         decodeMark(d.Payment),
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		CompletedAt:     utcPtr(d.CompletedAt),
		CancelledAt:     utcPtr(d.CancelledAt),
	}
}

func encodeRetouch(o domain.RetouchOrder) retouchOrderDocument {
	return retouchOrderDocument{
		ClientID:         o.ClientID,
		RetoucherID:      o.RetoucherID,
		SourcePhotoID:    o.SourcePhotoID,
		RetouchedPhotoID: o.RetouchedPhotoID,
		Status:           string(o.Status),
		Price:            o.Price,
		Currency:         o.Currency,
		Requirements:     o.Requirements,
		Payment:          encodeMark(o.Payment),
		Version:          o.Version,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
		CompletedAt:      utcPtr(o.CompletedAt),
		CancelledAt:      utcPtr(o.CancelledAt),
	}
}

func decodeRetouch(id string, d retouchOrderDocument) domain.RetouchOrder {
	return domain.RetouchOrder{
		ID:               id,
		ClientID:         d.ClientID,
		RetoucherID:      d.RetoucherID,
		SourcePhotoID:    d.SourcePhotoID,
		RetouchedPhotoID: d.RetouchedPhotoID,
		Status:           domain.OrderStatus(d.Status),
		Price:            d.Price,
		Currency:         d.Currency,
		Requirements:     d.Requirements,
		Payment:          decodeMark(d.Payment),
		Version:          d.Version,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		CompletedAt:      utcPtr(d.CompletedAt),
		CancelledAt:      utcPtr(d.CancelledAt),
	}
}

func encodePayment(p domain.Payment) paymentDocument {
	return paymentDocument{
		UserID:        p.UserID,
		OrderType:     string(p.Order.Type),
		OrderID:       p.Order.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func decodePayment(id string, d paymentDocument) domain.Payment {
	return domain.Payment{
		ID:            id,
		UserID:        d.UserID,
		Order:         domain.OrderRef{Type: domain.OrderType(d.OrderType), ID: d.OrderID},
		Amount:        d.Amount,
		Currency:      d.Currency,
		Method:        d.Method,
		Status:        domain.PaymentStatus(d.Status),
		TransactionID: d.TransactionID,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func encodePhoto(p domain.Photo) photoDocument {
	return photoDocument{
		BookingID:      p.BookingID,
		RetouchOrderID: p.RetouchOrderID,
		ImagePath:      p.ImagePath,
		Title:          p.Title,
		Description:    p.Description,
		IsPublic:       p.IsPublic,
		ClientApproved: p.ClientApproved,
		Unlinked:       p.Unlinked,
		UnlinkedAt:     utcPtr(p.UnlinkedAt),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func decodePhoto(id string, d photoDocument) domain.Photo {
	return domain.Photo{
		ID:             id,
		BookingID:      d.BookingID,
		RetouchOrderID: d.RetouchOrderID,
		ImagePath:      d.ImagePath,
		Title:          d.Title,
		Description:    d.Description,
		IsPublic:       d.IsPublic,
		ClientApproved: d.ClientApproved,
		Unlinked:       d.Unlinked,
		UnlinkedAt:     utcPtr(d.UnlinkedAt),
		Version:        d.Version,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

func encodePortfolio(p domain.Portfolio) portfolioDocument {
	return portfolioDocument{
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		CoverItemID: p.CoverItemID,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func decodePortfolio(id string, d portfolioDocument) domain.Portfolio {
	return domain.Portfolio{
		ID:          id,
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		CoverItemID: d.CoverItemID,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func encodeItem(i domain.PortfolioItem) portfolioItemDocument {
	return portfolioItemDocument{
		PortfolioID:      i.PortfolioID,
		ImagePath:        i.ImagePath,
		Title:            i.Title,
		Description:      i.Description,
		IsPublic:         i.IsPublic,
		IsBeforeImage:    i.IsBeforeImage,
		AfterImageID:     i.AfterImageID,
		BeforeImageID:    i.BeforeImageID,
		IsPortfolioCover: i.IsPortfolioCover,
		Version:          i.Version,
		CreatedAt:        i.CreatedAt.UTC(),
		UpdatedAt:        i.UpdatedAt.UTC(),
	}
}

func decodeItem(id string, d portfolioItemDocument) domain.PortfolioItem {
	return domain.PortfolioItem{
		ID:               id,
		PortfolioID:      d.PortfolioID,
		ImagePath:        d.ImagePath,
		Title:            d.Title,
		Description:      d.Description,
		IsPublic:         d.IsPublic,
		IsBeforeImage:    d.IsBeforeImage,
		AfterImageID:     d.AfterImageID,
		BeforeImageID:    d.BeforeImageID,
		IsPortfolioCover: d.IsPortfolioCover,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
