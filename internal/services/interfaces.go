package services

import (
	"context"
	"time"

	domain "github.com/lensmarket/api/internal/domain"
)

type (
	Booking        = domain.Booking
	BookingService = domain.BookingService
	RetouchOrder   = domain.RetouchOrder
	Order          = domain.Order
	OrderRef       = domain.OrderRef
	Payment        = domain.Payment
	Photo          = domain.Photo
	Portfolio      = domain.Portfolio
	PortfolioItem  = domain.PortfolioItem
	Asset          = domain.Asset
	AssetRef       = domain.AssetRef
	Actor          = domain.Actor
)

// OrderLedger is the sole authority over booking and retouch order status.
type OrderLedger interface {
	CreateBooking(ctx context.Context, cmd CreateBookingCommand) (Booking, error)
	CreateRetouchOrder(ctx context.Context, cmd CreateRetouchOrderCommand) (RetouchOrder, error)
	GetOrder(ctx context.Context, ref OrderRef) (Order, error)
	Advance(ctx context.Context, cmd AdvanceOrderCommand) (Order, error)
	SetFinalAmount(ctx context.Context, cmd SetFinalAmountCommand) (Booking, error)
	AddBookingService(ctx context.Context, cmd AddBookingServiceCommand) (Booking, error)
	RemoveBookingService(ctx context.Context, cmd RemoveBookingServiceCommand) (Booking, error)
	RecordPayment(ctx context.Context, cmd RecordOrderPaymentCommand) (Order, error)
}

// PaymentGateway creates and tracks payments against polymorphic order references.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (Payment, error)
	UpdateStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error)
	SyncOrderPayment(ctx context.Context, paymentID string) (Payment, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
	ListByOrder(ctx context.Context, ref OrderRef) ([]Payment, error)
}

// AssetStore manages photos and portfolio items together with their pairing and cover rules.
type AssetStore interface {
	CreatePortfolio(ctx context.Context, cmd CreatePortfolioCommand) (Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (PortfolioView, error)
	Upload(ctx context.Context, cmd UploadAssetCommand) (Asset, error)
	GetAsset(ctx context.Context, ref AssetRef) (Asset, error)
	LinkBeforeAfter(ctx context.Context, cmd LinkBeforeAfterCommand) error
	UnlinkBeforeAfter(ctx context.Context, beforeID string) error
	SetCover(ctx context.Context, cmd SetCoverCommand) error
	Approve(ctx context.Context, cmd ApprovePhotoCommand) (Photo, error)
	Delete(ctx context.Context, ref AssetRef) error
	MarkUnlinked(ctx context.Context, photoID string) (Photo, error)
	MarkLinked(ctx context.Context, photoID string) (Photo, error)
	ListUnlinkedPhotos(ctx context.Context, before time.Time, limit int) ([]Photo, error)
	PurgeUnlinkedPhoto(ctx context.Context, photoID string, before time.Time) (PurgeOutcome, error)
}

// ConsistencyCoordinator sequences operations spanning several components.
type ConsistencyCoordinator interface {
	PayForOrder(ctx context.Context, cmd CreatePaymentCommand) (Payment, error)
	ConfirmPayment(ctx context.Context, cmd UpdatePaymentStatusCommand) (Payment, error)
	CompleteRetouchOrder(ctx context.Context, cmd CompleteRetouchOrderCommand) (RetouchOrder, error)
}

// Notifier accepts notification intents for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, intent domain.NotificationIntent) error
}

// ObjectRemover deletes stored image objects. Missing objects are not an error.
type ObjectRemover interface {
	Remove(ctx context.Context, objectPath string) error
}

// CreateBookingCommand opens a pending booking.
type CreateBookingCommand struct {
	Actor           Actor
	ClientID        string
	PhotographerID  string
	BookingDate     time.Time
	InitialAmount   int64
	Currency        string
	DeliveredPublic bool
	Services        []BookingServiceInput
}

// BookingServiceInput describes an extra booking line.
type BookingServiceInput struct {
	Name        string
	Description string
	Price       int64
}

// CreateRetouchOrderCommand opens a pending retouch order.
type CreateRetouchOrderCommand struct {
	Actor         Actor
	ClientID      string
	RetoucherID   string
	SourcePhotoID string
	Price         int64
	Currency      string
	Requirements  string
}

// AdvanceOrderCommand requests a status transition. ExpectedStatus, when set,
// is the status the caller observed; a different stored status is reported as
// a concurrent modification. RetouchedPhotoID is required when completing a
// retouch order and rejected otherwise.
type AdvanceOrderCommand struct {
	Ref              OrderRef
	Target           domain.OrderStatus
	Actor            Actor
	ExpectedStatus   *domain.OrderStatus
	RetouchedPhotoID *string
	Reason           string
}

type SetFinalAmountCommand struct {
	BookingID string
	Amount    int64
	Actor     Actor
}

type AddBookingServiceCommand struct {
	BookingID string
	Actor     Actor
	Service   BookingServiceInput
}

type RemoveBookingServiceCommand struct {
	BookingID string
	Actor     Actor
	Index     int
}

// RecordOrderPaymentCommand sets (Paid) or clears the paid flag of an order on
// behalf of PaymentID.
type RecordOrderPaymentCommand struct {
	Ref       OrderRef
	PaymentID string
	Paid      bool
}

// CreatePaymentCommand opens a pending payment. RequestedAmount is whatever the
// client sent and is never used as the charged amount.
type CreatePaymentCommand struct {
	UserID          string
	Order           OrderRef
	Method          string
	RequestedAmount *int64
}

type UpdatePaymentStatusCommand struct {
	PaymentID     string
	Status        domain.PaymentStatus
	TransactionID *string
}

type CreatePortfolioCommand struct {
	OwnerID string
	Title   string
}

// PortfolioView is a portfolio header together with its items.
type PortfolioView struct {
	Portfolio Portfolio
	Items     []PortfolioItem
}

// UploadAssetCommand registers an uploaded image. OwnerID is the booking id
// for photos and the portfolio id for portfolio items.
type UploadAssetCommand struct {
	Kind        domain.AssetKind
	OwnerID     string
	ImagePath   string
	Title       string
	Description string
	IsPublic    bool

	RetouchOrderID *string
	Unlinked       bool

	IsBeforeImage    bool
	AfterImageID     *string
	IsPortfolioCover bool
}

type LinkBeforeAfterCommand struct {
	BeforeID string
	AfterID  string
}

type SetCoverCommand struct {
	PortfolioID string
	ItemID      string
}

type ApprovePhotoCommand struct {
	PhotoID  string
	Approved bool
}

// PurgeOutcome reports what the cleanup pass did with one photo.
type PurgeOutcome string

const (
	PurgeOutcomeDeleted  PurgeOutcome = "deleted"
	PurgeOutcomeRelinked PurgeOutcome = "relinked"
	PurgeOutcomeSkipped  PurgeOutcome = "skipped"
)

// CompleteRetouchOrderCommand delivers the retouched photo for an order.
type CompleteRetouchOrderCommand struct {
	OrderID string
	Actor   Actor
	Asset   RetouchedAssetPayload
}

type RetouchedAssetPayload struct {
	ImagePath   string
	Title       string
	Description string
	IsPublic    bool
}
