package domain

import "time"

// OrderType discriminates the two order kinds a payment may reference.
type OrderType string

const (
	// OrderTypeBooking marks a photographer booking.
	OrderTypeBooking OrderType = "booking"
	// OrderTypeRetouch marks a retouching commission.
	OrderTypeRetouch OrderType = "retouch_order"
)

// Valid reports whether the type is one of the known order kinds.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeBooking, OrderTypeRetouch:
		return true
	default:
		return false
	}
}

// OrderRef identifies an order polymorphically by type tag and id.
type OrderRef struct {
	Type OrderType
	ID   string
}

// String renders the reference as "type:id".
func (r OrderRef) String() string {
	return string(r.Type) + ":" + r.ID
}

// OrderStatus enumerates lifecycle states shared by bookings and retouch orders.
// Which states are reachable depends on the order type.
type OrderStatus string

const (
	// OrderStatusPending is the initial state for every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the photographer accepted the booking.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProgress indicates the retoucher started working.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted is terminal: the service was delivered.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted from the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentMark is the paid axis of an order, independent of its delivery status.
type PaymentMark struct {
	Paid      bool
	PaidAt    *time.Time
	PaymentID *string
}

// BookingService is an extra line item attached to a booking.
type BookingService struct {
	Name        string
	Description string
	Price       int64
	AddedAt     time.Time
}

// Booking is a client's reservation of a photographer.
type Booking struct {
	ID              string
	ClientID        string
	PhotographerID  string
	BookingDate     time.Time
	Status          OrderStatus
	InitialAmount   int64
	FinalAmount     *int64
	Currency        string
	DeliveredPublic bool
	Services        []BookingService
	Payment         PaymentMark
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
}

// PayableAmount returns the explicitly set final amount or, when absent, the
// initial amount plus every service line.
func (b Booking) PayableAmount() int64 {
	if b.FinalAmount != nil {
		return *b.FinalAmount
	}
	total := b.InitialAmount
	for _, svc := range b.Services {
		total += svc.Price
	}
	return total
}

// RetouchOrder is a client's commission of a retoucher for one source photo.
type RetouchOrder struct {
	ID               string
	ClientID         string
	RetoucherID      string
	SourcePhotoID    string
	RetouchedPhotoID *string
	Status           OrderStatus
	Price            int64
	Currency         string
	Requirements     string
	Payment          PaymentMark
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// Order is a tagged union over Booking and RetouchOrder. Exactly one of the
// pointers is set, matching Type.
type Order struct {
	Type    OrderType
	Booking *Booking
	Retouch *RetouchOrder
}

// BookingOrder wraps a booking in the Order union.
func BookingOrder(b Booking) Order {
	return Order{Type: OrderTypeBooking, Booking: &b}
}

// RetouchOrderOf wraps a retouch order in the Order union.
func RetouchOrderOf(r RetouchOrder) Order {
	return Order{Type: OrderTypeRetouch, Retouch: &r}
}

// Ref returns the polymorphic reference for the order.
func (o Order) Ref() OrderRef {
	return OrderRef{Type: o.Type, ID: o.ID()}
}

// ID returns the wrapped order id.
func (o Order) ID() string {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.ID
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.ID
		}
	}
	return ""
}

// Status returns the lifecycle status of the wrapped order.
func (o Order) Status() OrderStatus {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.Status
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.Status
		}
	}
	return ""
}

// ClientID returns the paying client of the order.
func (o Order) ClientID() string {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.ClientID
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.ClientID
		}
	}
	return ""
}

// ProviderID returns the photographer or retoucher serving the order.
func (o Order) ProviderID() string {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.PhotographerID
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.RetoucherID
		}
	}
	return ""
}

// PayableAmount returns the amount a payment for this order must carry.
func (o Order) PayableAmount() int64 {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.PayableAmount()
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.Price
		}
	}
	return 0
}

// Currency returns the ISO currency code of the order.
func (o Order) Currency() string {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.Currency
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.Currency
		}
	}
	return ""
}

// PaymentMark returns the paid axis of the order.
func (o Order) PaymentMark() PaymentMark {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.Payment
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.Payment
		}
	}
	return PaymentMark{}
}

// Version returns the optimistic concurrency version of the wrapped order.
func (o Order) Version() int64 {
	switch o.Type {
	case OrderTypeBooking:
		if o.Booking != nil {
			return o.Booking.Version
		}
	case OrderTypeRetouch:
		if o.Retouch != nil {
			return o.Retouch.Version
		}
	}
	return 0
}
