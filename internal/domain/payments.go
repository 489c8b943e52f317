package domain

import "time"

// PaymentStatus enumerates payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Active reports whether a payment in this status occupies its order's payment slot.
func (s PaymentStatus) Active() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted
}

// Payment records a user's payment against an order. The order is referenced
// weakly by type and id.
type Payment struct {
	ID            string
	UserID        string
	Order         OrderRef
	Amount        int64
	Currency      string
	Method        string
	Status        PaymentStatus
	TransactionID *string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the payment still holds the order's active slot.
func (p Payment) Active() bool {
	return p.Status.Active()
}
