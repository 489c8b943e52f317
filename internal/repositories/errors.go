package repositories

import "errors"

var (
	// ErrActivePaymentExists indicates the order already holds a pending or completed payment.
	ErrActivePaymentExists = errors.New("payment repository: active payment exists for order")
)
