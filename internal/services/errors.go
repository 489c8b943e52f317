package services

import (
	"errors"
	"fmt"

	"github.com/lensmarket/api/internal/repositories"
)

var (
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition indicates a status change that the transition table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState indicates the entity is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrConcurrentModification indicates a conditional write lost against another writer.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrOrderNotFound indicates the referenced order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderNotPayable indicates the order status does not accept payments.
	ErrOrderNotPayable = errors.New("order: not payable")

	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrDuplicateActivePayment indicates the order already has a pending or completed payment.
	ErrDuplicateActivePayment = errors.New("payment: duplicate active payment")
	// ErrPaymentPropagation indicates the payment was stored but the order was not updated.
	ErrPaymentPropagation = errors.New("payment: order propagation failed")

	// ErrAssetNotFound indicates the photo, portfolio item or portfolio does not exist.
	ErrAssetNotFound = errors.New("asset: not found")
	// ErrCrossPortfolio indicates a pairing or cover request spanning two portfolios.
	ErrCrossPortfolio = errors.New("asset: items belong to different portfolios")
	// ErrSelfReference indicates an item was paired with itself.
	ErrSelfReference = errors.New("asset: item cannot reference itself")
	// ErrAlreadyLinked indicates an item already participates in a different pair.
	ErrAlreadyLinked = errors.New("asset: item already linked")
	// ErrAssetInUse indicates the asset is still referenced by an order or a pair.
	ErrAssetInUse = errors.New("asset: in use")

	// ErrCompletionConflict indicates the retouched photo was stored but the order could not be completed.
	ErrCompletionConflict = errors.New("retouch: completion conflict")
)

// mapRepositoryError classifies storage failures, using notFound for missing rows.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, repositories.ErrActivePaymentExists) {
		return fmt.Errorf("%w: %v", ErrDuplicateActivePayment, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return err
}
