package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	txAttempts = 5
	txTimeout  = 15 * time.Second

	versionField = "version"
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction runs fn with a bounded number of attempts. Errors from fn
// that already carry repository semantics, such as a stale version, are
// returned as they are.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil || fn == nil {
		return WrapError("transaction", errors.New("firestore: client and transaction function are required"))
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}
	return WrapError("transaction", client.RunTransaction(ctx, fn, firestore.MaxAttempts(txAttempts)))
}

// ExpectVersion reads ref inside tx and fails with a conflict unless its
// stored version equals expected. A missing document is a not-found error.
func ExpectVersion(tx *firestore.Transaction, ref *firestore.DocumentRef, op string, expected int64) (*firestore.DocumentSnapshot, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, NotFound(op, ref.ID)
	}
	if err != nil {
		return nil, err
	}
	stored, err := VersionOf(snap)
	if err != nil {
		return nil, err
	}
	if stored != expected {
		return nil, Conflict(op, "%s version mismatch: expected %d, stored %d", ref.ID, expected, stored)
	}
	return snap, nil
}

// VersionOf returns the CAS counter stored on snap.
func VersionOf(snap *firestore.DocumentSnapshot) (int64, error) {
	raw, err := snap.DataAt(versionField)
	if err != nil {
		return 0, fmt.Errorf("firestore: read version of %s: %w", snap.Ref.ID, err)
	}
	version, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("firestore: version of %s has type %T", snap.Ref.ID, raw)
	}
	return version, nil
}
