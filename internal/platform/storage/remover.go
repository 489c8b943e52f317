package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Remover deletes image objects from one bucket.
type Remover struct {
	bucket string
	delete func(ctx context.Context, object string) error
}

// NewRemover binds a Remover to bucket on client.
func NewRemover(client *gcs.Client, bucket string) (*Remover, error) {
	if client == nil {
		return nil, errors.New("storage remover: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage remover: bucket is required")
	}
	handle := client.Bucket(bucket)
	return &Remover{
		bucket: bucket,
		delete: func(ctx context.Context, object string) error {
			return handle.Object(object).Delete(ctx)
		},
	}, nil
}

// Remove deletes objectPath. An object that is already gone counts as removed,
// so repeated cleanup passes converge.
func (r *Remover) Remove(ctx context.Context, objectPath string) error {
	object := strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if object == "" {
		return errors.New("storage remover: object path is required")
	}
	if err := r.delete(ctx, object); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage remover: delete gs://%s/%s: %w", r.bucket, object, err)
	}
	return nil
}
