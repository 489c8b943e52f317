package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lensmarket/api/internal/domain"
)

const notificationIDPrefix = "ntf_"

type logFunc func(ctx context.Context, event string, fields map[string]any)

func defaultClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func defaultIDGenerator(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string {
		return ulid.Make().String()
	}
}

func defaultLogger(logger func(context.Context, string, map[string]any)) logFunc {
	if logger == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return logger
}

// notifier wraps the optional Notifier so callers never see delivery failures.
type notifier struct {
	target Notifier
	clock  func() time.Time
	newID  func() string
	logger logFunc
}

func (n notifier) emit(ctx context.Context, intent domain.NotificationIntent) {
	if n.target == nil || intent.UserID == "" {
		return
	}
	if intent.ID == "" {
		intent.ID = notificationIDPrefix + n.newID()
	}
	if intent.OccurredAt.IsZero() {
		intent.OccurredAt = n.clock()
	}
	if err := n.target.Notify(ctx, intent); err != nil {
		n.logger(ctx, "notification.publish.failed", map[string]any{
			"type":  intent.Type,
			"user":  intent.UserID,
			"error": err.Error(),
		})
	}
}

func valuePtr[T any](v T) *T {
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
