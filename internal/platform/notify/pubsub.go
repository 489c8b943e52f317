// Package notify publishes notification intents to Pub/Sub for the delivery
// workers that own email and push.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/lensmarket/api/internal/domain"
)

// message is the wire payload. Field names are shared with the delivery
// workers and must stay stable.
type message struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	OrderType  string            `json:"orderType,omitempty"`
	OrderID    string            `json:"orderId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// PubSubNotifier implements services.Notifier on a Pub/Sub topic.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	// Intents for one user keep their order.
	topic.EnableMessageOrdering = true
	return &PubSubNotifier{topic: topic}, nil
}

// Notify blocks until Pub/Sub acknowledges the publish.
func (n *PubSubNotifier) Notify(ctx context.Context, intent domain.NotificationIntent) error {
	body := message{
		ID:         intent.ID,
		UserID:     intent.UserID,
		Type:       intent.Type,
		Message:    intent.Message,
		Metadata:   intent.Metadata,
		OccurredAt: intent.OccurredAt.UTC(),
	}
	attrs := map[string]string{"type": intent.Type}
	if intent.Order != nil {
		body.OrderType = string(intent.Order.Type)
		body.OrderID = intent.Order.ID
		attrs["order"] = intent.Order.String()
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", intent.ID, err)
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: intent.UserID,
	})
	if _, err := result.Get(ctx); err != nil {
		n.topic.ResumePublish(intent.UserID)
		return fmt.Errorf("publish notification %s: %w", intent.ID, err)
	}
	return nil
}

// Stop flushes pending publishes.
func (n *PubSubNotifier) Stop() {
	n.topic.Stop()
}
