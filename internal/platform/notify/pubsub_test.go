package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/lensmarket/api/internal/domain"
)

func TestPubSubNotifierPublishesIntent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	notifier, err := NewPubSubNotifier(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotifier: %v", err)
	}
	defer notifier.Stop()

	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	intent := domain.NotificationIntent{
		ID:         "ntf_1",
		UserID:     "retoucher-1",
		Type:       "retouch_order.completion_conflict",
		Message:    "The order changed before your upload was attached.",
		Order:      &domain.OrderRef{Type: domain.OrderTypeRetouch, ID: "rto_1"},
		Metadata:   map[string]string{"photoId": "pho_9"},
		OccurredAt: occurred,
	}
	if err := notifier.Notify(ctx, intent); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := notifier.Notify(ctx, domain.NotificationIntent{ID: "ntf_2", UserID: "client-1", Type: "booking.confirmed"}); err != nil {
		t.Fatalf("Notify without order: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	first := messages[0]
	if first.OrderingKey != "retoucher-1" {
		t.Fatalf("expected ordering key by user, got %q", first.OrderingKey)
	}
	if first.Attributes["type"] != intent.Type || first.Attributes["order"] != "retouch_order:rto_1" {
		t.Fatalf("unexpected attributes: %v", first.Attributes)
	}
	var payload message
	if err := json.Unmarshal(first.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.OrderID != "rto_1" || payload.OrderType != "retouch_order" || payload.Metadata["photoId"] != "pho_9" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if _, ok := messages[1].Attributes["order"]; ok {
		t.Fatalf("order attribute should be absent when the intent has no order")
	}
}
