package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// PubSub publishes notification events to a Pub/Sub topic instead of
// messaging the recipient directly. Downstream consumers fan the event out.
type PubSub struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

var _ retriever.Notifier = (*PubSub)(nil)

// NewPubSub constructs a PubSub notifier for an existing topic handle.
func NewPubSub(topic *pubsub.Topic, logger *zap.Logger) (*PubSub, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSub{topic: topic, logger: logger}, nil
}

type notificationEvent struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

// Notify publishes the event and waits for the server ack.
func (p *PubSub) Notify(ctx context.Context, recipientID, text string) error {
	data, err := json.Marshal(notificationEvent{RecipientID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"recipient_id": recipientID},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.logger.Debug("event published", zap.String("message_id", id))
	return nil
}
