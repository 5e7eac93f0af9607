package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"memberships/internal/notify"
	"memberships/internal/platform/kafka/producer"
)

type recordProducer interface {
	Publish(ctx context.Context, msg producer.Message) error
}

// KafkaPublisher writes notifications to a topic keyed by account, so each
// member's mail stays in order.
type KafkaPublisher struct {
	producer recordProducer
	topic    string
}

func NewKafkaPublisher(p recordProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg notify.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", msg.ID, err)
	}
	return p.producer.Publish(ctx, producer.Message{
		Topic: p.topic,
		Key:   []byte(msg.AccountID.String()),
		Value: value,
		Headers: map[string]string{
			"kind":       string(msg.Kind),
			"message_id": msg.ID.String(),
		},
	})
}
