package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

// OrderSubmittedEventType is the value of the eventType attribute on published messages.
const OrderSubmittedEventType = "order.submitted"

// PubSubOrderEvents publishes checkout events to a Pub/Sub topic.
type PubSubOrderEvents struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEvents)(nil)

type orderSubmittedPayload struct {
	Type          string    `json:"type"`
	SubmissionID  string    `json:"submissionId"`
	OrderID       string    `json:"orderId,omitempty"`
	Persisted     bool      `json:"persisted"`
	Total         string    `json:"total"`
	PaymentMethod string    `json:"paymentMethod"`
	LineCount     int       `json:"lineCount"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// NewPubSubOrderEvents constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEvents(topic *pubsub.Topic) (*PubSubOrderEvents, error) {
	if topic == nil {
		return nil, errors.New("pubsub order events: topic is required")
	}
	return &PubSubOrderEvents{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderSubmitted blocks until Pub/Sub acknowledges the message or ctx ends.
func (p *PubSubOrderEvents) PublishOrderSubmitted(ctx context.Context, event services.OrderSubmittedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order events: not initialised")
	}

	data, err := p.marshal(orderSubmittedPayload{
		Type:          OrderSubmittedEventType,
		SubmissionID:  event.SubmissionID,
		OrderID:       event.OrderID,
		Persisted:     event.Persisted,
		Total:         event.Total.String(),
		PaymentMethod: event.PaymentMethod,
		LineCount:     event.LineCount,
		SubmittedAt:   event.SubmittedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := map[string]string{"eventType": OrderSubmittedEventType}
	setAttr(attrs, "submissionId", event.SubmissionID)
	setAttr(attrs, "orderId", event.OrderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
