package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

// Message attributes let subscribers filter catalog events without decoding the payload.
const (
	attrEventID   = "eventId"
	attrEventType = "eventType"
	attrBatchID   = "batchId"
	attrItemCount = "itemCount"
	attrFailures  = "failures"
)

// PubSubCatalogPublisher publishes catalog change events to a Pub/Sub topic.
type PubSubCatalogPublisher struct {
	topic *pubsub.Topic
}

var _ services.CatalogEventPublisher = (*PubSubCatalogPublisher)(nil)

// NewPubSubCatalogPublisher wraps topic. When the topic has message ordering enabled,
// events from the same batch share an ordering key.
func NewPubSubCatalogPublisher(topic *pubsub.Topic) (*PubSubCatalogPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub catalog publisher: topic is required")
	}
	return &PubSubCatalogPublisher{topic: topic}, nil
}

// PublishCatalogEvent sends the event and waits for the server-assigned message id.
func (p *PubSubCatalogPublisher) PublishCatalogEvent(ctx context.Context, event services.CatalogEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub catalog publisher: not initialised")
	}

	msg, err := catalogMessage(event)
	if err != nil {
		return "", err
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = msg.Attributes[attrBatchID]
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			// A failed publish pauses the key until resumed.
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish catalog event %s: %w", event.ID, err)
	}
	return id, nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *PubSubCatalogPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func catalogMessage(event services.CatalogEvent) (*pubsub.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog event: %w", err)
	}

	attrs := map[string]string{
		attrItemCount: strconv.Itoa(len(event.Items)),
		attrFailures:  strconv.Itoa(event.Failures),
	}
	for key, value := range map[string]string{
		attrEventID:   event.ID,
		attrEventType: event.Type,
		attrBatchID:   event.BatchID,
	} {
		if v := strings.TrimSpace(value); v != "" {
			attrs[key] = v
		}
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}
