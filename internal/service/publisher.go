package service

import (
	"context"

	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/usage"
)

// PubSubUsagePublisher publishes usage events to a Pub/Sub topic.
type PubSubUsagePublisher struct {
	pubsub *client.PubSubClient
}

// NewPubSubUsagePublisher creates a new PubSubUsagePublisher.
func NewPubSubUsagePublisher(pubsub *client.PubSubClient) *PubSubUsagePublisher {
	return &PubSubUsagePublisher{pubsub: pubsub}
}

// PublishUsage sends event as JSON with a kind attribute for subscription filters.
func (p *PubSubUsagePublisher) PublishUsage(ctx context.Context, event usage.Event) error {
	return p.pubsub.PublishWithAttributes(ctx, event, map[string]string{
		"kind": string(event.Kind),
	})
}
