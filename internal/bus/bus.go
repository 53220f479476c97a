// Package bus carries pipeline events between the audit run and the
// read API, over Go channels in one process or NATS across processes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" returns a ChannelBus for a single process.
// "nats" returns a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("%w: unsupported event bus type: %s", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

// PublishJSON encodes event and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}
