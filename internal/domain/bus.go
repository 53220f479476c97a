package domain

import (
	"context"
	"time"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single process) or NATS (across processes).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `yaml:"nats_url"`
	NATSToken         string `yaml:"nats_token"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait"` // seconds
}

// Pipeline topics.
const (
	TopicEntityAudited   = "quotawatch.entity.audited"
	TopicReportGenerated = "quotawatch.report.generated"
)

// EntityAuditedEvent is published after each entity's audit.
type EntityAuditedEvent struct {
	RunID       string      `json:"runId"`
	EntityID    string      `json:"entityId"`
	Status      AuditStatus `json:"status"`
	FlaggedRows int         `json:"flaggedRows"`
}

// ReportGeneratedEvent is published after report artifacts are written.
type ReportGeneratedEvent struct {
	Date      string    `json:"date"`
	Period    string    `json:"period"`
	Artifacts []string  `json:"artifacts"`
	At        time.Time `json:"at"`
}
