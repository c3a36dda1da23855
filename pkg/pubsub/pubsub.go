package pubsub

import (
	"context"
	"encoding/json"

	"github.com/ritzau/sbom-resolver/pkg/resolver"
)

// Topics
const (
	TopicResolutionStatus = "resolution_status"
	TopicServiceStatus    = "service_status"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "resolution_status")
	Type    string          `json:"type"`    // Event type (e.g., "started", "traversing", "completed")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events. It is closed when the
	// subscription or the publisher closes.
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// ResolutionStatus is the payload of resolution_status events
type ResolutionStatus struct {
	Root  string `json:"root"`
	Stage string `json:"stage"` // started, versions, traversing, completed, failed
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
	Error string `json:"error,omitempty"`
}

// ServiceStatus is the payload of service_status events
type ServiceStatus struct {
	State   string `json:"state"`   // ready, reloaded, cache_purged, reload_failed
	Message string `json:"message"` // Human-readable status message
}

// NewResolutionStatus converts resolver progress into an event payload
func NewResolutionStatus(p resolver.Progress) ResolutionStatus {
	status := ResolutionStatus{
		Root:  p.Root,
		Stage: string(p.Stage),
		Nodes: p.Nodes,
		Edges: p.Edges,
	}
	if p.Err != nil {
		status.Error = p.Err.Error()
	}
	return status
}

// ResolutionObserver returns a resolver observer that publishes every progress
// report on the resolution_status topic
func ResolutionObserver(p Publisher) func(resolver.Progress) {
	return func(progress resolver.Progress) {
		status := NewResolutionStatus(progress)
		if err := p.Publish(TopicResolutionStatus, status.Stage, status); err != nil {
			log.Debug("dropping resolution status", "root", status.Root, "error", err)
		}
	}
}
