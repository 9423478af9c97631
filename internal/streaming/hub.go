// Package streaming fans project change events out to live subscribers,
// such as editors following a project over server-sent events.
package streaming

import (
	"context"
	"time"
)

// Event types.
const (
	EventSnapshot        = "project.snapshot"
	EventProjectCreated  = "project.created"
	EventProjectImported = "project.imported"
	EventProjectUpdated  = "project.updated"
	EventProjectDeleted  = "project.deleted"
	EventSourceGenerated = "source.generated"
)

// Event is a change to one project.
type Event struct {
	ProjectID string    `json:"project_id"`
	EventType string    `json:"event_type"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// Filter specifies which events a subscriber wants to receive. Zero fields
// match everything.
type Filter struct {
	ProjectID  string   `json:"project_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Hub provides pub/sub for project events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of matching events and a cancel function
	// that ends the subscription and closes the channel.
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
