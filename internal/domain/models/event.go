package models

import "time"

// EventType names a lifecycle event published to the events topic.
type EventType string

const (
	EventListingDiscovered EventType = "listing.discovered"
	EventTargetScheduled   EventType = "target.scheduled"
	EventTargetCancelled   EventType = "target.cancelled"
	EventTargetFired       EventType = "target.fired"
)

// Event is the envelope written to the events topic.
type Event struct {
	Type      EventType   `json:"type"`
	Source    Source      `json:"source"`
	ThreadID  string      `json:"thread_id,omitempty"`
	ListingID string      `json:"listing_id"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}
