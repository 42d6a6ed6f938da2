package outbound

import (
	"context"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeAuctionStarted       EventType = "auction.started"
	EventTypeBidPlaced            EventType = "bid.placed"
	EventTypeAuctionEnded         EventType = "auction.ended"
	EventTypeAuctionTimeRemaining EventType = "auction.time_remaining"
)

// Event represents a live event relayed to connected clients
type Event struct {
	Type      EventType              `json:"type"`
	AuctionID int64                  `json:"auction_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Broadcaster defines the interface for relaying live auction events
type Broadcaster interface {
	// Subscribe subscribes a client to events for a specific auction
	// When a client subscribes to multiple auctions, all events are delivered to the same channel
	Subscribe(ctx context.Context, auctionID int64, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from events for a specific auction
	Unsubscribe(ctx context.Context, auctionID int64, clientID string) error

	// Publish publishes an event to all subscribers of an auction
	Publish(ctx context.Context, auctionID int64, event Event) error

	// IsSubscribed checks if a client is subscribed to an auction
	IsSubscribed(ctx context.Context, auctionID int64, clientID string) bool
}
