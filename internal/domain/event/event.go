// Package event defines the messages exchanged over the broker: routing
// keys, exchange names and typed payloads for the lifecycle and
// notification streams.
package event

import (
	"encoding/json"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"
)

// Exchanges
const (
	AuctionExchange      = "auction-exchange"
	NotificationExchange = "notification-exchange"
	CartExchange         = "cart-exchange"
	MetricsExchange      = "metrics-exchange"
)

// Queues consumed by the lifecycle consumers
const (
	AuctionStartQueue         = "auction-start-queue"
	AuctionEndQueue           = "auction-end-queue"
	AuctionTimeRemainingQueue = "auction-time-remaining-queue"
)

// RoutingKey selects the queue a message lands in
type RoutingKey string

const (
	RoutingKeyAuctionStart   RoutingKey = "auction.start"
	RoutingKeyAuctionEnd     RoutingKey = "auction.end"
	RoutingKeyAuctionTime    RoutingKey = "auction.time"
	RoutingKeyWatchlistMatch RoutingKey = "watchlist.match"
	RoutingKeyNewBid         RoutingKey = "bid.new"
	RoutingKeyOutbid         RoutingKey = "bid.outbid"
	RoutingKeyAuctionClosed  RoutingKey = "auction.closed"
	RoutingKeyAddToCart      RoutingKey = "auction.atc"
	RoutingKeyClosedReport   RoutingKey = "auctions.closed"
)

// AuctionRef is the payload of auction.start and auction.end
type AuctionRef struct {
	AuctionID int64 `json:"auctionId"`
}

// TimeRemaining is the payload of a scheduled reminder
type TimeRemaining struct {
	Auction *auction.Auction `json:"auction"`
	UserIDs []string         `json:"userIds"`
}

// AuctionData is the winning pair handed to the cart service on close
type AuctionData struct {
	Auction *auction.Auction `json:"auction"`
	Bid     *bid.Bid         `json:"bid"`
}

// CartHandoff wraps AuctionData the way the cart service expects it
type CartHandoff struct {
	AuctionData AuctionData `json:"auctionData"`
}

// ClosedAuction is one entry of the closed-auction report
type ClosedAuction struct {
	Auction *auction.Auction `json:"auction"`
	Bids    []*bid.Bid       `json:"bids"`
}

// ClosedReport lists the auctions closed within a time window
type ClosedReport struct {
	Auctions []ClosedAuction `json:"auctions"`
	From     string          `json:"from"`
	To       string          `json:"to"`
}

// DecodeAuctionRef parses an auction.start / auction.end body
func DecodeAuctionRef(body []byte) (AuctionRef, error) {
	var ref AuctionRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return AuctionRef{}, fmt.Errorf("%w: %v", shared.ErrMalformedEvent, err)
	}
	if ref.AuctionID <= 0 {
		return AuctionRef{}, fmt.Errorf("%w: auctionId is required", shared.ErrMalformedEvent)
	}
	return ref, nil
}

// DecodeTimeRemaining parses an auction.time body
func DecodeTimeRemaining(body []byte) (TimeRemaining, error) {
	var payload TimeRemaining
	if err := json.Unmarshal(body, &payload); err != nil {
		return TimeRemaining{}, fmt.Errorf("%w: %v", shared.ErrMalformedEvent, err)
	}
	if payload.Auction == nil || payload.Auction.ID <= 0 {
		return TimeRemaining{}, fmt.Errorf("%w: auction is required", shared.ErrMalformedEvent)
	}
	return payload, nil
}
