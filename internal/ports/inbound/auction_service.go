package inbound

import (
	"context"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
)

// AuctionService is what the front end calls around auction admission
type AuctionService interface {
	// OnAuctionCreated schedules the lifecycle of a freshly persisted auction
	OnAuctionCreated(ctx context.Context, auctionID int64) error

	// DeleteAuction removes an auction that has not received bids
	DeleteAuction(ctx context.Context, auctionID int64) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID int64) (*auction.Auction, error)
}

// SchedulerService publishes delayed lifecycle events
type SchedulerService interface {
	// ScheduleAuction enqueues the start and end transitions
	ScheduleAuction(ctx context.Context, auctionID int64, startTime, endTime time.Time) error

	// ScheduleStart and ScheduleEnd enqueue a single transition, used to
	// re-publish one that was delivered before its instant
	ScheduleStart(ctx context.Context, auctionID int64, at time.Time) error
	ScheduleEnd(ctx context.Context, auctionID int64, at time.Time) error

	// ScheduleReminders enqueues the time-remaining reminders still ahead
	ScheduleReminders(ctx context.Context, a *auction.Auction, userIDs []string) (int, error)
}

// BidService defines the interface for bid operations
type BidService interface {
	// PlaceBid places a new bid on an auction
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, error)

	// GetBids retrieves bids for an auction
	GetBids(ctx context.Context, auctionID int64) ([]*bid.Bid, error)

	// GetHighestBid retrieves the current leader of an auction
	GetHighestBid(ctx context.Context, auctionID int64) (*bid.Bid, error)
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID int64   `json:"auctionId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
}
