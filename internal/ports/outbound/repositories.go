package outbound

import (
	"context"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"
)

// ClosingResult is what the end-of-auction transaction committed
type ClosingResult struct {
	Auction    *auction.Auction
	WinningBid *bid.Bid
}

// AuctionRepository defines the interface for auction data operations.
// Every mutating method re-checks the lifecycle guard against the row it
// writes, so concurrent or duplicate events cannot apply twice.
type AuctionRepository interface {
	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id int64) (*auction.Auction, error)

	// Activate moves a scheduled auction to active
	Activate(ctx context.Context, id int64, now time.Time) (*auction.Auction, error)

	// Close locks the auction, picks the winning bid and closes it in one transaction
	Close(ctx context.Context, id int64, now time.Time) (*ClosingResult, error)

	// MarkDeleted deletes an auction that has no bids
	MarkDeleted(ctx context.Context, id int64, now time.Time) (*auction.Auction, error)

	// ListClosedBetween returns auctions closed inside the window
	ListClosedBetween(ctx context.Context, window shared.TimeWindow) ([]*auction.Auction, error)
}

// BidRepository defines the interface for bid data operations
type BidRepository interface {
	// GetHighestBid retrieves the highest bid for an auction
	GetHighestBid(ctx context.Context, auctionID int64) (*bid.Bid, error)

	// GetByAuctionID retrieves all bids for an auction, highest first
	GetByAuctionID(ctx context.Context, auctionID int64) ([]*bid.Bid, error)

	// PlaceBid serializes on the auction row, reads the leader, runs accept
	// and inserts the candidate, all in one transaction
	PlaceBid(ctx context.Context, candidate *bid.Bid, accept bid.AcceptFunc) (*bid.Placement, error)
}

// WatchlistRepository resolves notification audiences
type WatchlistRepository interface {
	// WatcherIDs returns the users whose watchlists reference the auction
	WatcherIDs(ctx context.Context, auctionID int64) ([]string, error)

	// MatchingUserIDs returns the users whose watchlist criteria match a new auction
	MatchingUserIDs(ctx context.Context, a *auction.Auction) ([]string, error)
}
