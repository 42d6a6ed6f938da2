package shared

import (
	"errors"
	"fmt"
)

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrAuctionNotAcceptingBids = errors.New("auction is not accepting bids")
	ErrAuctionHasBids          = errors.New("auction already has bids")
	ErrInvalidSchedule         = errors.New("end time must be after start time")

	// Lifecycle errors
	ErrStaleEvent     = errors.New("stale lifecycle event")
	ErrPrematureEvent = errors.New("lifecycle event arrived before its predecessor")
	ErrMalformedEvent = errors.New("malformed event payload")

	// Bid errors
	ErrBidTooLow   = errors.New("bid amount must be higher than current highest bid")
	ErrInvalidBid  = errors.New("invalid bid")
	ErrNoBidsFound = errors.New("no bids found")

	// Event schema errors
	ErrUnknownEventType = errors.New("unknown event type")

	// Infrastructure errors
	ErrBrokerUnavailable = errors.New("message broker unavailable")
	ErrPersistence       = errors.New("persistence failure")

	// WebSocket message validation errors
	ErrMessageTypeRequired        = errors.New("message type is required")
	ErrAuctionIDRequired          = errors.New("auction_id is required")
	ErrInvalidAmount              = errors.New("valid amount is required")
	ErrUnknownMessageType         = errors.New("unknown message type")
	ErrClientEventChannelNotFound = errors.New("client event channel not found")
)

// BidTooLowError is returned when a bid does not beat the current highest
// amount. Highest is the value the client has to exceed on retry.
type BidTooLowError struct {
	Highest float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: %.2f", ErrBidTooLow.Error(), e.Highest)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// CurrentHighest extracts the amount to beat from a bid rejection.
func CurrentHighest(err error) (float64, bool) {
	var tooLow *BidTooLowError
	if errors.As(err, &tooLow) {
		return tooLow.Highest, true
	}
	return 0, false
}

// Persistence tags err as a store failure so callers can branch with errors.Is.
func Persistence(err error) error {
	if err == nil || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// BrokerUnavailable tags err as a broker failure.
func BrokerUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrBrokerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
}
