package bid

import (
	"fmt"
	"math"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/shared"
)

// placedAtResolution matches the precision of the timestamp column.
const placedAtResolution = time.Microsecond

// centsPerUnit matches the two decimal places of the amount column.
const centsPerUnit = 100

// Bid represents an accepted bid on an auction. Bids are never edited.
type Bid struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auctionId"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"placedAt"`
}

// Placement is the outcome of a committed bid: the stored bid, the leader it
// displaced (nil for the first bid) and the auction as read under the lock.
type Placement struct {
	Bid      *Bid
	Previous *Bid
	Auction  *auction.Auction
}

// AcceptFunc runs inside the bid transaction, after the auction row is locked
// and the current leader is read. It may fill in server-side fields of the
// candidate and returns an error to abort without writes.
type AcceptFunc func(a *auction.Auction, highest *Bid, candidate *Bid) error

// ValidateAmount accepts positive amounts in whole cents. Anything finer
// would be rounded by the store and could tie or undercut the leader.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if math.Round(amount*centsPerUnit)/centsPerUnit != amount {
		return fmt.Errorf("%w: %v has more than two decimal places", shared.ErrInvalidAmount, amount)
	}
	return nil
}

// Validate applies the ordering rule: the auction must be open and the
// amount must beat the leader, or the start price when there is none.
func Validate(a *auction.Auction, highest *Bid, amount float64) error {
	if !a.CanBid() {
		return shared.ErrAuctionNotAcceptingBids
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if highest != nil {
		if amount <= highest.Amount {
			return &shared.BidTooLowError{Highest: highest.Amount}
		}
		return nil
	}
	if amount <= a.StartPrice {
		return &shared.BidTooLowError{Highest: a.StartPrice}
	}
	return nil
}

// NextPlacedAt returns the receipt time for a bid accepted now. It never
// goes backwards relative to the current leader so ordering by placedAt
// keeps amounts strictly increasing even if the wall clock stalls.
func NextPlacedAt(now time.Time, highest *Bid) time.Time {
	placedAt := now.UTC().Truncate(placedAtResolution)
	if highest != nil && !placedAt.After(highest.PlacedAt) {
		placedAt = highest.PlacedAt.Add(placedAtResolution)
	}
	return placedAt
}

// Winner picks the highest amount, earliest placedAt on ties.
func Winner(bids []*Bid) *Bid {
	var winner *Bid
	for _, b := range bids {
		if winner == nil ||
			b.Amount > winner.Amount ||
			(b.Amount == winner.Amount && b.PlacedAt.Before(winner.PlacedAt)) {
			winner = b
		}
	}
	return winner
}
