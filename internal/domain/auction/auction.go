package auction

import (
	"fmt"
	"time"

	"auction-lifecycle-service/internal/domain/shared"
)

// Status represents the current lifecycle state of an auction
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusDeleted   Status = "deleted"
)

// Auction represents a timed auction. Title, description and prices are
// opaque to the lifecycle; only the status fields are written by the core.
type Auction struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	StartPrice    float64    `json:"startPrice"`
	BuyItNowPrice float64    `json:"buyItNowPrice"`
	ShippingPrice float64    `json:"shippingPrice"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	IsActive      bool       `json:"isActive"`
	Deleted       bool       `json:"deleted"`
	SellerID      string     `json:"sellerId"`
	BuyerID       *string    `json:"buyerId"`
	ClosedAt      *time.Time `json:"closedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Status derives the lifecycle state from the persisted flags
func (a *Auction) Status() Status {
	switch {
	case a.Deleted:
		return StatusDeleted
	case a.ClosedAt != nil:
		return StatusClosed
	case a.IsActive:
		return StatusActive
	default:
		return StatusScheduled
	}
}

// CanBid returns true if a bid can be placed on this auction
func (a *Auction) CanBid() bool {
	return a.Status() == StatusActive
}

// ValidateSchedule checks the start/end ordering of the auction
func (a *Auction) ValidateSchedule() error {
	if !a.EndTime.After(a.StartTime) {
		return shared.ErrInvalidSchedule
	}
	return nil
}

// CheckActivate reports whether the auction may go Active at now. A start
// delivered before startTime is premature.
func (a *Auction) CheckActivate(now time.Time) error {
	if err := CheckTransition(a.Status(), StatusActive); err != nil {
		return err
	}
	if now.Before(a.StartTime) {
		return fmt.Errorf("%w: starts at %s", shared.ErrPrematureEvent, a.StartTime.UTC().Format(time.RFC3339))
	}
	return nil
}

// CheckClose reports whether the auction may close at now. An end delivered
// before endTime is premature.
func (a *Auction) CheckClose(now time.Time) error {
	if err := CheckTransition(a.Status(), StatusClosed); err != nil {
		return err
	}
	if now.Before(a.EndTime) {
		return fmt.Errorf("%w: ends at %s", shared.ErrPrematureEvent, a.EndTime.UTC().Format(time.RFC3339))
	}
	return nil
}

// Activate moves the auction to Active if the guard allows it
func (a *Auction) Activate(now time.Time) error {
	if err := a.CheckActivate(now); err != nil {
		return err
	}
	a.IsActive = true
	a.UpdatedAt = now
	return nil
}

// Close moves the auction to Closed, recording the winner if there is one.
// closedAt and buyerID are only ever written here.
func (a *Auction) Close(now time.Time, buyerID *string) error {
	if err := a.CheckClose(now); err != nil {
		return err
	}
	closedAt := now
	a.IsActive = false
	a.ClosedAt = &closedAt
	a.BuyerID = buyerID
	a.UpdatedAt = now
	return nil
}

// MarkDeleted moves the auction to Deleted. The caller checks for bids.
func (a *Auction) MarkDeleted(now time.Time) error {
	if err := CheckTransition(a.Status(), StatusDeleted); err != nil {
		return err
	}
	a.Deleted = true
	a.IsActive = false
	a.UpdatedAt = now
	return nil
}
