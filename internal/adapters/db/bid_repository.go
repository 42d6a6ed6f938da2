package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"
)

const bidColumns = `id, auction_id, user_id, amount, placed_at`

// bidRanking orders bids so the first row is the winner
const bidRanking = `ORDER BY amount DESC, placed_at ASC, id ASC`

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// BidRepository implements the bid repository interface
type BidRepository struct {
	conn *Connection
}

// NewBidRepository creates a new bid repository
func NewBidRepository(conn *Connection) *BidRepository {
	return &BidRepository{conn: conn}
}

func scanBid(row rowScanner) (*bid.Bid, error) {
	var b bid.Bid
	if err := row.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.PlacedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// highestBid returns the current leader or nil when there are no bids
func highestBid(ctx context.Context, q queryer, auctionID int64) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ` + bidRanking + ` LIMIT 1`

	b, err := scanBid(q.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, shared.Persistence(fmt.Errorf("failed to get highest bid: %w", err))
	}
	return b, nil
}

// GetByAuctionID retrieves all bids for an auction, highest first
func (r *BidRepository) GetByAuctionID(ctx context.Context, auctionID int64) ([]*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ` + bidRanking

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, shared.Persistence(fmt.Errorf("failed to get bids: %w", err))
	}
	defer rows.Close()

	bids := []*bid.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, shared.Persistence(fmt.Errorf("failed to scan bid: %w", err))
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, shared.Persistence(fmt.Errorf("error iterating bids: %w", err))
	}

	return bids, nil
}

// GetHighestBid retrieves the highest bid for an auction
func (r *BidRepository) GetHighestBid(ctx context.Context, auctionID int64) (*bid.Bid, error) {
	b, err := highestBid(ctx, r.conn.GetDB(), auctionID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, shared.ErrNoBidsFound
	}
	return b, nil
}

/*
PlaceBid stores a bid under the auction row lock.
 1. Lock the auction row (SELECT ... FOR UPDATE)
 2. Read the current leader
 3. Run accept, which validates and stamps placed_at
 4. Insert the bid

Concurrent bids on the same auction queue on step 1, so each one validates
against the leader committed by the previous one.
*/
func (r *BidRepository) PlaceBid(ctx context.Context, candidate *bid.Bid, accept bid.AcceptFunc) (*bid.Placement, error) {
	var placement *bid.Placement

	err := r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		a, err := lockAuction(ctx, tx, candidate.AuctionID)
		if err != nil {
			return err
		}

		previous, err := highestBid(ctx, tx, candidate.AuctionID)
		if err != nil {
			return err
		}

		placed := *candidate
		if err := accept(a, previous, &placed); err != nil {
			return err
		}

		query := `
			INSERT INTO bids (auction_id, user_id, amount, placed_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		err = tx.QueryRowContext(ctx, query, placed.AuctionID, placed.UserID, placed.Amount, placed.PlacedAt).Scan(&placed.ID)
		if err != nil {
			return shared.Persistence(fmt.Errorf("failed to insert bid: %w", err))
		}

		placement = &bid.Placement{Bid: &placed, Previous: previous, Auction: a}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return placement, nil
}
