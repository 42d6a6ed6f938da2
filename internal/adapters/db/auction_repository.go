package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/outbound"
)

const auctionColumns = `id, title, description, start_price, buy_it_now_price, shipping_price,
	start_time, end_time, is_active, deleted, seller_id, buyer_id, closed_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// AuctionRepository implements the auction repository interface
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	var buyerID sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.StartPrice,
		&a.BuyItNowPrice,
		&a.ShippingPrice,
		&a.StartTime,
		&a.EndTime,
		&a.IsActive,
		&a.Deleted,
		&a.SellerID,
		&buyerID,
		&closedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if buyerID.Valid {
		a.BuyerID = &buyerID.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		a.ClosedAt = &t
	}
	return &a, nil
}

// lockAuction reads the auction row and holds its lock until the
// transaction ends. All writers to an auction and its bids go through here.
func lockAuction(ctx context.Context, tx *sql.Tx, id int64) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1 FOR UPDATE`

	a, err := scanAuction(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, shared.Persistence(fmt.Errorf("failed to lock auction: %w", err))
	}
	return a, nil
}

// GetByID retrieves an auction by ID
func (r *AuctionRepository) GetByID(ctx context.Context, id int64) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, shared.Persistence(fmt.Errorf("failed to get auction: %w", err))
	}

	return a, nil
}

// Activate moves a scheduled auction to active under the row lock
func (r *AuctionRepository) Activate(ctx context.Context, id int64, now time.Time) (*auction.Auction, error) {
	var activated *auction.Auction

	err := r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		a, err := lockAuction(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := a.Activate(now); err != nil {
			return err
		}

		query := `UPDATE auctions SET is_active = TRUE, updated_at = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, a.UpdatedAt); err != nil {
			return shared.Persistence(fmt.Errorf("failed to activate auction: %w", err))
		}

		activated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return activated, nil
}

// Close locks the auction, picks the winning bid (highest amount, earliest
// placedAt) and records the closure in one transaction. buyer_id and
// closed_at are written only here.
func (r *AuctionRepository) Close(ctx context.Context, id int64, now time.Time) (*outbound.ClosingResult, error) {
	var result *outbound.ClosingResult

	err := r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		a, err := lockAuction(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := a.CheckClose(now); err != nil {
			return err
		}

		winning, err := highestBid(ctx, tx, id)
		if err != nil {
			return err
		}

		var buyerID *string
		if winning != nil {
			buyer := winning.UserID
			buyerID = &buyer
		}
		if err := a.Close(now, buyerID); err != nil {
			return err
		}

		query := `
			UPDATE auctions
			SET is_active = FALSE, closed_at = $2, buyer_id = $3, updated_at = $2
			WHERE id = $1 AND closed_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, query, id, now, nullString(buyerID)); err != nil {
			return shared.Persistence(fmt.Errorf("failed to close auction: %w", err))
		}

		result = &outbound.ClosingResult{Auction: a, WinningBid: winning}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkDeleted deletes an auction that has not received any bid
func (r *AuctionRepository) MarkDeleted(ctx context.Context, id int64, now time.Time) (*auction.Auction, error) {
	var deleted *auction.Auction

	err := r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		a, err := lockAuction(ctx, tx, id)
		if err != nil {
			return err
		}

		var bidCount int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, id).Scan(&bidCount); err != nil {
			return shared.Persistence(fmt.Errorf("failed to count bids: %w", err))
		}
		if bidCount > 0 {
			return shared.ErrAuctionHasBids
		}

		if err := a.MarkDeleted(now); err != nil {
			return err
		}

		query := `UPDATE auctions SET deleted = TRUE, is_active = FALSE, updated_at = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, now); err != nil {
			return shared.Persistence(fmt.Errorf("failed to delete auction: %w", err))
		}

		deleted = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// ListClosedBetween returns the auctions closed inside [From, To)
func (r *AuctionRepository) ListClosedBetween(ctx context.Context, window shared.TimeWindow) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE closed_at >= $1 AND closed_at < $2 AND deleted = FALSE
		ORDER BY closed_at ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, window.From, window.To)
	if err != nil {
		return nil, shared.Persistence(fmt.Errorf("failed to list closed auctions: %w", err))
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, shared.Persistence(fmt.Errorf("failed to scan auction: %w", err))
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, shared.Persistence(fmt.Errorf("error iterating auctions: %w", err))
	}

	return auctions, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
