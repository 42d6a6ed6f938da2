package db

import (
	"context"
	"database/sql"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/shared"
)

// WatchlistRepository resolves notification audiences from watchlists
type WatchlistRepository struct {
	conn *Connection
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(conn *Connection) *WatchlistRepository {
	return &WatchlistRepository{conn: conn}
}

// WatcherIDs returns the users whose watchlists reference the auction
func (r *WatchlistRepository) WatcherIDs(ctx context.Context, auctionID int64) ([]string, error) {
	query := `
		SELECT DISTINCT w.user_id
		FROM watchlists w
		JOIN watchlist_auctions wa ON wa.watchlist_id = w.id
		WHERE wa.auction_id = $1
		ORDER BY w.user_id
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, shared.Persistence(fmt.Errorf("failed to get watchers: %w", err))
	}
	return collectUserIDs(rows)
}

// MatchingUserIDs returns the users whose watchlist criteria match a newly
// listed auction: a shared category or a title keyword, within the price
// ceiling. The seller is never matched against their own auction.
func (r *WatchlistRepository) MatchingUserIDs(ctx context.Context, a *auction.Auction) ([]string, error) {
	query := `
		SELECT DISTINCT w.user_id
		FROM watchlists w
		WHERE (w.max_price IS NULL OR w.max_price >= $2)
		  AND w.user_id <> $4
		  AND (
		    EXISTS (
		      SELECT 1
		      FROM watchlist_categories wc
		      JOIN auction_categories ac ON ac.category_id = wc.category_id
		      WHERE wc.watchlist_id = w.id AND ac.auction_id = $1
		    )
		    OR (w.keyword <> '' AND $3 ILIKE '%' || w.keyword || '%')
		  )
		ORDER BY w.user_id
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, a.ID, a.StartPrice, a.Title, a.SellerID)
	if err != nil {
		return nil, shared.Persistence(fmt.Errorf("failed to match watchlists: %w", err))
	}
	return collectUserIDs(rows)
}

func collectUserIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	userIDs := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, shared.Persistence(fmt.Errorf("failed to scan user id: %w", err))
		}
		userIDs = append(userIDs, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, shared.Persistence(fmt.Errorf("error iterating user ids: %w", err))
	}

	return userIDs, nil
}
