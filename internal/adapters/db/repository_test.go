package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow     = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	endsAt      = testNow.Add(time.Hour)
	auctionCols = []string{
		"id", "title", "description", "start_price", "buy_it_now_price", "shipping_price",
		"start_time", "end_time", "is_active", "deleted", "seller_id", "buyer_id", "closed_at",
		"created_at", "updated_at",
	}
	bidCols = []string{"id", "auction_id", "user_id", "amount", "placed_at"}

	lockQuery    = regexp.QuoteMeta(`FROM auctions WHERE id = $1 FOR UPDATE`)
	highestQuery = regexp.QuoteMeta(`FROM bids WHERE auction_id = $1 ORDER BY amount DESC, placed_at ASC, id ASC LIMIT 1`)
)

func newMockConnection(t *testing.T) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewConnectionFromDB(db, 2, zerolog.Nop()), mock
}

type auctionState int

const (
	stateScheduled auctionState = iota
	stateActive
	stateClosed
)

func auctionRow(id int64, state auctionState) *sqlmock.Rows {
	var closedAt, buyerID driver.Value
	isActive := state == stateActive
	if state == stateClosed {
		closedAt = testNow.Add(-time.Hour)
		buyerID = "alice"
	}
	return sqlmock.NewRows(auctionCols).AddRow(
		id, "Camera", "Mint condition", 10.0, 100.0, 5.0,
		testNow.Add(-2*time.Hour), endsAt, isActive, false, "seller-1", buyerID, closedAt,
		testNow.Add(-3*time.Hour), testNow.Add(-3*time.Hour),
	)
}

func TestBidRepository_PlaceBid(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewBidRepository(conn)
	placedAt := testNow

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows(bidCols).AddRow(int64(4), int64(1), "alice", 20.0, testNow.Add(-time.Minute)),
	)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO bids`)).
		WithArgs(int64(1), "bob", 30.0, placedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	accept := func(a *auction.Auction, highest *bid.Bid, c *bid.Bid) error {
		require.Equal(t, auction.StatusActive, a.Status())
		require.NotNil(t, highest)
		c.PlacedAt = placedAt
		return bid.Validate(a, highest, c.Amount)
	}

	placement, err := repo.PlaceBid(context.Background(), &bid.Bid{AuctionID: 1, UserID: "bob", Amount: 30}, accept)

	require.NoError(t, err)
	assert.Equal(t, int64(5), placement.Bid.ID)
	assert.Equal(t, placedAt, placement.Bid.PlacedAt)
	assert.Equal(t, "alice", placement.Previous.UserID)
	assert.Equal(t, int64(1), placement.Auction.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBidRepository_PlaceBidRejectedRollsBack(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewBidRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows(bidCols).AddRow(int64(4), int64(1), "alice", 20.0, testNow.Add(-time.Minute)),
	)
	mock.ExpectRollback()

	accept := func(a *auction.Auction, highest *bid.Bid, c *bid.Bid) error {
		return bid.Validate(a, highest, c.Amount)
	}

	_, err := repo.PlaceBid(context.Background(), &bid.Bid{AuctionID: 1, UserID: "bob", Amount: 20}, accept)

	require.ErrorIs(t, err, shared.ErrBidTooLow)
	highest, ok := shared.CurrentHighest(err)
	require.True(t, ok)
	assert.Equal(t, 20.0, highest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBidRepository_PlaceBidRetriesSerializationFailure(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewBidRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(bidCols))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO bids`)).
		WithArgs(int64(1), "bob", 15.0, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	accept := func(a *auction.Auction, highest *bid.Bid, c *bid.Bid) error {
		c.PlacedAt = testNow
		return bid.Validate(a, highest, c.Amount)
	}

	placement, err := repo.PlaceBid(context.Background(), &bid.Bid{AuctionID: 1, UserID: "bob", Amount: 15}, accept)

	require.NoError(t, err)
	assert.Nil(t, placement.Previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBidRepository_PlaceBidUnknownAuction(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewBidRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(auctionCols))
	mock.ExpectRollback()

	_, err := repo.PlaceBid(context.Background(), &bid.Bid{AuctionID: 9, UserID: "bob", Amount: 15},
		func(*auction.Auction, *bid.Bid, *bid.Bid) error { return nil })

	assert.ErrorIs(t, err, shared.ErrAuctionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBidRepository_GetHighestBidWithoutBids(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewBidRepository(conn)

	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(bidCols))

	_, err := repo.GetHighestBid(context.Background(), 1)

	assert.ErrorIs(t, err, shared.ErrNoBidsFound)
}

func TestAuctionRepository_CloseRecordsWinner(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows(bidCols).AddRow(int64(2), int64(1), "bob", 50.0, testNow.Add(-2*time.Minute)),
	)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE auctions SET is_active = FALSE, closed_at = $2, buyer_id = $3`)).
		WithArgs(int64(1), endsAt, "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Close(context.Background(), 1, endsAt)

	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, result.Auction.Status())
	require.NotNil(t, result.Auction.BuyerID)
	assert.Equal(t, "bob", *result.Auction.BuyerID)
	assert.Equal(t, int64(2), result.WinningBid.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_CloseWithoutBids(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(highestQuery).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(bidCols))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE auctions SET is_active = FALSE`)).
		WithArgs(int64(1), endsAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Close(context.Background(), 1, endsAt)

	require.NoError(t, err)
	assert.Nil(t, result.WinningBid)
	assert.Nil(t, result.Auction.BuyerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_CloseGuard(t *testing.T) {
	tests := []struct {
		name    string
		state   auctionState
		at      time.Time
		wantErr error
	}{
		{"already closed", stateClosed, endsAt, shared.ErrStaleEvent},
		{"not started yet", stateScheduled, endsAt, shared.ErrPrematureEvent},
		{"before end time", stateActive, endsAt.Add(-time.Millisecond), shared.ErrPrematureEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, mock := newMockConnection(t)
			repo := NewAuctionRepository(conn)

			mock.ExpectBegin()
			mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, tt.state))
			mock.ExpectRollback()

			_, err := repo.Close(context.Background(), 1, tt.at)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuctionRepository_Activate(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateScheduled))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE auctions SET is_active = TRUE`)).
		WithArgs(int64(1), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := repo.Activate(context.Background(), 1, testNow)

	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, a.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_ActivateClosedIsStale(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateClosed))
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), 1, testNow)

	assert.ErrorIs(t, err, shared.ErrStaleEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_ActivateBeforeStartTimeIsPremature(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateScheduled))
	mock.ExpectRollback()

	_, err := repo.Activate(context.Background(), 1, testNow.Add(-3*time.Hour))

	assert.ErrorIs(t, err, shared.ErrPrematureEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_MarkDeletedWithBids(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(int64(1)).WillReturnRows(auctionRow(1, stateActive))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM bids`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.MarkDeleted(context.Background(), 1, testNow)

	assert.ErrorIs(t, err, shared.ErrAuctionHasBids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_GetByIDScansNullableColumns(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM auctions WHERE id = $1`)).
		WithArgs(int64(3)).
		WillReturnRows(auctionRow(3, stateClosed))

	a, err := repo.GetByID(context.Background(), 3)

	require.NoError(t, err)
	require.NotNil(t, a.ClosedAt)
	require.NotNil(t, a.BuyerID)
	assert.Equal(t, "alice", *a.BuyerID)
	assert.Equal(t, auction.StatusClosed, a.Status())
}

func TestAuctionRepository_ListClosedBetween(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewAuctionRepository(conn)
	window := shared.TimeWindow{From: testNow.Add(-24 * time.Hour), To: testNow}

	rows := auctionRow(3, stateClosed)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE closed_at >= $1 AND closed_at < $2`)).
		WithArgs(window.From, window.To).
		WillReturnRows(rows)

	auctions, err := repo.ListClosedBetween(context.Background(), window)

	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, int64(3), auctions[0].ID)
}

func TestWatchlistRepository_WatcherIDs(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewWatchlistRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN watchlist_auctions wa ON wa.watchlist_id = w.id`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	ids, err := repo.WatcherIDs(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestWatchlistRepository_MatchingUserIDs(t *testing.T) {
	conn, mock := newMockConnection(t)
	repo := NewWatchlistRepository(conn)
	a := &auction.Auction{ID: 1, Title: "Vintage camera", StartPrice: 10, SellerID: "seller-1"}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM watchlists w WHERE (w.max_price IS NULL OR w.max_price >= $2)`)).
		WithArgs(int64(1), 10.0, "Vintage camera", "seller-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	ids, err := repo.MatchingUserIDs(context.Background(), a)

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExecuteTransaction_GivesUpAfterRetries(t *testing.T) {
	conn, mock := newMockConnection(t)

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	calls := 0
	err := conn.ExecuteTransaction(context.Background(), func(_ *sql.Tx) error {
		calls++
		return &pq.Error{Code: "40P01"}
	})

	assert.ErrorIs(t, err, shared.ErrPersistence)
	assert.Equal(t, 3, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
