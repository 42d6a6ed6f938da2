package event

import (
	"encoding/json"
	"testing"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuction() *auction.Auction {
	start := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	return &auction.Auction{ID: 7, Title: "Lamp", StartPrice: 5, StartTime: start, EndTime: start.Add(time.Hour), SellerID: "seller"}
}

func fields(t *testing.T, n Notification) map[string]json.RawMessage {
	t.Helper()
	body, err := json.Marshal(n)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestNotification_AuctionClosedWithoutWinnerCarriesNullBid(t *testing.T) {
	out := fields(t, NewAuctionClosed(testAuction(), nil))

	require.Contains(t, out, "bid")
	assert.JSONEq(t, `null`, string(out["bid"]))
	assert.JSONEq(t, `"AUCTION_CLOSED"`, string(out["eventType"]))
	assert.JSONEq(t, `[]`, string(out["userIds"]))
	assert.JSONEq(t, `["seller"]`, string(out["sellerId"]))
}

func TestNotification_AuctionClosedWithWinner(t *testing.T) {
	winning := &bid.Bid{ID: 3, AuctionID: 7, UserID: "bob", Amount: 12.5}
	body, err := json.Marshal(NewAuctionClosed(testAuction(), winning))
	require.NoError(t, err)

	var decoded Notification
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, EventTypeAuctionClosed, decoded.EventType)
	assert.Equal(t, []string{"bob"}, decoded.UserIDs)
	require.NotNil(t, decoded.Bid)
	assert.Equal(t, 12.5, decoded.Bid.Amount)
}

func TestNotification_OptionalFieldsOmittedForOtherTypes(t *testing.T) {
	tests := []struct {
		name       string
		note       Notification
		wantSeller bool
	}{
		{"time remaining", NewTimeRemaining(testAuction(), []string{"w1"}), true},
		{"watchlist match", NewWatchlistMatch(testAuction(), []string{"w1"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := fields(t, tt.note)

			assert.NotContains(t, out, "bid")
			_, hasSeller := out["sellerId"]
			assert.Equal(t, tt.wantSeller, hasSeller)
			assert.Contains(t, out, "auction")
		})
	}
}

func TestNotification_UnknownTypeFailsToEncode(t *testing.T) {
	_, err := json.Marshal(Notification{EventType: EventTypeUnknown})

	assert.Error(t, err)
}
