package event

import (
	"encoding/json"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"
)

// EventType is the closed set of outbound notification kinds
type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypeWatchlistMatch
	EventTypeNewBid
	EventTypeOutbid
	EventTypeTimeRemaining
	EventTypeAuctionClosed
)

var eventTypeNames = map[EventType]string{
	EventTypeWatchlistMatch: "NOTIFY_WATCHLIST_MATCH",
	EventTypeNewBid:         "NEW_BID",
	EventTypeOutbid:         "OUTBID",
	EventTypeTimeRemaining:  "AUCTION_TIME_REMAINING",
	EventTypeAuctionClosed:  "AUCTION_CLOSED",
}

var eventTypeRoutes = map[EventType]RoutingKey{
	EventTypeWatchlistMatch: RoutingKeyWatchlistMatch,
	EventTypeNewBid:         RoutingKeyNewBid,
	EventTypeOutbid:         RoutingKeyOutbid,
	EventTypeTimeRemaining:  RoutingKeyAuctionTime,
	EventTypeAuctionClosed:  RoutingKeyAuctionClosed,
}

// ParseEventType maps a wire tag onto the enumeration
func ParseEventType(s string) (EventType, error) {
	for t, name := range eventTypeNames {
		if name == s {
			return t, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("%w: %q", shared.ErrUnknownEventType, s)
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// RoutingKey is the key the notification is published under
func (t EventType) RoutingKey() RoutingKey {
	return eventTypeRoutes[t]
}

func (t EventType) MarshalJSON() ([]byte, error) {
	name, ok := eventTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", shared.ErrUnknownEventType, int(t))
	}
	return json.Marshal(name)
}

func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Notification is what the downstream notification service receives.
// SellerIDs and Bid are omitted for event types that do not carry them;
// AUCTION_CLOSED always carries bid, null when nobody won.
type Notification struct {
	EventType EventType        `json:"eventType"`
	UserIDs   []string         `json:"userIds"`
	SellerIDs []string         `json:"sellerId,omitempty"`
	Auction   *auction.Auction `json:"auction"`
	Bid       *bid.Bid         `json:"bid,omitempty"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	type plain Notification
	if n.EventType != EventTypeAuctionClosed {
		return json.Marshal(plain(n))
	}
	return json.Marshal(struct {
		plain
		Bid *bid.Bid `json:"bid"`
	}{plain: plain(n), Bid: n.Bid})
}

// NewWatchlistMatch tells watchers that a matching auction was listed
func NewWatchlistMatch(a *auction.Auction, userIDs []string) Notification {
	return Notification{EventType: EventTypeWatchlistMatch, UserIDs: userIDs, Auction: a}
}

// NewBidPlaced fans a fresh bid out to the auction's audience
func NewBidPlaced(a *auction.Auction, b *bid.Bid, userIDs []string) Notification {
	return Notification{
		EventType: EventTypeNewBid,
		UserIDs:   userIDs,
		SellerIDs: []string{a.SellerID},
		Auction:   a,
		Bid:       b,
	}
}

// NewOutbid addresses the leader that was just displaced
func NewOutbid(a *auction.Auction, previous *bid.Bid) Notification {
	return Notification{
		EventType: EventTypeOutbid,
		UserIDs:   []string{previous.UserID},
		Auction:   a,
		Bid:       previous,
	}
}

// NewTimeRemaining reminds watchers that the auction is closing
func NewTimeRemaining(a *auction.Auction, userIDs []string) Notification {
	return Notification{
		EventType: EventTypeTimeRemaining,
		UserIDs:   userIDs,
		SellerIDs: []string{a.SellerID},
		Auction:   a,
	}
}

// NewAuctionClosed reports the outcome to the winner and seller
func NewAuctionClosed(a *auction.Auction, winning *bid.Bid) Notification {
	userIDs := []string{}
	if winning != nil {
		userIDs = append(userIDs, winning.UserID)
	}
	return Notification{
		EventType: EventTypeAuctionClosed,
		UserIDs:   userIDs,
		SellerIDs: []string{a.SellerID},
		Auction:   a,
		Bid:       winning,
	}
}
