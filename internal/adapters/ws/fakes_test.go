package ws

import (
	"context"
	"sync"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAuctions struct {
	auctions  map[int64]*auction.Auction
	scheduled []int64
	err       error
}

func newFakeAuctions(list ...*auction.Auction) *fakeAuctions {
	f := &fakeAuctions{auctions: make(map[int64]*auction.Auction)}
	for _, a := range list {
		f.auctions[a.ID] = a
	}
	return f
}

func (f *fakeAuctions) OnAuctionCreated(ctx context.Context, auctionID int64) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.auctions[auctionID]; !ok {
		return shared.ErrAuctionNotFound
	}
	f.scheduled = append(f.scheduled, auctionID)
	return nil
}

func (f *fakeAuctions) DeleteAuction(ctx context.Context, auctionID int64) (*auction.Auction, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	a.Deleted = true
	return a, nil
}

func (f *fakeAuctions) GetAuction(ctx context.Context, auctionID int64) (*auction.Auction, error) {
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	return a, nil
}

// fakeBids accepts any bid above the current leader of a known auction
type fakeBids struct {
	mu       sync.Mutex
	auctions *fakeAuctions
	bids     map[int64][]*bid.Bid
	nextID   int64
}

func newFakeBids(auctions *fakeAuctions) *fakeBids {
	return &fakeBids{auctions: auctions, bids: make(map[int64][]*bid.Bid)}
}

func (f *fakeBids) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.UserID == "" {
		return nil, shared.ErrInvalidBid
	}
	a, ok := f.auctions.auctions[req.AuctionID]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	var highest *bid.Bid
	if list := f.bids[req.AuctionID]; len(list) > 0 {
		highest = list[0]
	}
	if err := bid.Validate(a, highest, req.Amount); err != nil {
		return nil, err
	}

	f.nextID++
	placed := &bid.Bid{ID: f.nextID, AuctionID: req.AuctionID, UserID: req.UserID, Amount: req.Amount, PlacedAt: testNow}
	f.bids[req.AuctionID] = append([]*bid.Bid{placed}, f.bids[req.AuctionID]...)
	return placed, nil
}

func (f *fakeBids) GetBids(ctx context.Context, auctionID int64) ([]*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*bid.Bid{}, f.bids[auctionID]...), nil
}

func (f *fakeBids) GetHighestBid(ctx context.Context, auctionID int64) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if list := f.bids[auctionID]; len(list) > 0 {
		return list[0], nil
	}
	return nil, shared.ErrNoBidsFound
}

// memoryBroadcaster fans events out in process and closes a client's
// channel when its last auction is dropped
type memoryBroadcaster struct {
	mu      sync.Mutex
	clients map[string]chan outbound.Event
	subs    map[string]map[int64]struct{}
}

func newMemoryBroadcaster() *memoryBroadcaster {
	return &memoryBroadcaster{
		clients: make(map[string]chan outbound.Event),
		subs:    make(map[string]map[int64]struct{}),
	}
}

func (m *memoryBroadcaster) Subscribe(ctx context.Context, auctionID int64, clientID string, eventChan chan outbound.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[clientID]; !ok {
		m.clients[clientID] = eventChan
		m.subs[clientID] = make(map[int64]struct{})
	}
	m.subs[clientID][auctionID] = struct{}{}
	return nil
}

func (m *memoryBroadcaster) Unsubscribe(ctx context.Context, auctionID int64, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auctions, ok := m.subs[clientID]
	if !ok {
		return nil
	}
	delete(auctions, auctionID)
	if len(auctions) == 0 {
		close(m.clients[clientID])
		delete(m.clients, clientID)
		delete(m.subs, clientID)
	}
	return nil
}

func (m *memoryBroadcaster) Publish(ctx context.Context, auctionID int64, event outbound.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.AuctionID = auctionID
	for clientID, auctions := range m.subs {
		if _, ok := auctions[auctionID]; ok {
			m.clients[clientID] <- event
		}
	}
	return nil
}

func (m *memoryBroadcaster) IsSubscribed(ctx context.Context, auctionID int64, clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[clientID][auctionID]
	return ok
}

func (m *memoryBroadcaster) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func activeAuction(id int64) *auction.Auction {
	return &auction.Auction{
		ID:         id,
		Title:      "Vintage camera",
		StartPrice: 10,
		StartTime:  testNow.Add(-time.Hour),
		EndTime:    testNow.Add(time.Hour),
		IsActive:   true,
		SellerID:   "seller",
	}
}
