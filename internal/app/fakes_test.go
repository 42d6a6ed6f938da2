package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/stretchr/testify/mock"
)

// memoryStore serializes every operation on one mutex, standing in for the
// row lock the SQL repositories take.
type memoryStore struct {
	mu        sync.Mutex
	auctions  map[int64]*auction.Auction
	bids      map[int64][]*bid.Bid
	watchers  map[int64][]string
	matches   []string
	nextBidID int64
	failWith  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		auctions: map[int64]*auction.Auction{},
		bids:     map[int64][]*bid.Bid{},
		watchers: map[int64][]string{},
	}
}

func (m *memoryStore) put(a *auction.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.auctions[a.ID] = &clone
}

func (m *memoryStore) get(id int64) *auction.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *m.auctions[id]
	return &clone
}

func (m *memoryStore) bidsFor(id int64) []*bid.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*bid.Bid(nil), m.bids[id]...)
}

func (m *memoryStore) GetByID(_ context.Context, id int64) (*auction.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memoryStore) Activate(_ context.Context, id int64, now time.Time) (*auction.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	clone := *a
	if err := clone.Activate(now); err != nil {
		return nil, err
	}
	m.auctions[id] = &clone
	out := clone
	return &out, nil
}

func (m *memoryStore) Close(_ context.Context, id int64, now time.Time) (*outbound.ClosingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	clone := *a
	winner := bid.Winner(m.bids[id])
	var buyerID *string
	if winner != nil {
		buyer := winner.UserID
		buyerID = &buyer
	}
	if err := clone.Close(now, buyerID); err != nil {
		return nil, err
	}
	m.auctions[id] = &clone
	out := clone
	return &outbound.ClosingResult{Auction: &out, WinningBid: winner}, nil
}

func (m *memoryStore) MarkDeleted(_ context.Context, id int64, now time.Time) (*auction.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	if len(m.bids[id]) > 0 {
		return nil, shared.ErrAuctionHasBids
	}
	clone := *a
	if err := clone.MarkDeleted(now); err != nil {
		return nil, err
	}
	m.auctions[id] = &clone
	out := clone
	return &out, nil
}

func (m *memoryStore) ListClosedBetween(_ context.Context, window shared.TimeWindow) ([]*auction.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auction.Auction
	for _, a := range m.auctions {
		if a.ClosedAt == nil || a.ClosedAt.Before(window.From) || a.ClosedAt.After(window.To) {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetHighestBid(_ context.Context, auctionID int64) (*bid.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	winner := bid.Winner(m.bids[auctionID])
	if winner == nil {
		return nil, shared.ErrNoBidsFound
	}
	return winner, nil
}

func (m *memoryStore) GetByAuctionID(_ context.Context, auctionID int64) ([]*bid.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*bid.Bid(nil), m.bids[auctionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out, nil
}

func (m *memoryStore) PlaceBid(_ context.Context, candidate *bid.Bid, accept bid.AcceptFunc) (*bid.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.auctions[candidate.AuctionID]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	locked := *a
	highest := bid.Winner(m.bids[candidate.AuctionID])

	placed := *candidate
	if err := accept(&locked, highest, &placed); err != nil {
		return nil, err
	}
	m.nextBidID++
	placed.ID = m.nextBidID
	m.bids[placed.AuctionID] = append(m.bids[placed.AuctionID], &placed)

	out := placed
	return &bid.Placement{Bid: &out, Previous: highest, Auction: &locked}, nil
}

func (m *memoryStore) WatcherIDs(_ context.Context, auctionID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.watchers[auctionID]...), nil
}

func (m *memoryStore) MatchingUserIDs(context.Context, *auction.Auction) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.matches...), nil
}

// recordingPublisher keeps every published message
type recordingPublisher struct {
	mu       sync.Mutex
	messages []outbound.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg outbound.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) byKey(key event.RoutingKey) []outbound.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []outbound.Message
	for _, msg := range p.messages {
		if msg.RoutingKey == string(key) {
			out = append(out, msg)
		}
	}
	return out
}

func (p *recordingPublisher) notifications(key event.RoutingKey) []event.Notification {
	var out []event.Notification
	for _, msg := range p.byKey(key) {
		var n event.Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// mockPublisher is a testify mock of outbound.Publisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, msg outbound.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// recordingBroadcaster keeps the relayed websocket events
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (b *recordingBroadcaster) Subscribe(context.Context, int64, string, chan outbound.Event) error {
	return nil
}

func (b *recordingBroadcaster) Unsubscribe(context.Context, int64, string) error { return nil }

func (b *recordingBroadcaster) Publish(_ context.Context, _ int64, evt outbound.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBroadcaster) IsSubscribed(context.Context, int64, string) bool { return false }

func (b *recordingBroadcaster) types() []outbound.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]outbound.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func mustJSON(v interface{}) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return body
}
