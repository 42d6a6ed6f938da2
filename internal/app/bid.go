package app

import (
	"context"
	"errors"
	"strings"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/metrics"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// BidService implements the bid use cases
type BidService struct {
	bidRepo       outbound.BidRepository
	watchlistRepo outbound.WatchlistRepository
	notifier      *Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

type BidServiceParams struct {
	BidRepo       outbound.BidRepository
	WatchlistRepo outbound.WatchlistRepository
	Notifier      *Notifier
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &BidService{
		bidRepo:       params.BidRepo,
		watchlistRepo: params.WatchlistRepo,
		notifier:      params.Notifier,
		clock:         c,
		metrics:       m,
		logger:        params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// PlaceBid validates and stores a bid inside one transaction serialized on
// the auction row. A rejected bid returns a *shared.BidTooLowError carrying
// the amount to beat. Notifications go out only after commit.
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	logger := s.logger.With().
		Int64("auction_id", req.AuctionID).
		Str("user_id", req.UserID).
		Float64("amount", req.Amount).
		Logger()

	if req.AuctionID <= 0 || strings.TrimSpace(req.UserID) == "" {
		s.metrics.Bids.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, shared.ErrInvalidBid
	}
	if err := bid.ValidateAmount(req.Amount); err != nil {
		s.metrics.Bids.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	candidate := &bid.Bid{
		AuctionID: req.AuctionID,
		UserID:    req.UserID,
		Amount:    req.Amount,
	}

	accept := func(a *auction.Auction, highest *bid.Bid, c *bid.Bid) error {
		if err := bid.Validate(a, highest, c.Amount); err != nil {
			return err
		}
		c.PlacedAt = bid.NextPlacedAt(s.clock.Now(), highest)
		return nil
	}

	placement, err := s.bidRepo.PlaceBid(ctx, candidate, accept)
	if err != nil {
		s.recordRejection(logger, err)
		return nil, err
	}

	s.metrics.Bids.WithLabelValues(metrics.OutcomeOK).Inc()
	logger.Info().Int64("bid_id", placement.Bid.ID).Msg("Bid placed")

	s.fanout(ctx, placement)
	return placement.Bid, nil
}

func (s *BidService) recordRejection(logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrBidTooLow):
		highest, _ := shared.CurrentHighest(err)
		logger.Info().Float64("current_highest", highest).Msg("Bid too low")
		s.metrics.Bids.WithLabelValues(metrics.OutcomeRejected).Inc()
	case errors.Is(err, shared.ErrAuctionNotAcceptingBids), errors.Is(err, shared.ErrAuctionNotFound):
		logger.Info().Err(err).Msg("Bid refused")
		s.metrics.Bids.WithLabelValues(metrics.OutcomeRejected).Inc()
	default:
		logger.Error().Err(err).Msg("Failed to place bid")
		s.metrics.Bids.WithLabelValues(metrics.OutcomeError).Inc()
	}
}

// fanout runs after commit; its failures never undo the bid
func (s *BidService) fanout(ctx context.Context, p *bid.Placement) {
	a, placed, previous := p.Auction, p.Bid, p.Previous

	if previous != nil && previous.UserID != placed.UserID {
		_ = s.notifier.Notify(ctx, event.NewOutbid(a, previous))
	}

	watchers, err := s.watchlistRepo.WatcherIDs(ctx, a.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("auction_id", a.ID).Msg("Failed to resolve watchers for new bid")
	}
	_ = s.notifier.Notify(ctx, event.NewBidPlaced(a, placed, mergeAudience(watchers)))

	s.notifier.Broadcast(ctx, a.ID, outbound.EventTypeBidPlaced, map[string]interface{}{
		"bid_id":    placed.ID,
		"user_id":   placed.UserID,
		"amount":    placed.Amount,
		"placed_at": placed.PlacedAt.UnixMilli(),
	})
}

// GetBids retrieves bids for an auction, highest first
func (s *BidService) GetBids(ctx context.Context, auctionID int64) ([]*bid.Bid, error) {
	return s.bidRepo.GetByAuctionID(ctx, auctionID)
}

// GetHighestBid retrieves the current leader of an auction
func (s *BidService) GetHighestBid(ctx context.Context, auctionID int64) (*bid.Bid, error) {
	return s.bidRepo.GetHighestBid(ctx, auctionID)
}
