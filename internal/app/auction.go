package app

import (
	"context"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// AuctionService implements the auction admission use cases
type AuctionService struct {
	auctionRepo   outbound.AuctionRepository
	watchlistRepo outbound.WatchlistRepository
	scheduler     inbound.SchedulerService
	notifier      *Notifier
	clock         clock.Clock
	logger        zerolog.Logger
}

type AuctionServiceParams struct {
	AuctionRepo   outbound.AuctionRepository
	WatchlistRepo outbound.WatchlistRepository
	Scheduler     inbound.SchedulerService
	Notifier      *Notifier
	Clock         clock.Clock
	Logger        zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	return &AuctionService{
		auctionRepo:   params.AuctionRepo,
		watchlistRepo: params.WatchlistRepo,
		scheduler:     params.Scheduler,
		notifier:      params.Notifier,
		clock:         c,
		logger:        params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// OnAuctionCreated schedules the lifecycle of a persisted auction, tells
// users with matching watchlists about it and queues their reminders.
// Scheduling errors are returned; the watchlist fanout is best effort.
func (service *AuctionService) OnAuctionCreated(ctx context.Context, auctionID int64) error {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		service.logger.Error().Err(err).Int64("auction_id", auctionID).Msg("Auction not found")
		return err
	}

	if err := a.ValidateSchedule(); err != nil {
		service.logger.Warn().
			Int64("auction_id", auctionID).
			Time("start_time", a.StartTime).
			Time("end_time", a.EndTime).
			Msg("Invalid auction schedule")
		return err
	}
	if a.Status() != auction.StatusScheduled {
		return fmt.Errorf("auction %d is %s: %w", auctionID, a.Status(), shared.ErrStaleEvent)
	}

	if err := service.scheduler.ScheduleAuction(ctx, a.ID, a.StartTime, a.EndTime); err != nil {
		return err
	}

	matches, err := service.watchlistRepo.MatchingUserIDs(ctx, a)
	if err != nil {
		service.logger.Warn().Err(err).Int64("auction_id", auctionID).Msg("Failed to match watchlists")
		matches = nil
	}
	if len(matches) > 0 {
		_ = service.notifier.Notify(ctx, event.NewWatchlistMatch(a, matches))
	}

	sent, err := service.scheduler.ScheduleReminders(ctx, a, mergeAudience(matches))
	if err != nil {
		service.logger.Warn().Err(err).Int64("auction_id", auctionID).Int("sent", sent).Msg("Failed to schedule all reminders")
	}

	service.logger.Info().
		Int64("auction_id", auctionID).
		Int("watchlist_matches", len(matches)).
		Int("reminders", sent).
		Msg("Auction admitted")
	return nil
}

// DeleteAuction removes an auction that has no bids. The pending start and
// end events become no-ops when they fire.
func (service *AuctionService) DeleteAuction(ctx context.Context, auctionID int64) (*auction.Auction, error) {
	a, err := service.auctionRepo.MarkDeleted(ctx, auctionID, service.clock.Now())
	if err != nil {
		service.logger.Warn().Err(err).Int64("auction_id", auctionID).Msg("Failed to delete auction")
		return nil, err
	}

	service.logger.Info().Int64("auction_id", auctionID).Msg("Auction deleted")
	return a, nil
}

// GetAuction retrieves an auction by ID
func (service *AuctionService) GetAuction(ctx context.Context, auctionID int64) (*auction.Auction, error) {
	return service.auctionRepo.GetByID(ctx, auctionID)
}
