package app

import (
	"context"
	"errors"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/metrics"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// Lifecycle event kinds, used as metric labels
const (
	kindStart         = "start"
	kindEnd           = "end"
	kindTimeRemaining = "time_remaining"
)

// LifecycleService handles the delayed start, end and reminder events.
// Handlers return shared.ErrStaleEvent for events that no longer apply;
// the consumer acknowledges those as no-ops. A start or end delivered
// before its instant is re-published for the remaining time.
type LifecycleService struct {
	auctionRepo   outbound.AuctionRepository
	watchlistRepo outbound.WatchlistRepository
	scheduler     inbound.SchedulerService
	notifier      *Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

type LifecycleServiceParams struct {
	AuctionRepo   outbound.AuctionRepository
	WatchlistRepo outbound.WatchlistRepository
	// Scheduler re-publishes early transitions; nil leaves them to the
	// consumer's requeue
	Scheduler inbound.SchedulerService
	Notifier  *Notifier
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

func NewLifecycleService(params LifecycleServiceParams) *LifecycleService {
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &LifecycleService{
		auctionRepo:   params.AuctionRepo,
		watchlistRepo: params.WatchlistRepo,
		scheduler:     params.Scheduler,
		notifier:      params.Notifier,
		clock:         c,
		metrics:       m,
		logger:        params.Logger.With().Str("component", "lifecycle_service").Logger(),
	}
}

// HandleStart activates the auction named by an auction.start body
func (s *LifecycleService) HandleStart(ctx context.Context, body []byte) (err error) {
	defer func() { s.record(kindStart, err) }()

	ref, err := event.DecodeAuctionRef(body)
	if err != nil {
		return err
	}

	a, err := s.auctionRepo.Activate(ctx, ref.AuctionID, s.clock.Now())
	if errors.Is(err, shared.ErrPrematureEvent) {
		return s.reschedule(ctx, kindStart, ref.AuctionID, err)
	}
	if err != nil {
		return s.annotate(kindStart, ref.AuctionID, err)
	}

	s.logger.Info().Int64("auction_id", a.ID).Msg("Auction started")
	s.notifier.Broadcast(ctx, a.ID, outbound.EventTypeAuctionStarted, map[string]interface{}{
		"auction_id": a.ID,
		"end_time":   a.EndTime.Unix(),
	})
	return nil
}

// HandleEnd closes the auction, records the winner and notifies the cart
// service and the participants. A duplicate end is skipped without
// re-notifying.
func (s *LifecycleService) HandleEnd(ctx context.Context, body []byte) (err error) {
	defer func() { s.record(kindEnd, err) }()

	ref, err := event.DecodeAuctionRef(body)
	if err != nil {
		return err
	}

	result, err := s.auctionRepo.Close(ctx, ref.AuctionID, s.clock.Now())
	if errors.Is(err, shared.ErrPrematureEvent) {
		return s.reschedule(ctx, kindEnd, ref.AuctionID, err)
	}
	if err != nil {
		return s.annotate(kindEnd, ref.AuctionID, err)
	}

	a, winning := result.Auction, result.WinningBid
	logEvent := s.logger.Info().Int64("auction_id", a.ID)
	if winning != nil {
		logEvent = logEvent.Str("buyer_id", winning.UserID).Float64("amount", winning.Amount)
	}
	logEvent.Msg("Auction closed")

	// The close is committed; downstream failures are logged only.
	_ = s.notifier.HandoffToCart(ctx, a, winning)
	_ = s.notifier.Notify(ctx, event.NewAuctionClosed(a, winning))

	data := map[string]interface{}{"auction_id": a.ID}
	if winning != nil {
		data["winner_id"] = winning.UserID
		data["amount"] = winning.Amount
	}
	s.notifier.Broadcast(ctx, a.ID, outbound.EventTypeAuctionEnded, data)
	return nil
}

// HandleTimeRemaining re-reads the auction and reminds its current audience
func (s *LifecycleService) HandleTimeRemaining(ctx context.Context, body []byte) (err error) {
	defer func() { s.record(kindTimeRemaining, err) }()

	payload, err := event.DecodeTimeRemaining(body)
	if err != nil {
		return err
	}
	auctionID := payload.Auction.ID

	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return s.annotate(kindTimeRemaining, auctionID, err)
	}
	if a.Status() == auction.StatusClosed || a.Status() == auction.StatusDeleted {
		return s.annotate(kindTimeRemaining, auctionID,
			fmt.Errorf("reminder for %s auction: %w", a.Status(), shared.ErrStaleEvent))
	}

	watchers, err := s.watchlistRepo.WatcherIDs(ctx, auctionID)
	if err != nil {
		return s.annotate(kindTimeRemaining, auctionID, err)
	}

	audience := mergeAudience(watchers)
	if err := s.notifier.Notify(ctx, event.NewTimeRemaining(a, audience)); err != nil {
		return err
	}

	s.notifier.Broadcast(ctx, a.ID, outbound.EventTypeAuctionTimeRemaining, map[string]interface{}{
		"auction_id":        a.ID,
		"remaining_seconds": int64(a.EndTime.Sub(s.clock.Now()).Seconds()),
	})
	s.logger.Info().Int64("auction_id", a.ID).Int("audience", len(audience)).Msg("Reminder sent")
	return nil
}

// reschedule re-publishes a start or end that arrived before its instant
// with the remaining delay and acknowledges the early copy. When the
// instant has already passed (an end waiting on a late start) or the
// publish fails, an error is returned so the message is requeued.
func (s *LifecycleService) reschedule(ctx context.Context, kind string, auctionID int64, premature error) error {
	if s.scheduler == nil {
		return s.annotate(kind, auctionID, premature)
	}

	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return s.annotate(kind, auctionID, err)
	}

	at, schedule := a.EndTime, s.scheduler.ScheduleEnd
	if kind == kindStart {
		at, schedule = a.StartTime, s.scheduler.ScheduleStart
	}
	if !s.clock.Now().Before(at) {
		return s.annotate(kind, auctionID, premature)
	}

	if err := schedule(ctx, auctionID, at); err != nil {
		return s.annotate(kind, auctionID, err)
	}
	s.logger.Info().
		Str("kind", kind).
		Int64("auction_id", auctionID).
		Time("at", at).
		Msg("Early lifecycle event rescheduled")
	return nil
}

func (s *LifecycleService) annotate(kind string, auctionID int64, err error) error {
	switch {
	case errors.Is(err, shared.ErrStaleEvent), errors.Is(err, shared.ErrAuctionNotFound):
		s.logger.Debug().Err(err).Str("kind", kind).Int64("auction_id", auctionID).Msg("Ignoring stale lifecycle event")
	case errors.Is(err, shared.ErrPrematureEvent):
		s.logger.Warn().Err(err).Str("kind", kind).Int64("auction_id", auctionID).Msg("Lifecycle event arrived early")
	default:
		s.logger.Error().Err(err).Str("kind", kind).Int64("auction_id", auctionID).Msg("Failed to handle lifecycle event")
	}
	return fmt.Errorf("%s auction %d: %w", kind, auctionID, err)
}

func (s *LifecycleService) record(kind string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrStaleEvent), errors.Is(err, shared.ErrAuctionNotFound):
		outcome = metrics.OutcomeStale
	case errors.Is(err, shared.ErrMalformedEvent):
		outcome = metrics.OutcomeRejected
	case errors.Is(err, shared.ErrPrematureEvent):
		outcome = metrics.OutcomeRetry
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.LifecycleEvents.WithLabelValues(kind, outcome).Inc()
}

// mergeAudience unions user id lists, keeping first-seen order
func mergeAudience(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
