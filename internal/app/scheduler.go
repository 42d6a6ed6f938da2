package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/metrics"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// DefaultMinimumDelay is the floor applied to lifecycle delays so events
// that are already due still go through the delayed exchange.
const DefaultMinimumDelay = 20 * time.Millisecond

// MaxDelay is the longest x-delay the delayed-message exchange honours.
// Transitions further out are published at MaxDelay and re-published with
// the remainder when they arrive early.
const MaxDelay = time.Duration(math.MaxUint32) * time.Millisecond

// ReminderOffset is a named distance before an auction's end
type ReminderOffset struct {
	Name   string
	Before time.Duration
}

// ReminderOffsets are the reminders sent ahead of an auction's end
var ReminderOffsets = []ReminderOffset{
	{Name: "one_week", Before: 7 * 24 * time.Hour},
	{Name: "three_days", Before: 3 * 24 * time.Hour},
	{Name: "one_day", Before: 24 * time.Hour},
	{Name: "twelve_hours", Before: 12 * time.Hour},
	{Name: "five_minutes", Before: 5 * time.Minute},
}

// SchedulerService publishes delayed lifecycle messages onto the delayed exchange
type SchedulerService struct {
	publisher    outbound.Publisher
	clock        clock.Clock
	minimumDelay time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

type SchedulerServiceParams struct {
	Publisher    outbound.Publisher
	Clock        clock.Clock
	MinimumDelay time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(params SchedulerServiceParams) *SchedulerService {
	minimumDelay := params.MinimumDelay
	if minimumDelay <= 0 {
		minimumDelay = DefaultMinimumDelay
	}
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	m := params.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	return &SchedulerService{
		publisher:    params.Publisher,
		clock:        c,
		minimumDelay: minimumDelay,
		metrics:      m,
		logger:       params.Logger.With().Str("component", "scheduler_service").Logger(),
	}
}

// ScheduleAuction enqueues auction.start and auction.end. Both delays are
// clamped between the minimum delay and MaxDelay so past instants still
// fire. It returns only after the broker confirmed both messages.
func (s *SchedulerService) ScheduleAuction(ctx context.Context, auctionID int64, startTime, endTime time.Time) error {
	if !endTime.After(startTime) {
		return fmt.Errorf("schedule auction %d: %w", auctionID, shared.ErrInvalidSchedule)
	}

	if err := s.ScheduleStart(ctx, auctionID, startTime); err != nil {
		return err
	}
	return s.ScheduleEnd(ctx, auctionID, endTime)
}

// ScheduleStart enqueues auction.start for the given instant
func (s *SchedulerService) ScheduleStart(ctx context.Context, auctionID int64, at time.Time) error {
	return s.scheduleTransition(ctx, event.RoutingKeyAuctionStart, auctionID, at)
}

// ScheduleEnd enqueues auction.end for the given instant
func (s *SchedulerService) ScheduleEnd(ctx context.Context, auctionID int64, at time.Time) error {
	return s.scheduleTransition(ctx, event.RoutingKeyAuctionEnd, auctionID, at)
}

func (s *SchedulerService) scheduleTransition(ctx context.Context, key event.RoutingKey, auctionID int64, at time.Time) error {
	delay := s.clamp(at.Sub(s.clock.Now()))

	body, err := json.Marshal(event.AuctionRef{AuctionID: auctionID})
	if err != nil {
		return fmt.Errorf("failed to encode auction reference: %w", err)
	}

	if err := s.publish(ctx, key, body, delay); err != nil {
		s.logger.Error().
			Err(err).
			Int64("auction_id", auctionID).
			Str("routing_key", string(key)).
			Msg("Failed to schedule auction transition")
		return err
	}

	s.logger.Info().
		Int64("auction_id", auctionID).
		Str("routing_key", string(key)).
		Dur("delay", delay).
		Bool("capped", delay == MaxDelay).
		Msg("Auction transition scheduled")
	return nil
}

// ScheduleReminders publishes the reminders whose instant is still ahead
// and returns how many were sent. Elapsed offsets are skipped.
func (s *SchedulerService) ScheduleReminders(ctx context.Context, a *auction.Auction, userIDs []string) (int, error) {
	if userIDs == nil {
		userIDs = []string{}
	}

	body, err := json.Marshal(event.TimeRemaining{Auction: a, UserIDs: userIDs})
	if err != nil {
		return 0, fmt.Errorf("failed to encode reminder: %w", err)
	}

	now := s.clock.Now()
	sent := 0
	for _, offset := range ReminderOffsets {
		delay := a.EndTime.Add(-offset.Before).Sub(now)
		if delay <= 0 {
			s.logger.Debug().
				Int64("auction_id", a.ID).
				Str("offset", offset.Name).
				Msg("Reminder already elapsed, skipping")
			continue
		}
		if delay > MaxDelay {
			s.logger.Warn().
				Int64("auction_id", a.ID).
				Str("offset", offset.Name).
				Dur("delay", delay).
				Msg("Reminder beyond the delayed exchange limit, skipping")
			continue
		}

		if err := s.publish(ctx, event.RoutingKeyAuctionTime, body, delay); err != nil {
			s.logger.Error().
				Err(err).
				Int64("auction_id", a.ID).
				Str("offset", offset.Name).
				Msg("Failed to schedule reminder")
			return sent, err
		}
		sent++
	}

	s.logger.Info().
		Int64("auction_id", a.ID).
		Int("reminders", sent).
		Int("audience", len(userIDs)).
		Msg("Auction reminders scheduled")
	return sent, nil
}

func (s *SchedulerService) clamp(d time.Duration) time.Duration {
	switch {
	case d < s.minimumDelay:
		return s.minimumDelay
	case d > MaxDelay:
		return MaxDelay
	default:
		return d
	}
}

func (s *SchedulerService) publish(ctx context.Context, key event.RoutingKey, body []byte, delay time.Duration) error {
	err := s.publisher.Publish(ctx, outbound.Message{
		Exchange:   event.AuctionExchange,
		RoutingKey: string(key),
		Body:       body,
		Delay:      delay,
	})
	if err != nil {
		return err
	}
	s.metrics.ScheduledMessages.WithLabelValues(string(key)).Inc()
	return nil
}
