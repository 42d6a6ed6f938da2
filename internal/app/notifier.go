package app

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/bid"
	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// Notifier fans lifecycle and bid events out to downstream services and to
// live websocket subscribers. It never waits on downstream consumers.
type Notifier struct {
	publisher   outbound.Publisher
	broadcaster outbound.Broadcaster
	clock       clock.Clock
	logger      zerolog.Logger
}

type NotifierParams struct {
	Publisher   outbound.Publisher
	Broadcaster outbound.Broadcaster
	Clock       clock.Clock
	Logger      zerolog.Logger
}

func NewNotifier(params NotifierParams) *Notifier {
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Notifier{
		publisher:   params.Publisher,
		broadcaster: params.Broadcaster,
		clock:       c,
		logger:      params.Logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify publishes a notification on the notification exchange. A
// notification with nobody to address is dropped.
func (n *Notifier) Notify(ctx context.Context, note event.Notification) error {
	if len(note.UserIDs) == 0 && len(note.SellerIDs) == 0 {
		n.logger.Debug().Str("event_type", note.EventType.String()).Msg("Notification has no audience, skipping")
		return nil
	}
	if note.UserIDs == nil {
		note.UserIDs = []string{}
	}

	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = n.publisher.Publish(ctx, outbound.Message{
		Exchange:   event.NotificationExchange,
		RoutingKey: string(note.EventType.RoutingKey()),
		Body:       body,
	})
	if err != nil {
		n.logger.Error().
			Err(err).
			Str("event_type", note.EventType.String()).
			Int("audience", len(note.UserIDs)).
			Msg("Failed to publish notification")
		return err
	}

	n.logger.Debug().
		Str("event_type", note.EventType.String()).
		Int("audience", len(note.UserIDs)).
		Msg("Notification published")
	return nil
}

// HandoffToCart sends the closed auction and its winning bid to the cart
// service. winning is nil when nobody bid.
func (n *Notifier) HandoffToCart(ctx context.Context, a *auction.Auction, winning *bid.Bid) error {
	body, err := json.Marshal(event.CartHandoff{AuctionData: event.AuctionData{Auction: a, Bid: winning}})
	if err != nil {
		return fmt.Errorf("failed to encode cart handoff: %w", err)
	}

	err = n.publisher.Publish(ctx, outbound.Message{
		Exchange:   event.CartExchange,
		RoutingKey: string(event.RoutingKeyAddToCart),
		Body:       body,
	})
	if err != nil {
		n.logger.Error().Err(err).Int64("auction_id", a.ID).Msg("Failed to hand auction off to cart")
		return err
	}
	return nil
}

// PublishReport ships a closed-auction report to the metrics service
func (n *Notifier) PublishReport(ctx context.Context, report event.ClosedReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode closed report: %w", err)
	}

	return n.publisher.Publish(ctx, outbound.Message{
		Exchange:   event.MetricsExchange,
		RoutingKey: string(event.RoutingKeyClosedReport),
		Body:       body,
	})
}

// Broadcast relays an event to websocket clients watching the auction
func (n *Notifier) Broadcast(ctx context.Context, auctionID int64, eventType outbound.EventType, data map[string]interface{}) {
	if n.broadcaster == nil {
		return
	}

	evt := outbound.Event{
		Type:      eventType,
		AuctionID: auctionID,
		Data:      data,
		Timestamp: n.clock.Now().Unix(),
	}
	if err := n.broadcaster.Publish(ctx, auctionID, evt); err != nil {
		n.logger.Warn().
			Err(err).
			Int64("auction_id", auctionID).
			Str("event_type", string(eventType)).
			Msg("Failed to broadcast event")
	}
}
