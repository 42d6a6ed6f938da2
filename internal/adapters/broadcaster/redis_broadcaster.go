package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChannelPrefix namespaces the per-auction pub/sub channels
const ChannelPrefix = "auction:"

// ChannelName returns the pub/sub channel of an auction
func ChannelName(auctionID int64) string {
	return ChannelPrefix + strconv.FormatInt(auctionID, 10)
}

// subscription is one client's pubsub connection and the auctions it follows
type subscription struct {
	events   chan outbound.Event
	pubsub   *redis.PubSub
	auctions map[int64]struct{}
}

// RedisBroadcaster relays live auction events between service instances
// over Redis pub/sub so every websocket client sees every event.
type RedisBroadcaster struct {
	client        *redis.Client
	subscriptions map[string]*subscription
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	logger        zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:        params.RedisClient,
		subscriptions: make(map[string]*subscription),
		ctx:           ctx,
		cancel:        cancel,
		logger:        params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe adds an auction to a client's feed. The first subscription of a
// client opens its pubsub connection and fixes its event channel.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID int64, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subscriptions[clientID]
	if exists {
		if _, ok := sub.auctions[auctionID]; ok {
			return nil
		}
	} else {
		sub = &subscription{
			events:   eventChan,
			pubsub:   r.client.Subscribe(ctx),
			auctions: make(map[int64]struct{}),
		}
		r.subscriptions[clientID] = sub
		go r.listen(sub, clientID)
	}

	if err := sub.pubsub.Subscribe(ctx, ChannelName(auctionID)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Int64("auction_id", auctionID).Msg("Failed to subscribe to Redis channel")
		if len(sub.auctions) == 0 {
			r.release(clientID, sub)
		}
		return fmt.Errorf("failed to subscribe to auction %d: %w", auctionID, err)
	}
	sub.auctions[auctionID] = struct{}{}

	r.logger.Debug().Str("client_id", clientID).Int64("auction_id", auctionID).Msg("Client subscribed to auction")
	return nil
}

// Unsubscribe removes an auction from a client's feed. Dropping the last
// auction closes the client's pubsub connection and event channel.
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, auctionID int64, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subscriptions[clientID]
	if !exists {
		return nil
	}
	if _, ok := sub.auctions[auctionID]; !ok {
		return nil
	}
	delete(sub.auctions, auctionID)

	if len(sub.auctions) > 0 {
		if err := sub.pubsub.Unsubscribe(ctx, ChannelName(auctionID)); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Int64("auction_id", auctionID).Msg("Error unsubscribing from Redis channel")
		}
		return nil
	}

	r.release(clientID, sub)
	r.logger.Debug().Str("client_id", clientID).Int64("auction_id", auctionID).Msg("Client unsubscribed from auction")
	return nil
}

// release must be called with mu held
func (r *RedisBroadcaster) release(clientID string, sub *subscription) {
	if err := sub.pubsub.Close(); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
	}
	close(sub.events)
	delete(r.subscriptions, clientID)
}

// Publish sends an event to every subscriber of the auction
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID int64, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	event.AuctionID = auctionID

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, ChannelName(auctionID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Int64("auction_id", auctionID).
		Int64("receivers", receivers).
		Msg("Published event to auction")
	return nil
}

// IsSubscribed checks if a client follows an auction
func (r *RedisBroadcaster) IsSubscribed(_ context.Context, auctionID int64, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.subscriptions[clientID]
	if !exists {
		return false
	}
	_, ok := sub.auctions[auctionID]
	return ok
}

// RemoveClient drops every subscription of a disconnected client
func (r *RedisBroadcaster) RemoveClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, exists := r.subscriptions[clientID]; exists {
		r.release(clientID, sub)
	}
}

// listen forwards pubsub messages to the client's event channel. Events
// are dropped when the client is not keeping up.
func (r *RedisBroadcaster) listen(sub *subscription, clientID string) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Redis listener panic")
		}
	}()

	messages := sub.pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message")
				continue
			}

			r.mu.RLock()
			live := r.subscriptions[clientID] == sub
			if live {
				select {
				case sub.events <- event:
				default:
					r.logger.Warn().Str("client_id", clientID).Msg("Client channel full, dropping event")
				}
			}
			r.mu.RUnlock()
			if !live {
				return
			}

		case <-r.ctx.Done():
			return
		}
	}
}

// Close stops all listeners and closes the Redis client
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	for clientID, sub := range r.subscriptions {
		r.release(clientID, sub)
	}
	r.mu.Unlock()

	return r.client.Close()
}
