package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"auction-lifecycle-service/internal/domain/auction"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// feed is the event channel shared by all auctions a client follows
type feed struct {
	events   chan outbound.Event
	auctions map[int64]struct{}
}

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*WsClient
	clientsMu      sync.RWMutex
	feeds          map[string]*feed
	feedsMu        sync.Mutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	broadcaster    outbound.Broadcaster
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		feeds:          make(map[string]*feed),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		broadcaster:    params.Broadcaster,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.logger,
	})

	handler.registerClient(client)
	client.Start()

	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID).Msg("WebSocket client connected")
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
	handler.logger.Debug().Str("client_id", client.id).Int("total_clients", len(handler.clients)).Msg("Client registered")
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	delete(handler.clients, client.id)
	total := len(handler.clients)
	handler.clientsMu.Unlock()

	handler.feedsMu.Lock()
	if f, ok := handler.feeds[client.id]; ok {
		for auctionID := range f.auctions {
			if err := handler.broadcaster.Unsubscribe(context.Background(), auctionID, client.id); err != nil {
				handler.logger.Warn().Err(err).Str("client_id", client.id).Int64("auction_id", auctionID).Msg("Failed to unsubscribe disconnected client")
			}
		}
		delete(handler.feeds, client.id)
	}
	handler.feedsMu.Unlock()

	client.Stop()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID).Int("total_clients", total).Msg("WebSocket client disconnected")
}

// forwardEvents relays broadcast events to the socket until the feed is
// closed by the broadcaster or the client goes away
func (handler *WsHandler) forwardEvents(client *WsClient, events <-chan outbound.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := client.Send(NewEventMessage(event)); err != nil {
				handler.logger.Warn().Err(err).Str("client_id", client.id).Str("event_type", string(event.Type)).Msg("Failed to send event to WebSocket client")
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (handler *WsHandler) HandleClientMessage(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(ctx, client, msg)
	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(ctx, client, msg)
	case MessageTypePlaceBid:
		return handler.handlePlaceBid(ctx, client, msg)
	case MessageTypeGetAuction:
		return handler.handleGetAuction(ctx, client, msg)
	default:
		handler.logger.Warn().Str("client_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

func (handler *WsHandler) handleSubscribe(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	auctionID := *msg.AuctionID

	handler.feedsMu.Lock()
	f, exists := handler.feeds[client.id]
	if !exists {
		f = &feed{
			events:   make(chan outbound.Event, 100),
			auctions: make(map[int64]struct{}),
		}
	}
	if err := handler.broadcaster.Subscribe(ctx, auctionID, client.id, f.events); err != nil {
		handler.feedsMu.Unlock()
		handler.logger.Error().Err(err).Str("client_id", client.id).Int64("auction_id", auctionID).Msg("Failed to subscribe to auction")
		return err
	}
	if !exists {
		handler.feeds[client.id] = f
		go handler.forwardEvents(client, f.events)
	}
	f.auctions[auctionID] = struct{}{}
	handler.feedsMu.Unlock()

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "subscribed"

	handler.logger.Info().Str("client_id", client.id).Int64("auction_id", auctionID).Msg("Client subscribed to auction")
	return client.Send(response)
}

// handleUnsubscribe drops one auction from the client's feed. The
// broadcaster closes the feed when its last auction goes.
func (handler *WsHandler) handleUnsubscribe(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	auctionID := *msg.AuctionID

	handler.feedsMu.Lock()
	if err := handler.broadcaster.Unsubscribe(ctx, auctionID, client.id); err != nil {
		handler.feedsMu.Unlock()
		return err
	}
	if f, ok := handler.feeds[client.id]; ok {
		delete(f.auctions, auctionID)
		if len(f.auctions) == 0 {
			delete(handler.feeds, client.id)
		}
	}
	handler.feedsMu.Unlock()

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "unsubscribed"

	handler.logger.Info().Str("client_id", client.id).Int64("auction_id", auctionID).Msg("Client unsubscribed from auction")
	return client.Send(response)
}

// handlePlaceBid places a bid as the connected user. Rejections go back to
// the client as error messages; a too-low bid carries the amount to beat.
func (handler *WsHandler) handlePlaceBid(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	amount, _ := msg.Data["amount"].(float64)

	placed, err := handler.bidService.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: *msg.AuctionID,
		UserID:    client.userID,
		Amount:    amount,
	})
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		if highest, ok := shared.CurrentHighest(err); ok {
			errorMsg.Data = map[string]interface{}{"currentHighest": highest}
		}
		return client.Send(errorMsg)
	}

	response := NewServerMessage(MessageTypeBidAccepted)
	response.AuctionID = msg.AuctionID
	response.Data["bid_id"] = placed.ID
	response.Data["amount"] = placed.Amount
	response.Data["placed_at"] = placed.PlacedAt.UnixMilli()

	handler.logger.Info().Int64("bid_id", placed.ID).Int64("auction_id", placed.AuctionID).Str("user_id", client.userID).Float64("amount", amount).Msg("Bid placed successfully")
	return client.Send(response)
}

func (handler *WsHandler) handleGetAuction(ctx context.Context, client *WsClient, msg *ClientMessage) error {
	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	for k, v := range auctionData(a) {
		response.Data[k] = v
	}

	highest, err := handler.bidService.GetHighestBid(ctx, a.ID)
	switch {
	case err == nil:
		response.Data["current_price"] = highest.Amount
	case errors.Is(err, shared.ErrNoBidsFound):
		response.Data["current_price"] = a.StartPrice
	default:
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	return client.Send(response)
}

func auctionData(a *auction.Auction) map[string]interface{} {
	data := map[string]interface{}{
		"auction_id":  a.ID,
		"title":       a.Title,
		"seller_id":   a.SellerID,
		"start_time":  a.StartTime.Format(time.RFC3339),
		"end_time":    a.EndTime.Format(time.RFC3339),
		"start_price": a.StartPrice,
		"status":      a.Status(),
	}
	if a.BuyerID != nil {
		data["buyer_id"] = *a.BuyerID
	}
	return data
}
