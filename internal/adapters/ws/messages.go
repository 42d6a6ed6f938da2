package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/ports/outbound"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePlaceBid    MessageType = "place_bid"
	MessageTypeGetAuction  MessageType = "get_auction"
	MessageTypePing        MessageType = "ping"

	// Server to Client message types
	MessageTypeAuctionStarted MessageType = "auction_started"
	MessageTypeBidPlaced      MessageType = "bid_placed"
	MessageTypeBidAccepted    MessageType = "bid_accepted"
	MessageTypeAuctionEnded   MessageType = "auction_ended"
	MessageTypeTimeRemaining  MessageType = "time_remaining"
	MessageTypeAuctionUpdate  MessageType = "auction_update"
	MessageTypeError          MessageType = "error"
	MessageTypePong           MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *int64                 `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *int64                 `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *int64) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// NewEventMessage maps a broadcast event onto the client protocol
func NewEventMessage(event outbound.Event) *ServerMessage {
	msgType := MessageTypeAuctionUpdate
	switch event.Type {
	case outbound.EventTypeAuctionStarted:
		msgType = MessageTypeAuctionStarted
	case outbound.EventTypeBidPlaced:
		msgType = MessageTypeBidPlaced
	case outbound.EventTypeAuctionEnded:
		msgType = MessageTypeAuctionEnded
	case outbound.EventTypeAuctionTimeRemaining:
		msgType = MessageTypeTimeRemaining
	}

	auctionID := event.AuctionID
	return &ServerMessage{
		Type:      msgType,
		AuctionID: &auctionID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID <= 0 {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetAuction:
		return m.validateAuctionID()
	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		amount, ok := m.Data["amount"].(float64)
		if !ok || amount <= 0 {
			return shared.ErrInvalidAmount
		}
	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
