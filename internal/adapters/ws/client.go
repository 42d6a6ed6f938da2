package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-lifecycle-service/internal/config"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Conn is the part of a websocket connection a client drives
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type WsClient struct {
	id         string
	userID     string
	conn       Conn
	sendChan   chan *ServerMessage
	ctx        context.Context
	cancel     context.CancelFunc
	handler    *WsHandler
	workerPool *pond.WorkerPool
	stopped    bool
	mu         sync.Mutex
	logger     zerolog.Logger
}

type WsClientParams struct {
	UserID  string
	Conn    Conn
	Handler *WsHandler
	Logger  zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())

	pool := pond.New(
		config.WSMaxWorkers,
		config.WSMaxCapacity,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
	)

	id := uuid.New().String()
	return &WsClient{
		id:         id,
		userID:     params.UserID,
		conn:       params.Conn,
		sendChan:   make(chan *ServerMessage, 100),
		ctx:        ctx,
		cancel:     cancel,
		handler:    params.Handler,
		workerPool: pool,
		logger:     params.Logger.With().Str("client_id", id).Str("user_id", params.UserID).Logger(),
	}
}

func (client *WsClient) Start() {
	go client.messageSender()
	go client.messageReceiver()
}

func (client *WsClient) Stop() {
	client.mu.Lock()
	if client.stopped {
		client.mu.Unlock()
		return
	}
	client.stopped = true
	client.mu.Unlock()

	client.cancel()
	client.conn.Close()
	client.workerPool.Stop()
}

// Send queues a message for the client
func (client *WsClient) Send(msg *ServerMessage) error {
	client.mu.Lock()
	stopped := client.stopped
	client.mu.Unlock()
	if stopped {
		return fmt.Errorf("client %s is stopped", client.id)
	}

	select {
	case client.sendChan <- msg:
		return nil
	case <-client.ctx.Done():
		return fmt.Errorf("client %s is stopped", client.id)
	case <-time.After(100 * time.Millisecond):
		return fmt.Errorf("client %s send channel is full", client.id)
	}
}

func (client *WsClient) messageSender() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.sendChan:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				client.logger.Error().Err(err).Msg("Failed to send message to client")
				client.cancel()
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				client.logger.Debug().Err(err).Msg("Failed to ping client")
				client.cancel()
				return
			}
		case <-client.ctx.Done():
			return
		}
	}
}

func (client *WsClient) messageReceiver() {
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Error().Err(err).Msg("WebSocket read error for client")
			} else {
				client.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed for client")
			}
			client.cancel()
			return
		}

		client.workerPool.Submit(func() {
			if err := client.handleMessage(message); err != nil {
				client.logger.Warn().Err(err).Msg("Failed to handle client message")
				_ = client.Send(NewErrorMessage(err.Error(), nil))
			}
		})
	}
}

func (client *WsClient) handleMessage(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return fmt.Errorf("invalid message format: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("message validation failed: %w", err)
	}

	if msg.Type == MessageTypePing {
		return client.Send(NewServerMessage(MessageTypePong))
	}

	if client.handler == nil {
		return fmt.Errorf("handler not available")
	}
	return client.handler.HandleClientMessage(client.ctx, client, msg)
}
