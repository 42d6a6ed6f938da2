package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-lifecycle-service/internal/domain/shared"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Connection owns the AMQP connection of the process. Channels are acquired
// per operation through WithChannel and always released.
type Connection struct {
	url            string
	connectTimeout time.Duration
	conn           *amqp.Connection
	mu             sync.RWMutex
	dialMu         sync.Mutex
	logger         zerolog.Logger
}

type ConnectionParams struct {
	URL            string
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Dial connects to the broker, retrying with exponential backoff until
// ConnectTimeout elapses or ctx is cancelled.
func Dial(ctx context.Context, params ConnectionParams) (*Connection, error) {
	c := &Connection{
		url:            params.URL,
		connectTimeout: params.ConnectTimeout,
		logger:         params.Logger.With().Str("component", "broker_connection").Logger(),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Connection) connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.isOpen() {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.connectTimeout

	attempt := 0
	operation := func() error {
		attempt++
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Broker connection attempt failed")
			return err
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return shared.BrokerUnavailable(fmt.Errorf("failed to connect to broker: %w", err))
	}

	c.logger.Info().Int("attempts", attempt).Msg("Broker connection established")
	return nil
}

func (c *Connection) isOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Reconnect re-dials if the underlying connection was lost
func (c *Connection) Reconnect(ctx context.Context) error {
	return c.connect(ctx)
}

// Channel opens a new channel. The caller owns it and must close it.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, shared.BrokerUnavailable(errors.New("connection is closed"))
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, shared.BrokerUnavailable(fmt.Errorf("failed to open channel: %w", err))
	}

	return ch, nil
}

// WithChannel runs fn on a fresh channel and closes it on every exit path
func (c *Connection) WithChannel(fn func(ch *amqp.Channel) error) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}

	defer func() {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn().Err(err).Msg("Failed to close broker channel")
		}
	}()

	return fn(ch)
}

// Close closes the broker connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}

	return c.conn.Close()
}
