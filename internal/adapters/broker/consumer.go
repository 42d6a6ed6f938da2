package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-lifecycle-service/internal/domain/shared"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Decision is what a consumer does with a delivery after handling it
type Decision int

const (
	// Ack removes the message from the queue
	Ack Decision = iota
	// Requeue puts the message back after the requeue delay
	Requeue
	// Reject drops the message for good
	Reject
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decide maps a handler result to a delivery decision. Stale and
// not-found events are acknowledged as no-ops, malformed ones are dropped,
// everything else is retried.
func Decide(err error) Decision {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, shared.ErrMalformedEvent):
		return Reject
	case errors.Is(err, shared.ErrStaleEvent), errors.Is(err, shared.ErrAuctionNotFound):
		return Ack
	default:
		return Requeue
	}
}

// HandlerFunc processes one message body
type HandlerFunc func(ctx context.Context, body []byte) error

// Acknowledger is the part of amqp.Delivery the consumer settles through
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

const defaultHandleTimeout = 30 * time.Second

// Consumer drains one queue with manual acknowledgements. It reconnects on
// channel loss and stops when its context is cancelled.
type Consumer struct {
	conn          *Connection
	exchange      Exchange
	queue         Queue
	prefetch      int
	requeueDelay  time.Duration
	handleTimeout time.Duration
	handler       HandlerFunc
	logger        zerolog.Logger
}

type ConsumerParams struct {
	Connection   *Connection
	Exchange     Exchange
	Queue        Queue
	Prefetch     int
	RequeueDelay time.Duration
	Handler      HandlerFunc
	Logger       zerolog.Logger
}

func NewConsumer(params ConsumerParams) *Consumer {
	return &Consumer{
		conn:          params.Connection,
		exchange:      params.Exchange,
		queue:         params.Queue,
		prefetch:      params.Prefetch,
		requeueDelay:  params.RequeueDelay,
		handleTimeout: defaultHandleTimeout,
		handler:       params.Handler,
		logger: params.Logger.With().
			Str("component", "broker_consumer").
			Str("queue", params.Queue.Name).
			Logger(),
	}
}

// Run blocks until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("Consumer started")

	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info().Msg("Consumer stopped")
			return nil
		}

		c.logger.Error().Err(err).Msg("Consumer interrupted, reconnecting")

		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if rerr := backoff.Retry(func() error { return c.conn.Reconnect(ctx) }, policy); rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer for %s could not reconnect: %w", c.queue.Name, rerr)
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	return c.conn.WithChannel(func(ch *amqp.Channel) error {
		if err := DeclareExchange(ch, c.exchange); err != nil {
			return err
		}
		if err := DeclareQueue(ch, c.queue); err != nil {
			return err
		}
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}

		deliveries, err := ch.ConsumeWithContext(ctx, c.queue.Name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to start consuming: %w", err)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case d, ok := <-deliveries:
				if !ok {
					return errors.New("delivery channel closed")
				}
				c.process(ctx, d.Body, d)
			}
		}
	})
}

// process runs the handler and settles the delivery
func (c *Consumer) process(ctx context.Context, body []byte, ack Acknowledger) Decision {
	err := c.invoke(ctx, body)
	decision := Decide(err)

	switch decision {
	case Ack:
		if err != nil {
			c.logger.Debug().Err(err).Msg("Event skipped")
		}
		if aerr := ack.Ack(false); aerr != nil {
			c.logger.Error().Err(aerr).Msg("Failed to ack message")
		}
	case Reject:
		c.logger.Warn().Err(err).Msg("Dropping malformed message")
		if rerr := ack.Reject(false); rerr != nil {
			c.logger.Error().Err(rerr).Msg("Failed to reject message")
		}
	case Requeue:
		c.logger.Warn().Err(err).Dur("delay", c.requeueDelay).Msg("Requeueing message")
		if c.requeueDelay > 0 {
			timer := time.NewTimer(c.requeueDelay)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
		if nerr := ack.Nack(false, true); nerr != nil {
			c.logger.Error().Err(nerr).Msg("Failed to nack message")
		}
	}

	return decision
}

func (c *Consumer) invoke(ctx context.Context, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handleCtx, cancel := context.WithTimeout(ctx, c.handleTimeout)
	defer cancel()

	return c.handler(handleCtx, body)
}
