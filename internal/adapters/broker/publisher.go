package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/metrics"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DelayHeader is read by the delayed-message exchange plugin, in milliseconds
const DelayHeader = "x-delay"

// Publisher implements outbound.Publisher with publisher confirms
type Publisher struct {
	conn    *Connection
	retries int
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type PublisherParams struct {
	Connection *Connection
	Retries    int
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

func NewPublisher(params PublisherParams) *Publisher {
	m := params.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &Publisher{
		conn:    params.Connection,
		retries: params.Retries,
		metrics: m,
		logger:  params.Logger.With().Str("component", "broker_publisher").Logger(),
	}
}

// Publish sends msg and waits for the broker to confirm it. Transient
// failures are retried with backoff, reconnecting when the connection dropped.
func (p *Publisher) Publish(ctx context.Context, msg outbound.Message) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.retries)),
		ctx,
	)

	operation := func() error {
		err := p.publishOnce(ctx, msg)
		if err == nil {
			return nil
		}
		p.logger.Warn().
			Err(err).
			Str("exchange", msg.Exchange).
			Str("routing_key", msg.RoutingKey).
			Msg("Publish attempt failed")
		if rerr := p.conn.Reconnect(ctx); rerr != nil {
			return backoff.Permanent(rerr)
		}
		return err
	}

	if err := backoff.Retry(operation, policy); err != nil {
		p.metrics.BrokerPublishes.WithLabelValues(msg.Exchange, metrics.OutcomeError).Inc()
		return shared.BrokerUnavailable(err)
	}

	p.metrics.BrokerPublishes.WithLabelValues(msg.Exchange, metrics.OutcomeOK).Inc()
	p.logger.Debug().
		Str("exchange", msg.Exchange).
		Str("routing_key", msg.RoutingKey).
		Dur("delay", msg.Delay).
		Msg("Message published")
	return nil
}

func (p *Publisher) publishOnce(ctx context.Context, msg outbound.Message) error {
	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}

		confirmation, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			msg.Exchange,
			msg.RoutingKey,
			false,
			false,
			toPublishing(msg, time.Now()),
		)
		if err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}

		acked, err := confirmation.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for confirm: %w", err)
		}
		if !acked {
			return errors.New("broker rejected the message")
		}
		return nil
	})
}

func toPublishing(msg outbound.Message, now time.Time) amqp.Publishing {
	headers := amqp.Table{}
	if msg.Delay > 0 {
		headers[DelayHeader] = msg.Delay.Milliseconds()
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         msg.Body,
	}
}
