package broker

import (
	"fmt"

	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	KindDirect         = "direct"
	KindDelayedMessage = "x-delayed-message"
)

// Exchange describes an exchange to declare
type Exchange struct {
	Name    string
	Kind    string
	Durable bool
	Args    amqp.Table
}

// Queue describes a queue and the binding that feeds it
type Queue struct {
	Name       string
	Durable    bool
	Exchange   string
	RoutingKey string
}

// Declarer is the subset of *amqp.Channel used to create topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

var (
	// DelayedExchange holds lifecycle messages until their x-delay elapses
	DelayedExchange = Exchange{
		Name:    event.AuctionExchange,
		Kind:    KindDelayedMessage,
		Durable: true,
		Args:    amqp.Table{"x-delayed-type": KindDirect},
	}

	NotificationExchange = Exchange{Name: event.NotificationExchange, Kind: KindDirect, Durable: true}
	CartExchange         = Exchange{Name: event.CartExchange, Kind: KindDirect, Durable: true}
	MetricsExchange      = Exchange{Name: event.MetricsExchange, Kind: KindDirect, Durable: true}

	StartQueue = Queue{
		Name:       event.AuctionStartQueue,
		Durable:    true,
		Exchange:   event.AuctionExchange,
		RoutingKey: string(event.RoutingKeyAuctionStart),
	}
	EndQueue = Queue{
		Name:       event.AuctionEndQueue,
		Durable:    true,
		Exchange:   event.AuctionExchange,
		RoutingKey: string(event.RoutingKeyAuctionEnd),
	}
	TimeRemainingQueue = Queue{
		Name:       event.AuctionTimeRemainingQueue,
		Durable:    true,
		Exchange:   event.AuctionExchange,
		RoutingKey: string(event.RoutingKeyAuctionTime),
	}
)

// DeclareExchange creates the exchange if it does not exist
func DeclareExchange(ch Declarer, ex Exchange) error {
	if err := ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, false, false, false, ex.Args); err != nil {
		return shared.BrokerUnavailable(fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err))
	}
	return nil
}

// DeclareQueue creates the queue and binds it to its exchange
func DeclareQueue(ch Declarer, q Queue) error {
	if _, err := ch.QueueDeclare(q.Name, q.Durable, false, false, false, nil); err != nil {
		return shared.BrokerUnavailable(fmt.Errorf("failed to declare queue %s: %w", q.Name, err))
	}
	if err := ch.QueueBind(q.Name, q.RoutingKey, q.Exchange, false, nil); err != nil {
		return shared.BrokerUnavailable(fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, q.Exchange, err))
	}
	return nil
}

// DeclareTopology declares every exchange and queue the service uses
func DeclareTopology(ch Declarer) error {
	for _, ex := range []Exchange{DelayedExchange, NotificationExchange, CartExchange, MetricsExchange} {
		if err := DeclareExchange(ch, ex); err != nil {
			return err
		}
	}
	for _, q := range []Queue{StartQueue, EndQueue, TimeRemainingQueue} {
		if err := DeclareQueue(ch, q); err != nil {
			return err
		}
	}
	return nil
}
