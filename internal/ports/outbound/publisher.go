package outbound

import (
	"context"
	"time"
)

// Publisher delivers a message to a broker exchange. It returns only once
// the broker has accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Message is a broker-agnostic outgoing message. A positive Delay asks a
// delayed exchange to hold the message for that long before routing it.
type Message struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Delay      time.Duration
}
