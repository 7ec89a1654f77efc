// Package messaging sends and receives raw notification messages on the
// broker, for debugging subscriptions. Channels ("kanalen") map to NATS
// subject prefixes and routing keys ("kenmerken") to the rest of the
// subject.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Static errors for err113 compliance.
var (
	ErrEmptyRoutingKey = errors.New("routing key is required")
	ErrEmptyExchange   = errors.New("exchange is required")
)

// MatchAll is the binding key that receives every message.
const MatchAll = "#"

// Bus is a subject based publish/subscribe connection.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error)
}

// Delivery is one received message.
type Delivery struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Received   time.Time
}

// MatchBindingKey reports whether routingKey matches an AMQP topic binding
// key: "*" matches exactly one word and "#" zero or more words.
func MatchBindingKey(key, routingKey string) bool {
	return matchWords(strings.Split(key, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, words []string) bool {
	if len(pattern) == 0 {
		return len(words) == 0
	}

	switch pattern[0] {
	case MatchAll:
		for i := 0; i <= len(words); i++ {
			if matchWords(pattern[1:], words[i:]) {
				return true
			}
		}

		return false
	case "*":
		return len(words) > 0 && matchWords(pattern[1:], words[1:])
	default:
		return len(words) > 0 && words[0] == pattern[0] && matchWords(pattern[1:], words[1:])
	}
}

// Subject returns the NATS subject of a routing key on an exchange.
func Subject(exchange, routingKey string) string {
	return exchange + "." + routingKey
}

// Emit publishes body with routingKey on exchange.
func Emit(bus Bus, exchange, routingKey string, body []byte) error {
	if exchange == "" {
		return ErrEmptyExchange
	}

	if routingKey == "" {
		return ErrEmptyRoutingKey
	}

	err := bus.Publish(Subject(exchange, routingKey), body)
	if err != nil {
		return fmt.Errorf("emitting on %s: %w", exchange, err)
	}

	return nil
}

// Consumer receives the messages of one exchange matching its filters.
type Consumer struct {
	bus      Bus
	exchange string
	filters  []string
	now      func() time.Time
}

// NewConsumer listens on exchange. Without filters every message is
// received.
func NewConsumer(bus Bus, exchange string, filters ...string) *Consumer {
	if len(filters) == 0 {
		filters = []string{MatchAll}
	}

	return &Consumer{bus: bus, exchange: exchange, filters: filters, now: time.Now}
}

// Filters returns the binding keys the consumer listens on.
func (c *Consumer) Filters() []string {
	return append([]string(nil), c.filters...)
}

// Matches reports whether routingKey matches one of the filters.
func (c *Consumer) Matches(routingKey string) bool {
	for _, filter := range c.filters {
		if MatchBindingKey(filter, routingKey) {
			return true
		}
	}

	return false
}

// Run delivers messages to handle until ctx is done. The whole exchange is
// subscribed once and filtered here, so a message matching several filters
// is delivered once. Deliveries are serialised.
func (c *Consumer) Run(ctx context.Context, handle func(Delivery)) error {
	if c.exchange == "" {
		return ErrEmptyExchange
	}

	var mu sync.Mutex

	prefix := c.exchange + "."
	pattern := prefix + ">"

	unsubscribe, err := c.bus.Subscribe(pattern, func(subject string, data []byte) {
		routingKey := strings.TrimPrefix(subject, prefix)
		if !c.Matches(routingKey) {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		handle(Delivery{
			Exchange:   c.exchange,
			RoutingKey: routingKey,
			Body:       data,
			Received:   c.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", pattern, err)
	}

	<-ctx.Done()

	err = unsubscribe()
	if err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", pattern, err)
	}

	return nil
}

// NATSBus is a Bus on a NATS connection.
type NATSBus struct {
	conn *nats.Conn
}

// Connect opens a NATS connection.
func Connect(url string, opts ...nats.Option) (*NATSBus, error) {
	conn, err := nats.Connect(url, append([]nats.Option{nats.Name("zac")}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}

	return &NATSBus{conn: conn}, nil
}

// NewNATSBus wraps an open connection.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

// Publish implements Bus. The message is flushed before returning.
func (b *NATSBus) Publish(subject string, data []byte) error {
	err := b.conn.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("publishing: %w", err)
	}

	err = b.conn.Flush()
	if err != nil {
		return fmt.Errorf("flushing: %w", err)
	}

	return nil
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing: %w", err)
	}

	return sub.Unsubscribe, nil
}

// URL returns the server the bus is connected to.
func (b *NATSBus) URL() string {
	return b.conn.ConnectedUrl()
}

// Close drains and closes the connection.
func (b *NATSBus) Close() {
	_ = b.conn.Drain()
}

// FormatSent is the line printed after emitting a message.
func FormatSent(at time.Time, routingKey string, body []byte) string {
	return fmt.Sprintf("[%s] Verstuurd met kenmerk %q: %s", at.Format(time.DateTime), routingKey, body)
}

// FormatReceived is the line printed for a delivery.
func FormatReceived(delivery Delivery) string {
	return fmt.Sprintf("[%s] Ontvangen met kenmerk %q: %s",
		delivery.Received.Format(time.DateTime), delivery.RoutingKey, delivery.Body)
}
