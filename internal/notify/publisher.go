package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// Publisher delivers a message to the subscribers of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *Message) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, topic string, msg *Message) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, topic string, msg *Message) error {
	return f(ctx, topic, msg)
}

// Discard drops every message.
var Discard = PublisherFunc(func(context.Context, string, *Message) error {
	return nil
})

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, topic string, msg *Message) error {
	var errs []error

	for _, publisher := range f {
		err := publisher.Publish(ctx, topic, msg)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Broker relays messages to in-process subscribers, such as open event
// streams. Slow subscribers lose messages rather than block publishers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Envelope]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]map[chan Envelope]struct{})}
}

// Subscribe returns a channel receiving the messages published on the
// topics, and a function that ends the subscription and closes it.
func (b *Broker) Subscribe(topics ...string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, constants.SubscriberBuffer)

	b.mu.Lock()
	for _, topic := range topics {
		if b.subscribers[topic] == nil {
			b.subscribers[topic] = make(map[chan Envelope]struct{})
		}

		b.subscribers[topic][ch] = struct{}{}
	}
	b.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			for _, topic := range topics {
				delete(b.subscribers[topic], ch)

				if len(b.subscribers[topic]) == 0 {
					delete(b.subscribers, topic)
				}
			}

			close(ch)
		})
	}
}

// Publish implements Publisher.
func (b *Broker) Publish(_ context.Context, topic string, msg *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[topic] {
		select {
		case ch <- Envelope{Topic: topic, Message: *msg}:
		default:
		}
	}

	return nil
}

// NATSPublisher publishes JSON messages on the subject named by the topic.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, topic string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	err = p.conn.Publish(topic, data)
	if err != nil {
		return fmt.Errorf("publishing on nats subject %s: %w", topic, err)
	}

	return nil
}

// RedisPublisher publishes JSON messages on the Redis channel named by the
// topic.
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher wraps a Redis client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	err = p.client.Publish(ctx, topic, data).Err()
	if err != nil {
		return fmt.Errorf("publishing on redis channel %s: %w", topic, err)
	}

	return nil
}

// SNSAPI is the part of the SNS client used by SNSPublisher.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes every topic to one SNS topic. The notification
// topic travels as a message attribute so subscriptions can filter on it.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher publishes to topicARN.
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// Publish implements Publisher.
func (p *SNSPublisher) Publish(ctx context.Context, topic string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String(constants.ContentTypeJSON)},
			"topic":        {DataType: aws.String("String"), StringValue: aws.String(topic)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing to sns topic %s: %w", p.topicARN, err)
	}

	return nil
}
