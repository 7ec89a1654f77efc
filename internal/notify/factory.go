package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
)

// Publisher kinds accepted in the notify.publisher setting.
const (
	KindBroker = "broker"
	KindNATS   = "nats"
	KindRedis  = "redis"
	KindSNS    = "sns"
	KindNone   = "none"
)

// Static errors for err113 compliance.
var (
	ErrUnknownPublisher = errors.New("unknown notification publisher")
	ErrMissingSetting   = errors.New("missing notification setting")
)

// NewPublisher builds the configured publisher. Every kind except none also
// delivers to broker, so in-process streams keep working. The returned
// function releases the connections held by the publisher.
func NewPublisher(ctx context.Context, settings config.NotifySettings, broker *Broker) (Publisher, func(), error) {
	noop := func() {}

	switch settings.Publisher {
	case "", KindBroker:
		return broker, noop, nil
	case KindNone:
		return Discard, noop, nil
	case KindNATS:
		if settings.NATSURL == "" {
			return nil, nil, fmt.Errorf("%w: notify.nats_url", ErrMissingSetting)
		}

		conn, err := nats.Connect(settings.NATSURL, nats.Name("zac-notify"))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to nats: %w", err)
		}

		return Fanout{broker, NewNATSPublisher(conn)}, conn.Close, nil
	case KindRedis:
		if settings.RedisAddr == "" {
			return nil, nil, fmt.Errorf("%w: notify.redis_addr", ErrMissingSetting)
		}

		client := redis.NewClient(&redis.Options{Addr: settings.RedisAddr})

		return Fanout{broker, NewRedisPublisher(client)}, func() { _ = client.Close() }, nil
	case KindSNS:
		client, err := newSNSClient(ctx, settings)
		if err != nil {
			return nil, nil, err
		}

		return Fanout{broker, NewSNSPublisher(client, settings.SNSTopicARN)}, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPublisher, settings.Publisher)
	}
}

// newSNSClient loads the default AWS configuration. A custom endpoint, for
// example a local emulator, is used with static test credentials.
func newSNSClient(ctx context.Context, settings config.NotifySettings) (*sns.Client, error) {
	if settings.SNSTopicARN == "" {
		return nil, fmt.Errorf("%w: notify.sns_topic_arn", ErrMissingSetting)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if settings.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(settings.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if settings.AWSEndpoint == "" {
			return
		}

		o.BaseEndpoint = aws.String(settings.AWSEndpoint)
		if o.Region == "" {
			o.Region = "us-east-1"
		}

		o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
	}), nil
}
