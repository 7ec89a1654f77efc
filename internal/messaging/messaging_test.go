package messaging_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maykinmedia/gemma-zaken-demo/internal/messaging"
)

var errRefused = errors.New("refused")

// fakeBus matches subjects the way NATS does.
type fakeBus struct {
	mu            sync.Mutex
	subscriptions map[int]fakeSubscription
	nextID        int
	published     []string
	subscribeErr  error
}

type fakeSubscription struct {
	pattern string
	handler func(string, []byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{subscriptions: make(map[int]fakeSubscription)}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	b.published = append(b.published, subject)

	var handlers []func(string, []byte)

	for _, sub := range b.subscriptions {
		if subjectMatches(sub.pattern, subject) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(subject, data)
	}

	return nil
}

func (b *fakeBus) Subscribe(subject string, handler func(string, []byte)) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}

	b.nextID++
	id := b.nextID
	b.subscriptions[id] = fakeSubscription{pattern: subject, handler: handler}

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subscriptions, id)

		return nil
	}, nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscriptions)
}

func subjectMatches(pattern, subject string) bool {
	patternWords := strings.Split(pattern, ".")
	subjectWords := strings.Split(subject, ".")

	for i, word := range patternWords {
		if word == ">" {
			return len(subjectWords) > i
		}

		if i >= len(subjectWords) || (word != "*" && word != subjectWords[i]) {
			return false
		}
	}

	return len(patternWords) == len(subjectWords)
}

func TestMatchBindingKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key        string
		routingKey string
		expected   bool
	}{
		{"#", "foo", true},
		{"#", "foo.bar.baz", true},
		{"foo.bar", "foo.bar", true},
		{"foo.bar", "foo.baz", false},
		{"foo.*", "foo.bar", true},
		{"foo.*", "foo", false},
		{"foo.*", "foo.bar.baz", false},
		{"foo.#", "foo", true},
		{"foo.#", "foo.bar.baz", true},
		{"foo.#.bar", "foo.bar", true},
		{"foo.#.bar", "foo.x.y.bar", true},
		{"foo.#.bar", "foo.x.y", false},
		{"*.bar.*", "x.bar.y", true},
		{"*.bar.*", "bar.y", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, messaging.MatchBindingKey(tt.key, tt.routingKey), "%s ~ %s", tt.key, tt.routingKey)
	}
}

func TestEmit(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()

	require.NoError(t, messaging.Emit(bus, "zaken", "foo.bar", []byte("test message")))
	assert.Equal(t, []string{"zaken.foo.bar"}, bus.published)

	require.ErrorIs(t, messaging.Emit(bus, "zaken", "", nil), messaging.ErrEmptyRoutingKey)
	require.ErrorIs(t, messaging.Emit(bus, "", "foo", nil), messaging.ErrEmptyExchange)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestConsumer_Run(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()
	consumer := messaging.NewConsumer(bus, "zaken", "foo.*", "bar.#")
	assert.Equal(t, []string{"foo.*", "bar.#"}, consumer.Filters())

	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu         sync.Mutex
		deliveries []messaging.Delivery
	)

	done := make(chan error, 1)

	go func() {
		done <- consumer.Run(ctx, func(delivery messaging.Delivery) {
			mu.Lock()
			defer mu.Unlock()

			deliveries = append(deliveries, delivery)
		})
	}()

	require.Eventually(t, func() bool { return bus.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, messaging.Emit(bus, "zaken", "foo.bar", []byte("een")))
	require.NoError(t, messaging.Emit(bus, "zaken", "foo.bar.baz", []byte("genegeerd")))
	require.NoError(t, messaging.Emit(bus, "zaken", "bar.x.y", []byte("twee")))
	require.NoError(t, messaging.Emit(bus, "documenten", "foo.bar", []byte("ander kanaal")))

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, bus.count())

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, deliveries, 2)
	assert.Equal(t, "foo.bar", deliveries[0].RoutingKey)
	assert.Equal(t, "zaken", deliveries[0].Exchange)
	assert.Equal(t, []byte("een"), deliveries[0].Body)
	assert.Equal(t, "bar.x.y", deliveries[1].RoutingKey)
}

func TestConsumer_OverlappingFiltersDeliverOnce(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()
	consumer := messaging.NewConsumer(bus, "zaken", "foo.*", "foo.#", "#")

	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu         sync.Mutex
		deliveries []string
	)

	done := make(chan error, 1)

	go func() {
		done <- consumer.Run(ctx, func(delivery messaging.Delivery) {
			mu.Lock()
			defer mu.Unlock()

			deliveries = append(deliveries, delivery.RoutingKey)
		})
	}()

	require.Eventually(t, func() bool { return bus.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, messaging.Emit(bus, "zaken", "foo.bar", []byte("een")))
	require.NoError(t, messaging.Emit(bus, "zaken", "baz", []byte("twee")))

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"foo.bar", "baz"}, deliveries)
}

func TestConsumer_DefaultsToEverything(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"#"}, messaging.NewConsumer(newFakeBus(), "zaken").Filters())
}

func TestConsumer_SubscribeError(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()
	bus.subscribeErr = errRefused

	err := messaging.NewConsumer(bus, "zaken").Run(context.Background(), func(messaging.Delivery) {})
	require.ErrorIs(t, err, errRefused)

	err = messaging.NewConsumer(bus, "").Run(context.Background(), func(messaging.Delivery) {})
	require.ErrorIs(t, err, messaging.ErrEmptyExchange)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)

	assert.Equal(t, `[2024-05-01 10:30:15] Verstuurd met kenmerk "foo.bar": hallo`,
		messaging.FormatSent(at, "foo.bar", []byte("hallo")))
	assert.Equal(t, `[2024-05-01 10:30:15] Ontvangen met kenmerk "foo.bar": hallo`,
		messaging.FormatReceived(messaging.Delivery{RoutingKey: "foo.bar", Body: []byte("hallo"), Received: at}))
}
