package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/notify"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds/zdstest"
)

var errBoom = errors.New("boom")

type fixture struct {
	zrc      *zdstest.Server
	ztc      *zdstest.Server
	drc      *zdstest.Server
	registry *registry.Registry
	zaakURL  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		zrc: zdstest.NewServer([]zdstest.Resource{
			{Name: "zaak", Collection: "zaken"},
			{Name: "status", Collection: "statussen"},
			{Name: "zaakinformatieobject", Collection: "zaakinformatieobjecten"},
		}),
		ztc: zdstest.NewServer([]zdstest.Resource{
			{Name: "zaaktype", Collection: "zaaktypen"},
			{Name: "statustype", Collection: "statustypen"},
			{Name: "informatieobjecttype", Collection: "informatieobjecttypen"},
		}),
		drc: zdstest.NewServer([]zdstest.Resource{
			{Name: "enkelvoudiginformatieobject", Collection: "enkelvoudiginformatieobjecten"},
		}),
	}

	t.Cleanup(f.zrc.Close)
	t.Cleanup(f.ztc.Close)
	t.Cleanup(f.drc.Close)

	f.registry = registry.New(&config.Settings{
		Services: map[string]config.ServiceSettings{
			config.ServiceZRC: {Endpoint: config.Endpoint{BaseURL: f.zrc.BaseURL()}},
			config.ServiceZTC: {Endpoint: config.Endpoint{BaseURL: f.ztc.BaseURL()}},
			config.ServiceDRC: {Endpoint: config.Endpoint{BaseURL: f.drc.BaseURL()}},
		},
	})

	zaakTypeURL := f.ztc.Seed("zaaktypen", map[string]interface{}{
		"onderwerp":            "Melding openbare ruimte",
		"aanleiding":           "Melding",
		"handelingBehandelaar": "Behandelen",
		"handelingInitiator":   "Melden",
		"doorlooptijd":         "P14D",
	})

	f.zaakURL = f.zrc.Seed("zaken", map[string]interface{}{
		"identificatie": "ZAAK-2024-0000000001",
		"zaaktype":      zaakTypeURL,
	})

	return f
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestHandler_Compose(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := notify.NewHandler(f.registry, notify.Discard, notify.WithClock(fixedClock))
	ctx := context.Background()

	t.Run("zaak created", func(t *testing.T) {
		t.Parallel()

		msg, err := handler.Compose(ctx, notify.Notification{
			Kanaal: "zaken", HoofdObject: f.zaakURL, Resource: "zaak", ResourceURL: f.zaakURL, Actie: "create",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, "Zaak <strong>Melding openbare ruimte</strong> aangemaakt.", msg.Title)
		assert.Equal(t, "Naar aanleiding van uw <strong>melding</strong> gaat de behandelaar deze zaak "+
			"<strong>behandelen</strong>. U kunt <strong>binnen 14 dagen</strong> een opvolging verwachten. "+
			"Bedankt voor het <strong>melden</strong>.", msg.Body)
		assert.Equal(t, "ZAAK-2024-0000000001", msg.Reference)
		assert.Equal(t, "/api/zaken/00000000-0000-4000-8000-000000000001", msg.URL)
		assert.Equal(t, "2024-05-01 10:30", msg.Date)
	})

	t.Run("status changed", func(t *testing.T) {
		t.Parallel()

		statusTypeURL := f.ztc.Seed("statustypen", map[string]interface{}{
			"omschrijving": "In behandeling",
			"statustekst":  "Uw melding wordt behandeld.",
		})
		statusURL := f.zrc.Seed("statussen", map[string]interface{}{
			"zaak":              f.zaakURL,
			"statustype":        statusTypeURL,
			"statustoelichting": "Opgepakt door de buitendienst",
		})

		msg, err := handler.Compose(ctx, notify.Notification{
			Kanaal: "zaken", HoofdObject: f.zaakURL, Resource: "status", ResourceURL: statusURL, Actie: "create",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, "Zaak Melding openbare ruimte gewijzigd.", msg.Title)
		assert.Equal(t, "De status van uw zaak is gewijzigd naar: In behandeling. Uw melding wordt behandeld. "+
			"Toelichting: Opgepakt door de buitendienst", msg.Body)
	})

	t.Run("status not communicated", func(t *testing.T) {
		t.Parallel()

		statusTypeURL := f.ztc.Seed("statustypen", map[string]interface{}{"omschrijving": "Intern", "informeren": false})
		statusURL := f.zrc.Seed("statussen", map[string]interface{}{"zaak": f.zaakURL, "statustype": statusTypeURL})

		msg, err := handler.Compose(ctx, notify.Notification{
			Kanaal: "zaken", HoofdObject: f.zaakURL, Resource: "status", ResourceURL: statusURL, Actie: "create",
		})
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("document added", func(t *testing.T) {
		t.Parallel()

		typeURL := f.ztc.Seed("informatieobjecttypen", map[string]interface{}{"omschrijving": "Foto"})
		documentURL := f.drc.Seed("enkelvoudiginformatieobjecten", map[string]interface{}{
			"titel":                "Losliggende stoeptegel",
			"informatieobjecttype": typeURL,
		})
		relationURL := f.zrc.Seed("zaakinformatieobjecten", map[string]interface{}{
			"zaak":             f.zaakURL,
			"informatieobject": documentURL,
		})

		msg, err := handler.Compose(ctx, notify.Notification{
			Kanaal: "zaken", HoofdObject: f.zaakURL, Resource: "zaakinformatieobject",
			ResourceURL: relationURL, Actie: "create",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, "Zaak Melding openbare ruimte gewijzigd.", msg.Title)
		assert.Equal(t, `Er is een Foto toegevoegd aan uw zaak met de titel "Losliggende stoeptegel".`, msg.Body)
	})

	t.Run("missing zaak", func(t *testing.T) {
		t.Parallel()

		_, err := handler.Compose(ctx, notify.Notification{
			Kanaal: "zaken", HoofdObject: f.zrc.BaseURL() + "zaken/onbekend", Resource: "zaak", Actie: "create",
		})
		require.Error(t, err)
	})
}

func TestHandler_ComposeGeneric(t *testing.T) {
	t.Parallel()

	handler := notify.NewHandler(nil, notify.Discard, notify.WithClock(fixedClock))
	ctx := context.Background()

	tests := []struct {
		name         string
		notification notify.Notification
		expected     notify.Message
	}{
		{
			name: "document resource",
			notification: notify.Notification{
				Kanaal:      "documenten",
				HoofdObject: "http://drc/api/v1/enkelvoudiginformatieobjecten/1234567890abcdef",
				Resource:    "gebruiksrechten",
				Actie:       "create",
			},
			expected: notify.Message{
				Title:     "Document gewijzigd",
				Body:      "Gebruiksrechten aangemaakt bij de document.",
				Reference: "DOCUMENT-1234567890",
				URL:       "http://drc/api/v1/enkelvoudiginformatieobjecten/1234567890abcdef",
				Date:      "2024-05-01 10:30",
			},
		},
		{
			name: "main resource destroyed",
			notification: notify.Notification{
				Kanaal:      "zaken",
				HoofdObject: "http://zrc/api/v1/zaken/abc",
				Resource:    "zaak",
				ResourceURL: "http://zrc/api/v1/zaken/abc",
				Actie:       "destroy",
			},
			expected: notify.Message{
				Title:     "Zaak verwijderd",
				Reference: "ZAAK-abc",
				URL:       "http://zrc/api/v1/zaken/abc",
				Date:      "2024-05-01 10:30",
			},
		},
		{
			name: "unknown action and channel",
			notification: notify.Notification{
				Kanaal:   "besluiten",
				Resource: "document",
				Actie:    "archive",
			},
			expected: notify.Message{
				Title:     `Besluiten "heeft archive" uitgevoerd`,
				Reference: "BESLUITEN-???",
				Date:      "2024-05-01 10:30",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := handler.Compose(ctx, tt.notification)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *msg)
		})
	}
}

func TestHandler_HandlePublishesToEveryone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	broker := notify.NewBroker()

	messages, cancel := broker.Subscribe(notify.TopicFor(""))
	defer cancel()

	handler := notify.NewHandler(f.registry, broker)

	msg, err := handler.Handle(context.Background(), notify.Notification{
		Kanaal: "zaken", HoofdObject: f.zaakURL, Resource: "zaak", Actie: "create",
	})
	require.NoError(t, err)

	select {
	case envelope := <-messages:
		assert.Equal(t, "notifications_everyone", envelope.Topic)
		assert.Equal(t, *msg, envelope.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestHandler_HandleConfiguredTopic(t *testing.T) {
	t.Parallel()

	var topics []string

	recorder := notify.PublisherFunc(func(_ context.Context, topic string, _ *notify.Message) error {
		topics = append(topics, topic)

		return nil
	})

	generic := notify.Notification{Kanaal: "zaken", Resource: "rol", Actie: "create"}

	_, err := notify.NewHandler(nil, recorder, notify.WithTopic("zaken_meldingen")).Handle(context.Background(), generic)
	require.NoError(t, err)

	_, err = notify.NewHandler(nil, recorder, notify.WithTopic("")).Handle(context.Background(), generic)
	require.NoError(t, err)

	assert.Equal(t, []string{"zaken_meldingen", notify.TopicFor("")}, topics)
}

func TestHandler_HandlePublishError(t *testing.T) {
	t.Parallel()

	failing := notify.PublisherFunc(func(context.Context, string, *notify.Message) error { return errBoom })
	handler := notify.NewHandler(nil, failing)

	_, err := handler.Handle(context.Background(), notify.Notification{Kanaal: "zaken", Resource: "rol", Actie: "create"})
	require.ErrorIs(t, err, errBoom)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	n, err := notify.Decode([]byte(`{
		"kanaal": "zaken",
		"hoofd_object": "http://zrc/zaken/1",
		"resource": "status",
		"resource_url": "http://zrc/statussen/2",
		"actie": "create",
		"aanmaakdatum": "2024-05-01T10:30:00Z",
		"kenmerken": {"bronorganisatie": "517439943"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "http://zrc/zaken/1", n.HoofdObject)
	assert.Equal(t, "http://zrc/statussen/2", n.ResourceURL)
	assert.Equal(t, "517439943", n.Kenmerken["bronorganisatie"])

	n, err = notify.Decode([]byte(`{"kanaal": "zaken", "hoofdObject": "h", "resource": "zaak", "resourceUrl": "r", "actie": "update"}`))
	require.NoError(t, err)
	assert.Equal(t, "h", n.HoofdObject)
	assert.Equal(t, "r", n.ResourceURL)

	_, err = notify.Decode([]byte(`{"kanaal": "zaken"}`))
	require.ErrorIs(t, err, notify.ErrInvalidNotification)
	assert.Contains(t, err.Error(), "hoofdObject, resource, actie")

	_, err = notify.Decode([]byte(`not json`))
	require.ErrorIs(t, err, notify.ErrInvalidNotification)
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "notifications_everyone", notify.TopicFor(""))
	assert.Equal(t, "notifications_jdoe", notify.TopicFor("jdoe"))
}

func TestBroker(t *testing.T) {
	t.Parallel()

	broker := notify.NewBroker()
	ctx := context.Background()

	first, cancelFirst := broker.Subscribe("a")
	second, cancelSecond := broker.Subscribe("a", "b")

	defer cancelSecond()

	require.NoError(t, broker.Publish(ctx, "a", &notify.Message{Title: "een"}))
	require.NoError(t, broker.Publish(ctx, "b", &notify.Message{Title: "twee"}))

	assert.Equal(t, "een", (<-first).Message.Title)
	assert.Equal(t, "een", (<-second).Message.Title)
	assert.Equal(t, "twee", (<-second).Message.Title)

	cancelFirst()
	cancelFirst()

	_, open := <-first
	assert.False(t, open)

	require.NoError(t, broker.Publish(ctx, "a", &notify.Message{Title: "drie"}))
	assert.Equal(t, "drie", (<-second).Message.Title)
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	broker := notify.NewBroker()

	_, cancel := broker.Subscribe("a")
	defer cancel()

	done := make(chan struct{})

	go func() {
		for range 100 {
			_ = broker.Publish(context.Background(), "a", &notify.Message{})
		}

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestFanout(t *testing.T) {
	t.Parallel()

	var delivered []string

	record := func(name string, err error) notify.Publisher {
		return notify.PublisherFunc(func(_ context.Context, topic string, _ *notify.Message) error {
			delivered = append(delivered, name+":"+topic)

			return err
		})
	}

	err := notify.Fanout{record("a", nil), record("b", errBoom), record("c", nil)}.
		Publish(context.Background(), "t", &notify.Message{})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"a:t", "b:t", "c:t"}, delivered)
}

type fakeSNS struct {
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)

	return &sns.PublishOutput{}, nil
}

func TestSNSPublisher(t *testing.T) {
	t.Parallel()

	client := &fakeSNS{}
	publisher := notify.NewSNSPublisher(client, "arn:aws:sns:eu-west-1:000000000000:zac")

	err := publisher.Publish(context.Background(), "notifications_everyone", &notify.Message{Title: "Zaak aangemaakt"})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:eu-west-1:000000000000:zac", *input.TopicArn)
	assert.JSONEq(t, `{"title":"Zaak aangemaakt","date":"","body":"","reference":"","url":""}`, *input.Message)
	assert.Equal(t, "notifications_everyone", *input.MessageAttributes["topic"].StringValue)
	assert.Equal(t, "application/json", *input.MessageAttributes["content-type"].StringValue)
}

func TestNewPublisher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broker := notify.NewBroker()

	publisher, closeFn, err := notify.NewPublisher(ctx, config.NotifySettings{Publisher: "broker"}, broker)
	require.NoError(t, err)
	assert.Same(t, broker, publisher)
	closeFn()

	publisher, _, err = notify.NewPublisher(ctx, config.NotifySettings{Publisher: "none"}, broker)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(ctx, "x", &notify.Message{}))

	_, _, err = notify.NewPublisher(ctx, config.NotifySettings{Publisher: "nats"}, broker)
	require.ErrorIs(t, err, notify.ErrMissingSetting)

	_, _, err = notify.NewPublisher(ctx, config.NotifySettings{Publisher: "sns"}, broker)
	require.ErrorIs(t, err, notify.ErrMissingSetting)

	_, _, err = notify.NewPublisher(ctx, config.NotifySettings{Publisher: "amqp"}, broker)
	require.ErrorIs(t, err, notify.ErrUnknownPublisher)

	publisher, closeFn, err = notify.NewPublisher(ctx, config.NotifySettings{
		Publisher: "redis", RedisAddr: "127.0.0.1:6379",
	}, broker)
	require.NoError(t, err)
	assert.IsType(t, notify.Fanout{}, publisher)
	closeFn()
}
