package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maykinmedia/gemma-zaken-demo/internal/auth"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	"github.com/maykinmedia/gemma-zaken-demo/internal/messaging"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds/zdstest"
)

func TestParseParams(t *testing.T) {
	t.Parallel()

	params, err := parseParams([]string{"uuid=abc", "zaak_uuid=def=ghi", "empty="})
	require.NoError(t, err)
	assert.Equal(t, zds.Params{"uuid": "abc", "zaak_uuid": "def=ghi", "empty": ""}, params)

	_, err = parseParams([]string{"uuid"})
	require.ErrorIs(t, err, constants.ErrInvalidParam)

	_, err = parseParams([]string{"=value"})
	require.ErrorIs(t, err, constants.ErrInvalidParam)
}

func TestApplyQuery(t *testing.T) {
	t.Parallel()

	objects := []zds.Object{
		{"url": "http://zrc/zaken/1", "identificatie": "ZAAK-1"},
		{"url": "http://zrc/zaken/2", "identificatie": "ZAAK-2"},
	}

	result, err := applyQuery("[].identificatie", objects)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"ZAAK-1", "ZAAK-2"}, result)

	unchanged, err := applyQuery("", objects)
	require.NoError(t, err)
	assert.Equal(t, objects, unchanged)

	missing, err := applyQuery("[0].omschrijving", objects)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = applyQuery("[", objects)
	require.Error(t, err)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestRender(t *testing.T) {
	t.Parallel()

	value := map[string]interface{}{"name": "zrc", "count": 2}

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, render(&out, OutputFormatJSON, value, nil))
		assert.JSONEq(t, `{"name":"zrc","count":2}`, out.String())
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, render(&out, OutputFormatYAML, value, nil))
		assert.Contains(t, out.String(), "name: zrc")
		assert.Contains(t, out.String(), "count: 2")
	})

	t.Run("property table", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, render(&out, OutputFormatTable, value, nil))
		assert.Contains(t, out.String(), "zrc")
		assert.Contains(t, out.String(), "count")
		assert.Less(t, strings.Index(out.String(), "count"), strings.Index(out.String(), "name"))
	})

	t.Run("list table", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		require.NoError(t, render(&out, OutputFormatTable, []string{"a", "b"}, nil))
		assert.Contains(t, out.String(), "a")
		assert.Contains(t, out.String(), "2")
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		err := render(&out, "xml", value, nil)
		require.ErrorIs(t, err, constants.ErrInvalidOutputFormat)
	})
}

func TestCell(t *testing.T) {
	t.Parallel()

	assert.Empty(t, cell(nil))
	assert.Equal(t, "text", cell("text"))
	assert.Equal(t, "3", cell(float64(3)))
	assert.Equal(t, `["a"]`, cell([]interface{}{"a"}))
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestCall(t *testing.T) {
	t.Parallel()

	server := zdstest.NewServer([]zdstest.Resource{{Name: "zaak", Collection: "zaken"}})
	t.Cleanup(server.Close)

	client := zds.New("zrc", server.BaseURL(), auth.Credentials{})
	ctx := context.Background()

	created, err := call(ctx, client, callRequest{
		Resource: "zaak",
		Action:   zds.ActionCreate,
		Data:     map[string]interface{}{"bronorganisatie": "517439943", "omschrijving": "Melding"},
	})
	require.NoError(t, err)

	createdURL := created.(zds.Object).String("url")
	require.NotEmpty(t, createdURL)

	uuid := zds.UUIDFromURL(createdURL)

	read, err := call(ctx, client, callRequest{
		Resource: "zaak",
		Action:   zds.ActionRead,
		Params:   zds.Params{"uuid": uuid},
	})
	require.NoError(t, err)
	assert.Equal(t, "Melding", read.(zds.Object).String("omschrijving"))

	patched, err := call(ctx, client, callRequest{
		Resource: "zaak",
		Action:   zds.ActionPartialUpdate,
		Params:   zds.Params{"uuid": uuid},
		Data:     map[string]interface{}{"omschrijving": "Gewijzigd"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gewijzigd", patched.(zds.Object).String("omschrijving"))

	listed, err := call(ctx, client, callRequest{Resource: "zaak", Action: zds.ActionList})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	indexed, err := call(ctx, client, callRequest{Resource: "zaak", Action: zds.ActionList, IndexBy: "url"})
	require.NoError(t, err)
	require.IsType(t, map[string]zds.Object{}, indexed)
	assert.Equal(t, "Gewijzigd", indexed.(map[string]zds.Object)[createdURL].String("omschrijving"))

	deleted, err := call(ctx, client, callRequest{
		Resource: "zaak",
		Action:   zds.ActionDelete,
		Params:   zds.Params{"uuid": uuid},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"deleted": true}, deleted)

	_, err = call(ctx, client, callRequest{Resource: "zaak", Action: zds.ActionCreate})
	require.ErrorIs(t, err, constants.ErrDataRequired)

	_, err = call(ctx, client, callRequest{Resource: "zaak", Action: "archive"})
	require.ErrorIs(t, err, constants.ErrUnknownAction)
}

func TestReadData(t *testing.T) {
	t.Parallel()

	data, err := readData(`{"omschrijving": "Melding"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"omschrijving": "Melding"}, data)

	_, err = readData(`{`)
	require.Error(t, err)

	_, err = readData("@does-not-exist.json")
	require.Error(t, err)
}

func TestSchemaOperations(t *testing.T) {
	t.Parallel()

	server := zdstest.NewServer([]zdstest.Resource{{Name: "zaak", Collection: "zaken"}})
	t.Cleanup(server.Close)

	client := zds.New("zrc", server.BaseURL(), auth.Credentials{})

	doc, err := client.Schema(context.Background())
	require.NoError(t, err)

	operations := listOperations(doc)
	require.NotEmpty(t, operations)

	ids := make([]string, 0, len(operations))
	for _, operation := range operations {
		ids = append(ids, operation.Operation)
	}

	assert.Contains(t, ids, "zaak_list")
	assert.Contains(t, ids, "zaak_read")

	resolved, err := resolveOperation(doc, "zaak_read", map[string]string{"uuid": "1234"})
	require.NoError(t, err)
	assert.Equal(t, zdstest.BasePath+"/zaken/1234", resolved.Path)

	_, err = resolveOperation(doc, "zaak_read", nil)
	require.Error(t, err)

	_, err = resolveOperation(doc, "besluit_read", nil)
	require.Error(t, err)
}

// fakeBus delivers synchronously to subscriptions with NATS subject
// matching.
type fakeBus struct {
	mu         sync.Mutex
	handlers   map[string]func(subject string, data []byte)
	subscribed chan struct{}
	published  []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers:   map[string]func(subject string, data []byte){},
		subscribed: make(chan struct{}, 1),
	}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	b.published = append(b.published, subject)

	var matched []func(subject string, data []byte)

	for pattern, handler := range b.handlers {
		if subjectMatches(pattern, subject) {
			matched = append(matched, handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range matched {
		handler(subject, data)
	}

	return nil
}

func (b *fakeBus) Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error) {
	b.mu.Lock()
	b.handlers[subject] = handler
	b.mu.Unlock()

	select {
	case b.subscribed <- struct{}{}:
	default:
	}

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.handlers, subject)

		return nil
	}, nil
}

func subjectMatches(pattern, subject string) bool {
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, token := range patternTokens {
		if token == ">" {
			return len(subjectTokens) > i
		}

		if i >= len(subjectTokens) || (token != "*" && token != subjectTokens[i]) {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}

func TestEmit(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	var out bytes.Buffer

	err := emit(bus, "zaken", "foo.bar", "Hello World!", &out, func() time.Time { return at })
	require.NoError(t, err)
	assert.Equal(t, []string{"zaken.foo.bar"}, bus.published)
	assert.Equal(t, "[2026-10-19 09:30:00] Verstuurd met kenmerk \"foo.bar\": Hello World!\n", out.String())

	err = emit(bus, "zaken", "", "Hello", &out, time.Now)
	require.ErrorIs(t, err, messaging.ErrEmptyRoutingKey)
}

func TestConsume(t *testing.T) {
	t.Parallel()

	bus := newFakeBus()
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer

	done := make(chan error, 1)

	go func() {
		done <- consume(ctx, bus, "zaken", []string{"foo.#"}, &out)
	}()

	<-bus.subscribed

	require.NoError(t, bus.Publish("zaken.foo.bar", []byte("hello")))
	require.NoError(t, bus.Publish("zaken.other", []byte("ignored")))

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, out.String(), `met filters foo.#`)
	assert.Contains(t, out.String(), `Ontvangen met kenmerk "foo.bar": hello`)
	assert.NotContains(t, out.String(), "ignored")
}

func TestServerURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://localhost:8080", serverURL(":8080"))
	assert.Equal(t, "http://127.0.0.1:9000", serverURL("127.0.0.1:9000"))
	assert.Equal(t, "https://zac.example.com", serverURL("https://zac.example.com/"))
}

func TestFetchAndClearLog(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		cleared bool
		query   string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			query = r.URL.RawQuery

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"timestamp":"2026-10-19T09:30:00Z","service":"zrc",` +
				`"request":{"url":"http://zrc/api/v1/zaken","method":"GET"},"response":{"status":200}}]`))
		case http.MethodDelete:
			cleared = true

			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(server.Close)

	entries, err := fetchLog(context.Background(), server.Client(), server.URL, "zrc")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "zrc", entries[0].Service)
	assert.Equal(t, 200, entries[0].Response.Status)

	require.NoError(t, clearLog(context.Background(), server.Client(), server.URL))

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "service=zrc", query)
	assert.True(t, cleared)
}

func TestFetchLogUnexpectedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := fetchLog(context.Background(), server.Client(), server.URL, "")
	require.ErrorIs(t, err, constants.ErrUnexpectedStatus)
	assert.Equal(t, "-", statusCell(0))
}
