package schema_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maykinmedia/gemma-zaken-demo/internal/cache"
	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
)

func TestSchemaURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"http://localhost:8000/api/v1/":   "http://localhost:8000/api/v1/schema/openapi.yaml",
		"http://localhost:8000/api/v1":    "http://localhost:8000/api/v1/schema/openapi.yaml",
		"https://zaken.example.nl":        "https://zaken.example.nl/schema/openapi.yaml",
		"https://zaken.example.nl/zrc/v1": "https://zaken.example.nl/zrc/v1/schema/openapi.yaml",
	}

	for base, expected := range tests {
		got, err := schema.SchemaURL(base)
		require.NoError(t, err)
		assert.Equal(t, expected, got, base)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	document, err := os.ReadFile("testdata/zrc-openapi.yaml")
	require.NoError(t, err)

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/schema/openapi.yaml", request.URL.Path)
		_, _ = writer.Write(document)
	}))
	defer server.Close()

	memory := cache.NewMemoryCache(4)
	fetcher := schema.NewFetcher(schema.WithCache(memory, 0))

	doc, err := fetcher.Fetch(context.Background(), server.URL+"/api/v1/")
	require.NoError(t, err)
	assert.True(t, doc.HasOperation("zaak_read"))

	again, err := schema.NewFetcher(schema.WithCache(memory, 0)).Fetch(context.Background(), server.URL+"/api/v1")
	require.NoError(t, err)
	assert.True(t, again.HasOperation("zaak_read"))

	assert.Equal(t, int32(1), hits.Load(), "second fetch is served from the cache")
}

func TestFetcher_NotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := schema.NewFetcher().Fetch(context.Background(), server.URL+"/api/v1/")
	require.ErrorIs(t, err, schema.ErrFetchFailed)
}

func TestFetcher_DiscardsCorruptCacheEntry(t *testing.T) {
	t.Parallel()

	document, err := os.ReadFile("testdata/ztc-swagger.yaml")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write(document)
	}))
	defer server.Close()

	memory := cache.NewMemoryCache(4)
	schemaURL, err := schema.SchemaURL(server.URL + "/api/v1/")
	require.NoError(t, err)
	require.NoError(t, memory.Set(context.Background(), schemaURL, &cache.Entry{Data: []byte("not: [valid")}))

	doc, err := schema.NewFetcher(schema.WithCache(memory, 0), schema.WithHTTPClient(http.DefaultClient)).
		Fetch(context.Background(), server.URL+"/api/v1/")
	require.NoError(t, err)
	assert.True(t, doc.HasOperation("catalogus_list"))

	entry, err := memory.Get(context.Background(), schemaURL)
	require.NoError(t, err)
	assert.Equal(t, document, entry.Data)
}
