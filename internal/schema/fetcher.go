package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/maykinmedia/gemma-zaken-demo/internal/cache"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// ErrFetchFailed is returned when the schema endpoint does not answer 200.
var ErrFetchFailed = errors.New("fetching schema failed")

// Logger is the subset of the structured logger used by the fetcher.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Fetcher downloads service schemas, optionally through a shared cache.
type Fetcher struct {
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	logger     Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache stores downloaded documents in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
		f.ttl = ttl
	}
}

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a fetcher. Without options documents are not cached
// and failed downloads are retried a few times.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = constants.SchemaRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.HTTPClient.Timeout = constants.SchemaFetchTimeout

	fetcher := &Fetcher{
		httpClient: retryClient.StandardClient(),
		ttl:        constants.DefaultSchemaTTL,
	}

	for _, opt := range opts {
		opt(fetcher)
	}

	return fetcher
}

// SchemaURL returns the conventional schema location for a base URL.
func SchemaURL(baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}

	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	return base.ResolveReference(&url.URL{Path: constants.SchemaPath}).String(), nil
}

// Fetch returns the normalised document published under baseURL.
func (f *Fetcher) Fetch(ctx context.Context, baseURL string) (*Document, error) {
	schemaURL, err := SchemaURL(baseURL)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		entry, cacheErr := f.cache.Get(ctx, schemaURL)
		if cacheErr == nil {
			doc, parseErr := Parse(entry.Data)
			if parseErr == nil {
				f.debug("Schema cache hit", schemaURL)

				return doc, nil
			}

			f.warn("Discarding unreadable cached schema", schemaURL, parseErr)
			_ = f.cache.Delete(ctx, schemaURL)
		}
	}

	data, err := f.download(ctx, schemaURL)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", schemaURL, err)
	}

	if f.cache != nil {
		entry := &cache.Entry{Data: data}
		if f.ttl > 0 {
			entry.ExpiresAt = time.Now().Add(f.ttl)
		}

		setErr := f.cache.Set(ctx, schemaURL, entry)
		if setErr != nil {
			f.warn("Caching schema failed", schemaURL, setErr)
		}
	}

	return doc, nil
}

func (f *Fetcher) download(ctx context.Context, schemaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, schemaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating schema request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.oai.openapi, application/yaml, application/json")

	f.debug("Fetching schema", schemaURL)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, schemaURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchFailed, schemaURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", schemaURL, err)
	}

	return data, nil
}

func (f *Fetcher) debug(msg, schemaURL string) {
	if f.logger != nil {
		f.logger.Debug(msg, map[string]interface{}{"url": schemaURL})
	}
}

func (f *Fetcher) warn(msg, schemaURL string, err error) {
	if f.logger != nil {
		f.logger.Warn(msg, map[string]interface{}{"url": schemaURL, "error": err.Error()})
	}
}
