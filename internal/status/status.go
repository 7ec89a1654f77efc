// Package status reports whether the configured ZDS APIs can be reached
// and whether the configured credentials are accepted.
package status

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// State is the outcome of a reachability check.
type State string

// States, with their Dutch labels.
const (
	Working     State = "working"
	Unavailable State = "unavailable"
	Unreachable State = "unreachable"
)

var labels = map[State]string{
	Working:     "API beschikbaar",
	Unavailable: "API niet beschikbaar",
	Unreachable: "Server niet bereikbaar",
}

// Label returns the message shown for s.
func (s State) Label() string {
	return labels[s]
}

// Result is the status of one service.
type Result struct {
	Service string `json:"name"    yaml:"name"`
	URL     string `json:"url"     yaml:"url"`
	State   State  `json:"status"  yaml:"status"`
	Message string `json:"message" yaml:"message"`
}

// Target is a service to check.
type Target struct {
	Service string
	URL     string
}

// Checker performs unauthenticated GET requests with a short timeout.
type Checker struct {
	client  *http.Client
	timeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithTimeout overrides the per-check timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		c.timeout = timeout
	}
}

// NewChecker returns a checker with a 1 second timeout.
func NewChecker(opts ...Option) *Checker {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	checker := &Checker{
		client:  retryClient.StandardClient(),
		timeout: constants.HealthCheckTimeout,
	}

	for _, opt := range opts {
		opt(checker)
	}

	return checker
}

// Check reports the state of the API at url: working on 200, unavailable
// on any other status, unreachable when no response arrives in time.
func (c *Checker) Check(ctx context.Context, service, url string) Result {
	result := Result{Service: service, URL: url}

	status, _, err := c.get(ctx, url)
	switch {
	case err != nil:
		result.State = Unreachable
	case status == http.StatusOK:
		result.State = Working
	default:
		result.State = Unavailable
	}

	result.Message = result.State.Label()

	return result
}

// CheckAll checks every target concurrently. Results keep target order.
func (c *Checker) CheckAll(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))

	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = c.Check(ctx, target.Service, target.URL)
		}()
	}

	wg.Wait()

	return results
}

// get performs an unauthenticated GET bounded by the checker timeout.
func (c *Checker) get(ctx context.Context, url string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", constants.ContentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("requesting %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s: %w", url, err)
	}

	return resp.StatusCode, body, nil
}
