// Package http is the transport shared by all ZDS API clients. It joins
// request paths onto a service base URL, attaches the default ZDS headers
// and a bearer token, and hands every exchange to a Recorder.
package http

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

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrInvalidPath    = errors.New("invalid request path")
)

// TokenProvider supplies the bearer token for a request. An empty token
// means the request is sent without an Authorization header.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// Logger is the structured logger used for debug output.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Request describes one call.
type Request struct {
	Method string
	// Path is resolved against the base URL. Absolute URLs are used as is.
	Path  string
	Query url.Values
	// Body is sent as is, typically encoded JSON.
	Body    []byte
	Headers map[string]string
	// Token overrides the client's token provider for this call.
	Token TokenProvider
}

// Response is a fully read HTTP response. Non-2xx responses are returned
// without error; interpreting the status is up to the caller.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client performs requests against one base URL.
type Client struct {
	baseURL        *url.URL
	httpClient     *retryablehttp.Client
	tokenProvider  TokenProvider
	logger         Logger
	debug          bool
	userAgent      string
	defaultHeaders map[string]string
	recorder       Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug logs every request and response at debug level.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig enables retries of connection failures. Responses are
// never retried, whatever their status.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithTimeout sets a per-attempt timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithHeader sets a default header. An empty value removes a default.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		if value == "" {
			delete(c.defaultHeaders, name)

			return
		}

		c.defaultHeaders[name] = value
	}
}

// WithRecorder sets the recorder that receives every exchange.
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient = httpClient
	}
}

// NewClient creates a client for baseURL. tokenProvider may be nil.
func NewClient(baseURL string, tokenProvider TokenProvider, opts ...Option) *Client {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		parsed = &url.URL{}
	}

	// Relative references only keep the last segment of a base path that
	// does not end in a slash.
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.CheckRetry = retryConnectionErrors
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout

	client := &Client{
		baseURL:       parsed,
		httpClient:    retryClient,
		tokenProvider: tokenProvider,
		defaultHeaders: map[string]string{
			"Accept":       constants.ContentTypeJSON,
			"Content-Type": constants.ContentTypeJSON,
			"Accept-Crs":   constants.AcceptCrs,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// URL resolves path against the base URL.
func (c *Client) URL(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidPath, path, err)
	}

	target := ref
	if !ref.IsAbs() {
		if c.baseURL.Host == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.baseURL.String())
		}

		target = c.baseURL.ResolveReference(ref)
	}

	if len(query) > 0 {
		values := target.Query()

		for key, vals := range query {
			for _, val := range vals {
				values.Add(key, val)
			}
		}

		target.RawQuery = values.Encode()
	}

	return target.String(), nil
}

// Do executes the request.
//
//nolint:funlen
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL, err := c.URL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body := req.Body

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for name, value := range c.defaultHeaders {
		httpReq.Header.Set(name, value)
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	err = c.authorize(ctx, req, httpReq)
	if err != nil {
		return nil, err
	}

	exchange := &Exchange{
		Method:         req.Method,
		URL:            fullURL,
		RequestHeaders: httpReq.Header.Clone(),
		RequestBody:    body,
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    fullURL,
		})
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	exchange.Duration = time.Since(start)

	if err != nil {
		exchange.Err = err
		c.record(ctx, exchange)

		return nil, fmt.Errorf("executing request %s %s: %w", req.Method, fullURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		exchange.StatusCode = resp.StatusCode
		exchange.ResponseHeaders = resp.Header
		exchange.Err = err
		c.record(ctx, exchange)

		return nil, fmt.Errorf("reading response body: %w", err)
	}

	exchange.StatusCode = resp.StatusCode
	exchange.ResponseHeaders = resp.Header
	exchange.ResponseBody = respBody
	c.record(ctx, exchange)

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"method":   req.Method,
			"url":      fullURL,
			"status":   resp.StatusCode,
			"duration": exchange.Duration.String(),
		})
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

func (c *Client) authorize(ctx context.Context, req *Request, httpReq *retryablehttp.Request) error {
	if httpReq.Header.Get("Authorization") != "" {
		return nil
	}

	provider := req.Token
	if provider == nil {
		provider = c.tokenProvider
	}

	if provider == nil {
		return nil
	}

	token, err := provider.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("getting auth token: %w", err)
	}

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return nil
}

func (c *Client) record(ctx context.Context, exchange *Exchange) {
	if c.recorder == nil {
		return
	}

	c.recorder.Record(ctx, exchange)
}

// retryConnectionErrors retries transport failures only. A response, any
// response, ends the attempt loop.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err == nil {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
