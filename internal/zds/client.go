// Package zds is the generic client for the ZDS family of APIs.
//
// A Client talks to one service (zrc, drc, ztc, ...) at one base URL. Calls
// name a resource and an action; the client resolves the operation
// {resource}_{action} in the service schema, performs the request with a
// freshly signed JWT and checks the status code expected for the action.
// Every exchange is written to the request/response log.
package zds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/goccy/go-json"

	"github.com/maykinmedia/gemma-zaken-demo/internal/apilog"
	"github.com/maykinmedia/gemma-zaken-demo/internal/auth"
	zdshttp "github.com/maykinmedia/gemma-zaken-demo/internal/http"
	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
)

// Actions understood by the ZDS operation naming convention.
const (
	ActionList          = "list"
	ActionRead          = "read"
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionPartialUpdate = "partial_update"
	ActionDelete        = "delete"
)

// Object is a decoded JSON resource.
type Object map[string]interface{}

// String returns the value of a string field, or "".
func (o Object) String(key string) string {
	value, _ := o[key].(string)

	return value
}

// Params are the path template variables of an operation.
type Params map[string]string

// OperationID returns the conventional operation id.
func OperationID(resource, action string) string {
	return resource + "_" + action
}

// ListResult is the result of a list call. Paginated collections fill
// Count, Next and Previous; plain arrays only fill Results.
type ListResult struct {
	Count     int      `json:"count"`
	Next      string   `json:"next"`
	Previous  string   `json:"previous"`
	Results   []Object `json:"results"`
	Paginated bool     `json:"-"`
}

type schemaState struct {
	mu  sync.Mutex
	doc *schema.Document
}

// Client is bound to one service at one base URL. Copies made by
// WithIdentity share the schema, transport and log of the original.
type Client struct {
	service   string
	baseURL   string
	creds     auth.Credentials
	transport *zdshttp.Client
	fetcher   *schema.Fetcher
	state     *schemaState
	required  []string
	log       *apilog.Log
	logger    zdshttp.Logger

	transportOpts []zdshttp.Option
}

// Option configures a Client.
type Option func(*Client)

// WithLog sets the shared request/response log.
func WithLog(log *apilog.Log) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithFetcher sets the schema fetcher.
func WithFetcher(fetcher *schema.Fetcher) Option {
	return func(c *Client) {
		c.fetcher = fetcher
	}
}

// WithSchema uses doc instead of fetching the schema.
func WithSchema(doc *schema.Document) Option {
	return func(c *Client) {
		c.state.doc = doc
	}
}

// WithRequiredOperations makes loading the schema fail when one of ids is
// not defined by it.
func WithRequiredOperations(ids ...string) Option {
	return func(c *Client) {
		c.required = append(c.required, ids...)
	}
}

// WithLogger sets the logger of the client and its transport.
func WithLogger(logger zdshttp.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.transportOpts = append(c.transportOpts, zdshttp.WithLogger(logger))
	}
}

// WithTransportOptions passes options to the underlying HTTP client.
func WithTransportOptions(opts ...zdshttp.Option) Option {
	return func(c *Client) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

// New creates a client for service at baseURL.
func New(service, baseURL string, creds auth.Credentials, opts ...Option) *Client {
	client := &Client{
		service: service,
		baseURL: baseURL,
		creds:   creds,
		state:   &schemaState{},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.fetcher == nil {
		client.fetcher = schema.NewFetcher()
	}

	transportOpts := append([]zdshttp.Option{zdshttp.WithRecorder(zdshttp.RecorderFunc(client.record))},
		client.transportOpts...)
	client.transport = zdshttp.NewClient(baseURL, nil, transportOpts...)
	client.transportOpts = nil

	return client
}

// Service returns the service name.
func (c *Client) Service() string {
	return c.service
}

// BaseURL returns the base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns the credentials used for calls.
func (c *Client) Credentials() auth.Credentials {
	return c.creds
}

// WithIdentity returns a copy of the client whose calls are made on behalf
// of identity. The receiver is not modified.
func (c *Client) WithIdentity(identity auth.Identity) *Client {
	clone := *c
	clone.creds = c.creds.WithIdentity(identity)

	return &clone
}

// Schema returns the service schema, fetching it on first use. At most one
// fetch runs at a time; a failed fetch is retried on the next call.
func (c *Client) Schema(ctx context.Context) (*schema.Document, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	if c.state.doc != nil {
		return c.state.doc, nil
	}

	doc, err := c.fetcher.Fetch(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("loading %s schema: %w", c.service, err)
	}

	err = doc.Validate(c.required...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, c.service, err)
	}

	c.state.doc = doc

	return doc, nil
}

// Preload fetches and validates the schema ahead of the first call.
func (c *Client) Preload(ctx context.Context) error {
	_, err := c.Schema(ctx)

	return err
}

// Log returns the entries of the shared log written for this service.
func (c *Client) Log() []apilog.Entry {
	if c.log == nil {
		return nil
	}

	return c.log.ForService(c.service)
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	query   url.Values
	headers map[string]string
}

// WithQuery adds query parameters, for example filters or the page number.
func WithQuery(query url.Values) CallOption {
	return func(o *callOptions) {
		o.query = query
	}
}

// WithHeaders adds or overrides request headers.
func WithHeaders(headers map[string]string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}

		for name, value := range headers {
			o.headers[name] = value
		}
	}
}

// Retrieve reads one resource through {resource}_read.
func (c *Client) Retrieve(ctx context.Context, resource string, params Params, opts ...CallOption) (Object, error) {
	return c.object(ctx, resource, ActionRead, http.MethodGet, params, nil, http.StatusOK, opts)
}

// RetrieveURL reads a resource by its URL, as found in other resources.
func (c *Client) RetrieveURL(ctx context.Context, resource, resourceURL string, opts ...CallOption) (Object, error) {
	resp, err := c.do(ctx, http.MethodGet, resourceURL, nil, opts)
	if err != nil {
		return nil, err
	}

	operation := OperationID(resource, ActionRead)

	err = expect(operation, resourceURL, resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return decodeObject(operation, resp.Body)
}

// Fetch performs an authenticated GET of an arbitrary URL or path and
// returns the decoded JSON body. Any status other than 200 is an error.
func (c *Client) Fetch(ctx context.Context, target string, opts ...CallOption) (interface{}, error) {
	resp, err := c.do(ctx, http.MethodGet, target, nil, opts)
	if err != nil {
		return nil, err
	}

	err = expect("fetch", target, resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var value interface{}

	err = json.Unmarshal(resp.Body, &value)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrUnexpectedPayload, target, err)
	}

	return value, nil
}

// List reads a collection through {resource}_list. Pagination is left to
// the caller; see ListAll.
func (c *Client) List(ctx context.Context, resource string, params Params, opts ...CallOption) (*ListResult, error) {
	operation := OperationID(resource, ActionList)

	path, err := c.resolve(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	return c.listURL(ctx, operation, path, opts)
}

// ListAll reads a collection and follows the next links of paginated
// responses.
func (c *Client) ListAll(ctx context.Context, resource string, params Params, opts ...CallOption) ([]Object, error) {
	operation := OperationID(resource, ActionList)

	page, err := c.List(ctx, resource, params, opts...)
	if err != nil {
		return nil, err
	}

	results := page.Results

	// Next links already carry the query of the first request.
	var pageOpts []CallOption
	if len(opts) > 0 {
		pageOpts = []CallOption{func(o *callOptions) {
			for _, opt := range opts {
				opt(o)
			}

			o.query = nil
		}}
	}

	for page.Paginated && page.Next != "" {
		page, err = c.listURL(ctx, operation, page.Next, pageOpts)
		if err != nil {
			return nil, err
		}

		results = append(results, page.Results...)
	}

	return results, nil
}

// Create posts data through {resource}_create and expects 201.
func (c *Client) Create(ctx context.Context, resource string, data interface{}, params Params, opts ...CallOption) (Object, error) {
	return c.object(ctx, resource, ActionCreate, http.MethodPost, params, data, http.StatusCreated, opts)
}

// Update replaces a resource through {resource}_update.
func (c *Client) Update(ctx context.Context, resource string, data interface{}, params Params, opts ...CallOption) (Object, error) {
	return c.object(ctx, resource, ActionUpdate, http.MethodPut, params, data, http.StatusOK, opts)
}

// PartialUpdate patches a resource through {resource}_partial_update.
func (c *Client) PartialUpdate(
	ctx context.Context, resource string, data interface{}, params Params, opts ...CallOption,
) (Object, error) {
	return c.object(ctx, resource, ActionPartialUpdate, http.MethodPatch, params, data, http.StatusOK, opts)
}

// Delete removes a resource through {resource}_delete and expects 204.
func (c *Client) Delete(ctx context.Context, resource string, params Params, opts ...CallOption) error {
	operation := OperationID(resource, ActionDelete)

	path, err := c.resolve(ctx, operation, params)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodDelete, path, nil, opts)
	if err != nil {
		return err
	}

	return expect(operation, path, resp, http.StatusNoContent)
}

func (c *Client) object(
	ctx context.Context,
	resource, action, method string,
	params Params,
	data interface{},
	status int,
	opts []CallOption,
) (Object, error) {
	operation := OperationID(resource, action)

	path, err := c.resolve(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, method, path, data, opts)
	if err != nil {
		return nil, err
	}

	err = expect(operation, path, resp, status)
	if err != nil {
		return nil, err
	}

	return decodeObject(operation, resp.Body)
}

func (c *Client) listURL(ctx context.Context, operation, path string, opts []CallOption) (*ListResult, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, opts)
	if err != nil {
		return nil, err
	}

	err = expect(operation, path, resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return decodeList(operation, resp.Body)
}

// resolve maps an operation onto a request path. It never performs a
// request other than the schema fetch.
func (c *Client) resolve(ctx context.Context, operation string, params Params) (string, error) {
	doc, err := c.Schema(ctx)
	if err != nil {
		return "", err
	}

	path, err := doc.ResolvePath(operation, params)
	if err != nil {
		if errors.Is(err, schema.ErrOperationNotFound) {
			return "", fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, c.service, err)
		}

		return "", fmt.Errorf("resolving %s: %w", operation, err)
	}

	return path, nil
}

func (c *Client) do(ctx context.Context, method, path string, data interface{}, opts []CallOption) (*zdshttp.Response, error) {
	options := &callOptions{}
	for _, opt := range opts {
		opt(options)
	}

	req := &zdshttp.Request{
		Method:  method,
		Path:    path,
		Query:   options.query,
		Headers: options.headers,
		Token:   c.creds,
	}

	if data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request body: %w", c.service, err)
		}

		req.Body = body
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.service, err)
	}

	return resp, nil
}

func (c *Client) record(ctx context.Context, exchange *zdshttp.Exchange) {
	entry := apilog.Entry{
		Service: c.service,
		Request: apilog.Request{
			URL:     exchange.URL,
			Method:  exchange.Method,
			Headers: zdshttp.FlattenHeaders(exchange.RequestHeaders),
			Data:    decodeLoose(exchange.RequestBody),
		},
		Response: apilog.Response{
			Status:  exchange.StatusCode,
			Headers: zdshttp.FlattenHeaders(exchange.ResponseHeaders),
			Data:    decodeLoose(exchange.ResponseBody),
		},
	}

	if c.log != nil {
		c.log.Add(entry)
	}

	if scoped, ok := apilog.FromContext(ctx); ok && scoped != c.log {
		scoped.Add(entry)
	}

	if exchange.Err != nil && c.logger != nil {
		c.logger.Warn("ZDS request failed", map[string]interface{}{
			"service": c.service,
			"method":  exchange.Method,
			"url":     exchange.URL,
			"error":   exchange.Err.Error(),
		})
	}
}

func expect(operation, path string, resp *zdshttp.Response, status int) error {
	if resp.StatusCode == status {
		return nil
	}

	return newClientError(operation, path, resp.StatusCode, resp.Body)
}

func decodeObject(operation string, body []byte) (Object, error) {
	object := Object{}

	err := json.Unmarshal(body, &object)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnexpectedPayload, operation, err)
	}

	return object, nil
}

func decodeList(operation string, body []byte) (*ListResult, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []Object

		err := json.Unmarshal(trimmed, &results)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnexpectedPayload, operation, err)
		}

		return &ListResult{Count: len(results), Results: results}, nil
	}

	result := &ListResult{Paginated: true}

	err := json.Unmarshal(trimmed, result)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnexpectedPayload, operation, err)
	}

	return result, nil
}

// decodeLoose returns the decoded JSON value of body, or nil when body is
// empty or not JSON.
func decodeLoose(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}

	var value interface{}

	err := json.Unmarshal(body, &value)
	if err != nil {
		return nil
	}

	return value
}
