// Package registry hands out one configured ZDS client per service and
// base URL.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maykinmedia/gemma-zaken-demo/internal/auth"
	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// Default is the key of the client built from the primary base URL.
const Default = "DEFAULT"

// Lookup errors, shared with the configuration.
var (
	ErrUnknownService       = config.ErrUnknownService
	ErrServiceNotConfigured = config.ErrServiceNotConfigured
)

// ClientFactory builds the client for one resolved endpoint.
type ClientFactory func(cfg config.ServiceConfig) *zds.Client

// User is the authenticated user a call is made for.
type User struct {
	Username    string
	DisplayName string
}

// Identity returns the identity sent to the APIs. A nil user is anonymous.
func (u *User) Identity() auth.Identity {
	if u == nil || u.Username == "" {
		return auth.Anonymous
	}

	representation := u.DisplayName
	if representation == "" {
		representation = u.Username
	}

	return auth.Identity{UserID: u.Username, Representation: representation}
}

type serviceClients struct {
	byKey map[string]*zds.Client
	// prefixes are the additional base URLs, longest first.
	prefixes []string
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	settings *config.Settings
	factory  ClientFactory
	clients  map[string]*serviceClients

	clientOpts []zds.Option
}

// Option configures a Registry.
type Option func(*Registry)

// WithClientFactory replaces the function that builds clients.
func WithClientFactory(factory ClientFactory) Option {
	return func(r *Registry) {
		r.factory = factory
	}
}

// WithClientOptions passes opts to every client built by the default
// factory, typically a shared log and schema fetcher.
func WithClientOptions(opts ...zds.Option) Option {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// New creates an empty registry. Clients are built on first use.
func New(settings *config.Settings, opts ...Option) *Registry {
	r := &Registry{
		settings: settings,
		clients:  make(map[string]*serviceClients),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.factory == nil {
		r.factory = r.newClient
	}

	return r
}

func (r *Registry) newClient(cfg config.ServiceConfig) *zds.Client {
	return zds.New(cfg.Name, cfg.BaseURL, cfg.Credentials(), r.clientOpts...)
}

// LookupOption narrows a lookup.
type LookupOption func(*lookup)

type lookup struct {
	url      string
	user     *User
	withUser bool
}

// ForURL selects the client whose base URL is the longest prefix of
// resourceURL, falling back to the default client.
func ForURL(resourceURL string) LookupOption {
	return func(l *lookup) {
		l.url = resourceURL
	}
}

// ForUser binds the returned client to user. A nil user is anonymous.
func ForUser(user *User) LookupOption {
	return func(l *lookup) {
		l.user = user
		l.withUser = true
	}
}

// Client returns the client for service.
func (r *Registry) Client(service string, opts ...LookupOption) (*zds.Client, error) {
	params := &lookup{}
	for _, opt := range opts {
		opt(params)
	}

	clients, err := r.service(service)
	if err != nil {
		return nil, err
	}

	client := clients.byKey[Default]

	if params.url != "" {
		for _, prefix := range clients.prefixes {
			if strings.HasPrefix(params.url, prefix) {
				client = clients.byKey[prefix]

				break
			}
		}
	}

	if params.withUser {
		client = client.WithIdentity(params.user.Identity())
	}

	return client, nil
}

// BaseURLs returns the registered keys of a service: Default followed by
// the additional base URLs, longest first.
func (r *Registry) BaseURLs(service string) ([]string, error) {
	clients, err := r.service(service)
	if err != nil {
		return nil, err
	}

	return append([]string{Default}, clients.prefixes...), nil
}

// Services returns the services that have been built, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Settings returns the settings clients are currently built from.
func (r *Registry) Settings() *config.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.settings
}

// Reset drops every client. When settings is non-nil it replaces the
// current settings; clients are rebuilt on next access.
func (r *Registry) Reset(settings *config.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if settings != nil {
		r.settings = settings
	}

	r.clients = make(map[string]*serviceClients)
}

func (r *Registry) service(name string) (*serviceClients, error) {
	r.mu.RLock()
	clients, ok := r.clients[name]
	r.mu.RUnlock()

	if ok {
		return clients, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if clients, ok := r.clients[name]; ok {
		return clients, nil
	}

	clients, err := r.build(name)
	if err != nil {
		return nil, err
	}

	r.clients[name] = clients

	return clients, nil
}

func (r *Registry) build(name string) (*serviceClients, error) {
	primary, err := r.settings.Service(name)
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", name, err)
	}

	additional, err := r.settings.Additional(name)
	if err != nil {
		return nil, fmt.Errorf("building %s clients: %w", name, err)
	}

	clients := &serviceClients{
		byKey: map[string]*zds.Client{Default: r.factory(primary)},
	}

	// One client per endpoint: an additional base URL repeating the
	// primary one, or an earlier additional one, is served by that client.
	seen := map[string]struct{}{sameEndpoint(primary.BaseURL): {}}

	for _, cfg := range additional {
		key := sameEndpoint(cfg.BaseURL)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		clients.byKey[cfg.BaseURL] = r.factory(cfg)
		clients.prefixes = append(clients.prefixes, cfg.BaseURL)
	}

	sort.SliceStable(clients.prefixes, func(i, j int) bool {
		return len(clients.prefixes[i]) > len(clients.prefixes[j])
	})

	return clients, nil
}

// sameEndpoint normalises a base URL for comparison.
func sameEndpoint(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/")
}
