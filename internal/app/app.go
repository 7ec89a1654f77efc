// Package app wires the configured services together: logging, the shared
// request log, the schema cache, the client registry and the notification
// relay.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/maykinmedia/gemma-zaken-demo/internal/apilog"
	"github.com/maykinmedia/gemma-zaken-demo/internal/cache"
	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
	zdshttp "github.com/maykinmedia/gemma-zaken-demo/internal/http"
	"github.com/maykinmedia/gemma-zaken-demo/internal/logging"
	"github.com/maykinmedia/gemma-zaken-demo/internal/notify"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
	"github.com/maykinmedia/gemma-zaken-demo/internal/status"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// requiredOperations are the operations the web API and the notification
// relay call by id, per service. A schema missing one of them is rejected
// when it is loaded.
var requiredOperations = map[string][]string{
	config.ServiceZRC: {"zaak_list", "zaak_read", "zaak_create", "status_list", "status_create"},
	config.ServiceZTC: {"zaaktype_read", "statustype_read"},
}

// App holds the long-lived services of a process.
type App struct {
	Logger        *logging.Adapter
	Log           *apilog.Log
	Cache         cache.Cache
	Fetcher       *schema.Fetcher
	Registry      *registry.Registry
	Broker        *notify.Broker
	Notifications *notify.Handler
	Checker       *status.Checker

	mu       sync.RWMutex
	settings *config.Settings
	closers  []func()
}

// New builds the services for settings. Close releases them.
func New(ctx context.Context, settings *config.Settings, logger *logging.Adapter) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	schemaCache, err := cache.NewFromConfig(&settings.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating schema cache: %w", err)
	}

	app := &App{
		Logger:   logger,
		settings: settings,
		Cache:    schemaCache,
		Log: apilog.New(settings.Log.Capacity,
			apilog.WithRedactedHeaders(settings.Log.RedactHeaders...)),
		Broker:  notify.NewBroker(),
		Checker: status.NewChecker(),
	}

	if closer, ok := schemaCache.(io.Closer); ok {
		app.closers = append(app.closers, func() { _ = closer.Close() })
	}

	app.Fetcher = schema.NewFetcher(
		schema.WithCache(schemaCache, constants.DefaultSchemaTTL),
		schema.WithLogger(logger),
	)

	app.Registry = registry.New(settings, registry.WithClientFactory(app.newClient))

	publisher, closePublisher, err := notify.NewPublisher(ctx, settings.Notify, app.Broker)
	if err != nil {
		app.Close()

		return nil, fmt.Errorf("creating notification publisher: %w", err)
	}

	app.closers = append(app.closers, closePublisher)
	app.Notifications = notify.NewHandler(app.Registry, publisher,
		notify.WithLogger(logger),
		notify.WithTopic(settings.Notify.Topic),
	)

	return app, nil
}

// Settings returns the current settings.
func (a *App) Settings() *config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.settings
}

// Reload replaces the settings. Clients are rebuilt on next use; the log,
// cache and publisher keep their original configuration.
func (a *App) Reload(settings *config.Settings) {
	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	dropped := a.Registry.Services()

	a.Registry.Reset(settings)
	a.Logger.Info("Configuration reloaded", map[string]interface{}{
		"services": settings.Configured(),
		"dropped":  dropped,
	})
}

// Preload fetches and checks the schema of every instance of the
// configured services. All instances are tried; the failures are joined.
func (a *App) Preload(ctx context.Context) error {
	var errs []error

	for _, name := range a.Settings().Configured() {
		baseURLs, err := a.Registry.BaseURLs(name)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		for _, baseURL := range baseURLs {
			client, err := a.Registry.Client(name, registry.ForURL(baseURL))
			if err != nil {
				errs = append(errs, err)

				continue
			}

			err = client.Preload(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("preloading %s: %w", client.BaseURL(), err))

				continue
			}

			a.Logger.Debug("Schema loaded", map[string]interface{}{
				"service":  name,
				"base_url": client.BaseURL(),
			})
		}
	}

	return errors.Join(errs...)
}

// Targets returns the primary endpoints of the configured services.
func (a *App) Targets() []status.Target {
	settings := a.Settings()

	var targets []status.Target

	for _, name := range settings.Configured() {
		cfg, err := settings.Service(name)
		if err != nil {
			continue
		}

		targets = append(targets, status.Target{Service: name, URL: cfg.BaseURL})
	}

	return targets
}

// CheckConfig checks connectivity and credentials of every configured
// service.
func (a *App) CheckConfig(ctx context.Context) ([]status.Group, error) {
	settings := a.Settings()
	groups := make([]status.Group, 0, len(settings.Configured()))

	for _, name := range settings.Configured() {
		cfg, err := settings.Service(name)
		if err != nil {
			return nil, err
		}

		client, err := a.Registry.Client(name)
		if err != nil {
			return nil, err
		}

		groups = append(groups, a.Checker.Service(ctx, cfg, client))
	}

	return groups, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.closers = nil
}

func (a *App) newClient(cfg config.ServiceConfig) *zds.Client {
	httpSettings := a.Settings().HTTP

	transport := []zdshttp.Option{
		zdshttp.WithLogger(a.Logger),
		zdshttp.WithDebug(httpSettings.Debug),
		zdshttp.WithUserAgent(httpSettings.UserAgent),
		zdshttp.WithTimeout(httpSettings.Timeout),
	}

	if httpSettings.RetryMax > 0 {
		transport = append(transport, zdshttp.WithRetryConfig(
			httpSettings.RetryMax, constants.DefaultRetryWaitMin, constants.DefaultRetryWaitMax))
	}

	return zds.New(cfg.Name, cfg.BaseURL, cfg.Credentials(),
		zds.WithLog(a.Log),
		zds.WithFetcher(a.Fetcher),
		zds.WithLogger(a.Logger),
		zds.WithTransportOptions(transport...),
		zds.WithRequiredOperations(requiredOperations[cfg.Name]...),
	)
}
