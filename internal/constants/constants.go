package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for calls to the ZDS APIs.
	// Zero means no client-side timeout; callers bound calls with a context.
	DefaultHTTPTimeout = 0 * time.Second

	// HealthCheckTimeout bounds reachability checks of configured services.
	HealthCheckTimeout = 1 * time.Second

	// SchemaFetchTimeout bounds the download of an OpenAPI document.
	SchemaFetchTimeout = 10 * time.Second

	// ServerReadHeaderTimeout is used by the web server.
	ServerReadHeaderTimeout = 10 * time.Second

	// ServerShutdownTimeout is the grace period for in-flight requests.
	ServerShutdownTimeout = 5 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries for API calls.
	// API calls are not retried unless configured otherwise.
	DefaultRetryMax = 0

	// SchemaRetryMax is used when downloading schemas.
	SchemaRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Request/response log.
const (
	// DefaultLogCapacity is the number of exchanges kept by the API log.
	DefaultLogCapacity = 100
)

// Caching.
const (
	// DefaultCacheSize is the maximum number of entries in the memory cache.
	DefaultCacheSize = 64

	// DefaultSchemaTTL is how long a fetched schema stays in a shared cache.
	DefaultSchemaTTL = 24 * time.Hour

	// DefaultCacheKeyPrefix prefixes keys in shared cache backends.
	DefaultCacheKeyPrefix = "zac:"

	// DefaultNATSBucket is the JetStream key/value bucket for schemas.
	DefaultNATSBucket = "zac-schemas"
)

// ZDS conventions.
const (
	// SchemaPath is the location of the OpenAPI document relative to the
	// base URL of a service.
	SchemaPath = "schema/openapi.yaml"

	// AcceptCrs is the coordinate reference system requested for geometry.
	AcceptCrs = "EPSG:4326"

	// ContentTypeJSON is the media type of all ZDS payloads.
	ContentTypeJSON = "application/json"
)

// Notifications and messaging.
const (
	// DefaultNotificationTopic is the topic every user-facing message is
	// published on when no user is known.
	DefaultNotificationTopic = "notifications_everyone"

	// DefaultExchange is the notification channel used by the broker tools.
	DefaultExchange = "zaken"

	// DefaultRoutingKey is the routing key used when emitting test messages.
	DefaultRoutingKey = "foo.bar"

	// MaxCallbackBody limits the size of an inbound notification.
	MaxCallbackBody = 1 << 20

	// SubscriberBuffer is the channel buffer per stream subscriber.
	SubscriberBuffer = 16
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)
