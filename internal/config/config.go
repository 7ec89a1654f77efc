// Package config holds the site configuration: which ZDS services exist,
// where they live and how to authenticate against them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/maykinmedia/gemma-zaken-demo/internal/auth"
	"github.com/maykinmedia/gemma-zaken-demo/internal/cache"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// Supported services.
const (
	ServiceZRC         = "zrc"
	ServiceDRC         = "drc"
	ServiceZTC         = "ztc"
	ServiceBRC         = "brc"
	ServiceORC         = "orc"
	ServiceNC          = "nc"
	ServiceObjects     = "objects"
	ServiceObjecttypes = "objecttypes"
)

// Static errors for err113 compliance.
var (
	ErrUnknownService       = errors.New("unknown service")
	ErrServiceNotConfigured = errors.New("service not configured")
	ErrInvalidBaseURL       = errors.New("invalid base URL")
)

type serviceInfo struct {
	name        string
	description string
	baseURL     string
}

// The fixed set of services, in display order.
var services = []serviceInfo{
	{ServiceZRC, "Zaken API van het Zaakregistratiecomponent", "http://localhost:8000/api/v1/"},
	{ServiceDRC, "Documenten API van het Documentregistratiecomponent", "http://localhost:8001/api/v1/"},
	{ServiceZTC, "Catalogi API van de Zaaktypecatalogus", "http://localhost:8002/api/v1/"},
	{ServiceBRC, "Besluiten API van het Besluitregistratiecomponent", "http://localhost:8003/api/v1/"},
	{ServiceORC, "Overige registratiecomponent", "http://localhost:8888/api/v1/"},
	{ServiceNC, "Notificaties API van het Notificatierouteringcomponent", ""},
	{ServiceObjects, "Objecten API", ""},
	{ServiceObjecttypes, "Objecttypen API", ""},
}

// Services returns the names of all supported services.
func Services() []string {
	names := make([]string, 0, len(services))
	for _, info := range services {
		names = append(names, info.name)
	}

	return names
}

// Description returns the human readable description of a service.
func Description(service string) string {
	for _, info := range services {
		if info.name == service {
			return info.description
		}
	}

	return ""
}

// IsService reports whether name is a supported service.
func IsService(name string) bool {
	return Description(name) != ""
}

// Credentials is a client id/secret pair.
type Credentials struct {
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`
	Secret   string   `mapstructure:"secret"    yaml:"secret"`
	Scopes   []string `mapstructure:"scopes"    yaml:"scopes"`
}

// Endpoint is one base URL of a service with optional credential overrides.
type Endpoint struct {
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	Credentials `mapstructure:",squash" yaml:",inline"`
}

// ServiceSettings configures one service. Additional lists secondary
// instances, for example several catalogues.
type ServiceSettings struct {
	Endpoint   `mapstructure:",squash" yaml:",inline"`
	Additional []Endpoint `mapstructure:"additional" yaml:"additional"`
}

// ServiceConfig is the resolved, immutable connection configuration of one
// service endpoint.
type ServiceConfig struct {
	Name     string
	BaseURL  string
	ClientID string
	Secret   string
	Scopes   []string
}

// Credentials returns the JWT credentials for the endpoint.
func (s ServiceConfig) Credentials() auth.Credentials {
	return auth.NewCredentials(s.ClientID, s.Secret, s.Scopes...)
}

// LogSettings configures the request/response log.
type LogSettings struct {
	Capacity      int      `mapstructure:"capacity"       yaml:"capacity"`
	RedactHeaders []string `mapstructure:"redact_headers" yaml:"redact_headers"`
	Level         string   `mapstructure:"level"          yaml:"level"`
	Format        string   `mapstructure:"format"         yaml:"format"`
}

// HTTPSettings configures the outbound HTTP client.
type HTTPSettings struct {
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout"`
	RetryMax  int           `mapstructure:"retry_max"  yaml:"retry_max"`
	Debug     bool          `mapstructure:"debug"      yaml:"debug"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// NotifySettings configures the relay of notifications to browser sessions.
type NotifySettings struct {
	// Publisher is one of broker, nats, redis, sns or none.
	Publisher   string `mapstructure:"publisher"     yaml:"publisher"`
	Topic       string `mapstructure:"topic"         yaml:"topic"`
	NATSURL     string `mapstructure:"nats_url"      yaml:"nats_url"`
	RedisAddr   string `mapstructure:"redis_addr"    yaml:"redis_addr"`
	SNSTopicARN string `mapstructure:"sns_topic_arn" yaml:"sns_topic_arn"`
	AWSRegion   string `mapstructure:"aws_region"    yaml:"aws_region"`
	AWSEndpoint string `mapstructure:"aws_endpoint"  yaml:"aws_endpoint"`
}

// MessagingSettings configures the broker tools.
type MessagingSettings struct {
	URL      string `mapstructure:"url"      yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

// ServerSettings configures the web server.
type ServerSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DemoSettings are the identifiers used when registering new cases.
type DemoSettings struct {
	Bronorganisatie      string `mapstructure:"bronorganisatie"        yaml:"bronorganisatie"`
	CatalogusUUID        string `mapstructure:"catalogus_uuid"         yaml:"catalogus_uuid"`
	MORZaaktypeUUID      string `mapstructure:"mor_zaaktype_uuid"      yaml:"mor_zaaktype_uuid"`
	MORStatustypeNewUUID string `mapstructure:"mor_statustype_new_uuid" yaml:"mor_statustype_new_uuid"`
}

// Settings is the complete site configuration.
type Settings struct {
	Defaults  Credentials                `mapstructure:"defaults"  yaml:"defaults"`
	Services  map[string]ServiceSettings `mapstructure:"services"  yaml:"services"`
	Log       LogSettings                `mapstructure:"log"       yaml:"log"`
	HTTP      HTTPSettings               `mapstructure:"http"      yaml:"http"`
	Cache     cache.Config               `mapstructure:"cache"     yaml:"cache"`
	Notify    NotifySettings             `mapstructure:"notify"    yaml:"notify"`
	Messaging MessagingSettings          `mapstructure:"messaging" yaml:"messaging"`
	Server    ServerSettings             `mapstructure:"server"    yaml:"server"`
	Demo      DemoSettings               `mapstructure:"demo"      yaml:"demo"`
}

// SetDefaults registers the default values, which also makes every key
// overridable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("defaults.client_id", "")
	v.SetDefault("defaults.secret", "")

	for _, info := range services {
		prefix := "services." + info.name + "."
		v.SetDefault(prefix+"base_url", info.baseURL)
		v.SetDefault(prefix+"client_id", "")
		v.SetDefault(prefix+"secret", "")
	}

	v.SetDefault("log.capacity", constants.DefaultLogCapacity)
	v.SetDefault("log.redact_headers", []string{"Authorization"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("http.retry_max", constants.DefaultRetryMax)
	v.SetDefault("http.debug", false)
	v.SetDefault("http.user_agent", "zac")

	v.SetDefault("cache.type", string(cache.TypeMemory))
	v.SetDefault("cache.memory.max_size", constants.DefaultCacheSize)

	v.SetDefault("notify.publisher", "broker")
	v.SetDefault("notify.topic", constants.DefaultNotificationTopic)

	v.SetDefault("messaging.url", "nats://127.0.0.1:4222")
	v.SetDefault("messaging.exchange", constants.DefaultExchange)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("demo.bronorganisatie", "517439943")
}

// NewViper returns a viper instance with defaults and ZAC_ environment
// variables, e.g. ZAC_SERVICES_ZRC_BASE_URL.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ZAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}

	err := v.Unmarshal(settings)
	if err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	err = settings.Validate()
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// Validate checks every configured base URL.
func (s *Settings) Validate() error {
	for name, service := range s.Services {
		if !IsService(name) {
			return fmt.Errorf("%w: %s", ErrUnknownService, name)
		}

		endpoints := append([]Endpoint{service.Endpoint}, service.Additional...)
		for _, endpoint := range endpoints {
			if endpoint.BaseURL == "" {
				continue
			}

			parsed, err := url.Parse(endpoint.BaseURL)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				return fmt.Errorf("%w for %s: %q", ErrInvalidBaseURL, name, endpoint.BaseURL)
			}
		}
	}

	return nil
}

// Service resolves the default endpoint of a service. Client id and secret
// fall back to the global defaults.
func (s *Settings) Service(name string) (ServiceConfig, error) {
	if !IsService(name) {
		return ServiceConfig{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}

	service := s.Services[name]
	if service.BaseURL == "" {
		return ServiceConfig{}, fmt.Errorf("%w: %s", ErrServiceNotConfigured, name)
	}

	return s.resolve(name, service.Endpoint, s.Defaults), nil
}

// Additional resolves the secondary endpoints of a service. Their
// credentials fall back to the service and then to the global defaults.
func (s *Settings) Additional(name string) ([]ServiceConfig, error) {
	primary, err := s.Service(name)
	if err != nil {
		return nil, err
	}

	fallback := Credentials{ClientID: primary.ClientID, Secret: primary.Secret, Scopes: primary.Scopes}

	additional := s.Services[name].Additional
	configs := make([]ServiceConfig, 0, len(additional))

	for _, endpoint := range additional {
		if endpoint.BaseURL == "" {
			continue
		}

		configs = append(configs, s.resolve(name, endpoint, fallback))
	}

	return configs, nil
}

// Configured returns the names of services that have a base URL, in
// display order.
func (s *Settings) Configured() []string {
	var names []string

	for _, info := range services {
		if s.Services[info.name].BaseURL != "" {
			names = append(names, info.name)
		}
	}

	return names
}

func (s *Settings) resolve(name string, endpoint Endpoint, fallback Credentials) ServiceConfig {
	config := ServiceConfig{
		Name:     name,
		BaseURL:  endpoint.BaseURL,
		ClientID: endpoint.ClientID,
		Secret:   endpoint.Secret,
		Scopes:   endpoint.Scopes,
	}

	if config.ClientID == "" {
		config.ClientID = fallback.ClientID
	}

	if config.Secret == "" {
		config.Secret = fallback.Secret
	}

	if len(config.Scopes) == 0 {
		config.Scopes = fallback.Scopes
	}

	return config
}

// Watch reloads the settings whenever the configuration file changes and
// passes the result to onChange. Invalid files are reported with a nil
// settings value.
func Watch(v *viper.Viper, onChange func(*Settings, error)) {
	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}

		onChange(Load(v))
	})
	v.WatchConfig()
}
