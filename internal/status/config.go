package status

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// Messages of the configuration check.
const (
	MessageUnreachable = "Server onbereikbaar"
	MessageServerError = "Server geeft een error"
	MessageNoResources = "API root bevat geen resources"
)

// Item is one checked configuration value.
type Item struct {
	Label   string `json:"label"             yaml:"label"`
	Value   string `json:"value"             yaml:"value"`
	OK      bool   `json:"ok"                yaml:"ok"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Group is the configuration check of one service.
type Group struct {
	Title string `json:"title" yaml:"title"`
	Items []Item `json:"items" yaml:"items"`
}

// MaskSecret keeps the first and last character of secret.
func MaskSecret(secret string) string {
	runes := []rune(secret)
	if len(runes) == 0 {
		return ""
	}

	return string(runes[0]) + "***" + string(runes[len(runes)-1])
}

// Connect reports whether the API root answers with 200.
func (c *Checker) Connect(ctx context.Context, url string) (bool, string) {
	status, _, err := c.get(ctx, url)
	if err != nil {
		return false, MessageUnreachable
	}

	if status != http.StatusOK {
		return false, MessageServerError
	}

	return true, ""
}

// Authenticate reads the first resource listed in the API root with the
// credentials of client. A 412 from the ZRC counts as authenticated: the
// request got past authorisation and failed on a missing header.
func (c *Checker) Authenticate(ctx context.Context, client *zds.Client) (bool, string) {
	status, body, err := c.get(ctx, client.BaseURL())
	if err != nil {
		return false, MessageUnreachable
	}

	if status != http.StatusOK {
		return false, MessageServerError
	}

	target, ok := firstLink(body)
	if !ok {
		return false, MessageNoResources
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = client.Fetch(ctx, target)
	if err == nil {
		return true, ""
	}

	var clientErr *zds.ClientError
	if errors.As(err, &clientErr) {
		if client.Service() == config.ServiceZRC && clientErr.Status == http.StatusPreconditionFailed {
			return true, ""
		}

		return false, clientErr.Title
	}

	return false, err.Error()
}

// Service checks connectivity and credentials of one endpoint.
func (c *Checker) Service(ctx context.Context, cfg config.ServiceConfig, client *zds.Client) Group {
	connected, connectMessage := c.Connect(ctx, cfg.BaseURL)
	authenticated, authMessage := c.Authenticate(ctx, client)

	return Group{
		Title: strings.ToUpper(cfg.Name),
		Items: []Item{
			{Label: "Basis URL", Value: cfg.BaseURL, OK: connected, Message: connectMessage},
			{Label: "Client ID", Value: cfg.ClientID, OK: authenticated},
			{Label: "Secret", Value: MaskSecret(cfg.Secret), OK: authenticated, Message: authMessage},
		},
	}
}

// firstLink returns the first value of a JSON object in document order.
func firstLink(body []byte) (string, bool) {
	var root yaml.Node

	err := yaml.Unmarshal(body, &root)
	if err != nil || len(root.Content) == 0 {
		return "", false
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode || len(mapping.Content) < 2 {
		return "", false
	}

	value := mapping.Content[1]
	if value.Kind != yaml.ScalarNode || value.Value == "" {
		return "", false
	}

	return value.Value, true
}
