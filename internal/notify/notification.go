// Package notify turns incoming ZDS notifications into short Dutch
// messages for the end user and relays them to subscribers.
package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Static errors for err113 compliance.
var (
	ErrInvalidNotification = errors.New("invalid notification")
)

// Notification is the body a notification component posts to the callback.
// Both the camelCase and the snake_case spelling are accepted.
type Notification struct {
	Kanaal       string                 `json:"kanaal"`
	HoofdObject  string                 `json:"hoofdObject"`
	Resource     string                 `json:"resource"`
	ResourceURL  string                 `json:"resourceUrl"`
	Actie        string                 `json:"actie"`
	Aanmaakdatum string                 `json:"aanmaakdatum"`
	Kenmerken    map[string]interface{} `json:"kenmerken"`
}

type wireNotification struct {
	Kanaal           string                 `json:"kanaal"`
	HoofdObject      string                 `json:"hoofdObject"`
	HoofdObjectSnake string                 `json:"hoofd_object"`
	Resource         string                 `json:"resource"`
	ResourceURL      string                 `json:"resourceUrl"`
	ResourceURLSnake string                 `json:"resource_url"`
	Actie            string                 `json:"actie"`
	Aanmaakdatum     string                 `json:"aanmaakdatum"`
	Kenmerken        map[string]interface{} `json:"kenmerken"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var wire wireNotification

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}

	*n = Notification{
		Kanaal:       wire.Kanaal,
		HoofdObject:  firstNonEmpty(wire.HoofdObject, wire.HoofdObjectSnake),
		Resource:     wire.Resource,
		ResourceURL:  firstNonEmpty(wire.ResourceURL, wire.ResourceURLSnake),
		Actie:        wire.Actie,
		Aanmaakdatum: wire.Aanmaakdatum,
		Kenmerken:    wire.Kenmerken,
	}

	return nil
}

// Decode parses and validates a notification body.
func Decode(data []byte) (Notification, error) {
	var notification Notification

	err := json.Unmarshal(data, &notification)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	return notification, notification.Validate()
}

// Validate reports the missing required fields.
func (n Notification) Validate() error {
	var missing []string

	for _, field := range []struct {
		name  string
		value string
	}{
		{"kanaal", n.Kanaal},
		{"hoofdObject", n.HoofdObject},
		{"resource", n.Resource},
		{"actie", n.Actie},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidNotification, strings.Join(missing, ", "))
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
