package constants

import "errors"

// Configuration errors.
var (
	ErrNoServicesConfigured = errors.New("no services configured, set services.<name>.base_url in the config file")
	ErrInvalidOutputFormat  = errors.New("invalid output format, use table, json or yaml")
)

// Command line errors.
var (
	ErrInvalidParam      = errors.New("invalid parameter, use name=value")
	ErrDataRequired      = errors.New("--data is required for this action")
	ErrUnknownAction     = errors.New("unknown action")
	ErrMessageRequired   = errors.New("a message is required")
	ErrBrokerUnavailable = errors.New("no broker configured, set messaging.url")
	ErrUnexpectedStatus  = errors.New("unexpected status")
)
