// Package logging adapts logrus to the structured Logger interface used
// throughout the module.
package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnknownFormat is returned for log formats other than text and json.
var ErrUnknownFormat = errors.New("unknown log format")

// Logger writes structured messages.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Options selects the level, format and destination of a new logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Adapter implements Logger on top of a logrus entry.
type Adapter struct {
	entry *logrus.Entry
}

// New builds a logrus logger from opts. Empty values default to info and
// text.
func New(opts Options) (*Adapter, error) {
	logger := logrus.New()

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	level := logrus.InfoLevel

	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}

		level = parsed
	}

	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, opts.Format)
	}

	return Wrap(logger), nil
}

// Wrap adapts an existing logrus logger.
func Wrap(logger *logrus.Logger) *Adapter {
	return &Adapter{entry: logrus.NewEntry(logger)}
}

// With returns a logger that adds fields to every message.
func (a *Adapter) With(fields map[string]interface{}) *Adapter {
	return &Adapter{entry: a.entry.WithFields(fields)}
}

// Logrus exposes the underlying logger.
func (a *Adapter) Logrus() *logrus.Logger {
	return a.entry.Logger
}

// Debug implements Logger.
func (a *Adapter) Debug(msg string, fields map[string]interface{}) {
	a.entry.WithFields(fields).Debug(msg)
}

// Info implements Logger.
func (a *Adapter) Info(msg string, fields map[string]interface{}) {
	a.entry.WithFields(fields).Info(msg)
}

// Warn implements Logger.
func (a *Adapter) Warn(msg string, fields map[string]interface{}) {
	a.entry.WithFields(fields).Warn(msg)
}

// Error implements Logger.
func (a *Adapter) Error(msg string, fields map[string]interface{}) {
	a.entry.WithFields(fields).Error(msg)
}

// Discard returns a logger that drops everything.
func Discard() *Adapter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return Wrap(logger)
}
