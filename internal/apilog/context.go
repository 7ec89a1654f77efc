package apilog

import (
	"context"
	"regexp"
)

type contextKey struct{}

// NewContext returns a context carrying a request-scoped log.
func NewContext(ctx context.Context, log *Log) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the request-scoped log, if any.
func FromContext(ctx context.Context) (*Log, bool) {
	log, ok := ctx.Value(contextKey{}).(*Log)

	return log, ok && log != nil
}

var uuidPattern = regexp.MustCompile(`([a-f0-9]{3})[a-f0-9]{5}-[a-f0-9]{4}-4[a-f0-9]{3}-[89aAbB][a-f0-9]{3}-[a-f0-9]{9}([a-f0-9]{3})`)

// ShortenURL replaces every UUID in an API URL by its first and last three
// characters, for compact display.
func ShortenURL(url string) string {
	return uuidPattern.ReplaceAllString(url, "$1..$2")
}
