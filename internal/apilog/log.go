// Package apilog keeps a bounded trail of the requests made to the ZDS APIs
// so they can be shown to an operator after a request has been handled.
package apilog

import (
	"net/http"
	"sync"
	"time"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

const redactedValue = "***"

// Request is the outbound side of a logged exchange.
type Request struct {
	URL     string            `json:"url"     yaml:"url"`
	Method  string            `json:"method"  yaml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Data    interface{}       `json:"data"    yaml:"data"`
}

// Response is the inbound side of a logged exchange. Status is zero when no
// response was received.
type Response struct {
	Status  int               `json:"status"  yaml:"status"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Data    interface{}       `json:"data"    yaml:"data"`
}

// Entry is one request/response pair.
type Entry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Service   string    `json:"service"   yaml:"service"`
	Request   Request   `json:"request"   yaml:"request"`
	Response  Response  `json:"response"  yaml:"response"`
}

// Log is a fixed-capacity FIFO buffer of entries. It is safe for concurrent
// use; entries written by concurrent requests interleave in arrival order.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
	redacted map[string]struct{}
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithRedactedHeaders masks the values of the named headers in new entries.
func WithRedactedHeaders(names ...string) Option {
	return func(l *Log) {
		for _, name := range names {
			l.redacted[http.CanonicalHeaderKey(name)] = struct{}{}
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates a log holding at most capacity entries. A non-positive
// capacity falls back to the default of 100.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = constants.DefaultLogCapacity
	}

	log := &Log{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		redacted: make(map[string]struct{}),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(log)
	}

	return log
}

// Add appends an entry, evicting the oldest one first when the log is full.
// A zero timestamp is replaced by the current time.
func (l *Log) Add(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	entry.Request.Headers = l.redact(entry.Request.Headers)
	entry.Response.Headers = l.redact(entry.Response.Headers)

	if len(l.entries) >= l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry

		return
	}

	l.entries = append(l.entries, entry)
}

// Record is a shorthand for Add with the individual exchange fields.
func (l *Log) Record(
	service, url, method string,
	requestHeaders map[string]string, requestData interface{},
	responseStatus int, responseHeaders map[string]string, responseData interface{},
) {
	l.Add(Entry{
		Service: service,
		Request: Request{
			URL:     url,
			Method:  method,
			Headers: requestHeaders,
			Data:    requestData,
		},
		Response: Response{
			Status:  responseStatus,
			Headers: responseHeaders,
			Data:    responseData,
		},
	})
}

// Clear removes all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]Entry, 0, l.capacity)
}

// Entries returns a snapshot of the log, oldest entry first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)

	return out
}

// ForService returns the entries written for the given service, oldest first.
func (l *Log) ForService(service string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0)

	for _, entry := range l.entries {
		if entry.Service == service {
			out = append(out, entry)
		}
	}

	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Capacity returns the maximum number of entries.
func (l *Log) Capacity() int {
	return l.capacity
}

func (l *Log) redact(headers map[string]string) map[string]string {
	if len(l.redacted) == 0 || len(headers) == 0 {
		return headers
	}

	out := make(map[string]string, len(headers))

	for name, value := range headers {
		if _, ok := l.redacted[http.CanonicalHeaderKey(name)]; ok {
			out[name] = redactedValue

			continue
		}

		out[name] = value
	}

	return out
}
