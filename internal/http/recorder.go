package http

import (
	"context"
	"net/http"
	"time"
)

// Exchange is one request and, when one was received, its response.
type Exchange struct {
	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     []byte
	StatusCode      int
	ResponseHeaders http.Header
	ResponseBody    []byte
	Duration        time.Duration
	Err             error
}

// Recorder receives every exchange made by a Client, including failed ones.
type Recorder interface {
	Record(ctx context.Context, exchange *Exchange)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, exchange *Exchange)

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, exchange *Exchange) {
	f(ctx, exchange)
}

// FlattenHeaders joins multi-valued headers into single strings.
func FlattenHeaders(headers http.Header) map[string]string {
	if headers == nil {
		return nil
	}

	out := make(map[string]string, len(headers))

	for name, values := range headers {
		if len(values) == 0 {
			continue
		}

		joined := values[0]
		for _, value := range values[1:] {
			joined += ", " + value
		}

		out[name] = joined
	}

	return out
}
