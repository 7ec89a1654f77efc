package web

import (
	"errors"
	"net/http"

	"github.com/maykinmedia/gemma-zaken-demo/internal/apilog"
	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/notify"
	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// Static errors for err113 compliance.
var (
	ErrInvalidBody     = errors.New("invalid request body")
	ErrMissingField    = errors.New("missing field")
	ErrUnknownCaseType = errors.New("configured case type not found")
)

// Texts of the error document.
const (
	ErrorTitle       = "Foutmelding"
	ErrorSubtitle    = "Er ging iets mis..."
	UnreachableTitle = "Server onbereikbaar"
)

// ErrorDetail describes the failed call.
type ErrorDetail struct {
	Status        int                `json:"status,omitempty"`
	Code          string             `json:"code,omitempty"`
	Title         string             `json:"title"`
	Detail        string             `json:"detail,omitempty"`
	InvalidParams []zds.InvalidParam `json:"invalidParams,omitempty"`
}

// ErrorDocument is the single error response of every endpoint. Log holds
// the calls made while handling the failed request.
type ErrorDocument struct {
	Title            string         `json:"title"`
	Subtitle         string         `json:"subtitle"`
	Error            ErrorDetail    `json:"error"`
	ValidationErrors []string       `json:"validationErrors,omitempty"`
	Log              []apilog.Entry `json:"log"`
}

// NewErrorDocument describes err and the entries of the request log.
func NewErrorDocument(err error, entries []apilog.Entry) (int, *ErrorDocument) {
	doc := &ErrorDocument{
		Title:    ErrorTitle,
		Subtitle: ErrorSubtitle,
		Log:      entries,
	}

	if doc.Log == nil {
		doc.Log = []apilog.Entry{}
	}

	var clientErr *zds.ClientError

	switch {
	case errors.Is(err, ErrUnknownCaseType):
		doc.Error = ErrorDetail{Title: err.Error()}

		return http.StatusServiceUnavailable, doc
	case errors.As(err, &clientErr):
		doc.Error = ErrorDetail{
			Status:        clientErr.Status,
			Code:          clientErr.Code,
			Title:         clientErr.Title,
			Detail:        clientErr.Detail,
			InvalidParams: clientErr.InvalidParams,
		}

		for _, field := range zds.ValidationErrors(err) {
			doc.ValidationErrors = append(doc.ValidationErrors, field.String())
		}

		return upstreamStatus(clientErr.Status), doc
	case errors.Is(err, ErrInvalidBody), errors.Is(err, ErrMissingField), errors.Is(err, notify.ErrInvalidNotification):
		doc.Error = ErrorDetail{Title: err.Error()}

		return http.StatusBadRequest, doc
	case errors.Is(err, config.ErrServiceNotConfigured), errors.Is(err, config.ErrUnknownService):
		doc.Error = ErrorDetail{Title: err.Error()}

		return http.StatusServiceUnavailable, doc
	case errors.Is(err, zds.ErrSchemaMismatch), errors.Is(err, schema.ErrMissingPathParameter):
		doc.Error = ErrorDetail{Title: err.Error()}

		return http.StatusInternalServerError, doc
	default:
		doc.Error = ErrorDetail{Title: UnreachableTitle, Detail: err.Error()}

		return http.StatusBadGateway, doc
	}
}

// upstreamStatus passes client errors through and reports everything else
// as a bad gateway.
func upstreamStatus(status int) int {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return status
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var entries []apilog.Entry
	if scoped, ok := apilog.FromContext(r.Context()); ok {
		entries = scoped.Entries()
	}

	status, doc := NewErrorDocument(err, entries)

	s.app.Logger.Warn("Request failed", map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	})

	writeJSON(w, status, doc)
}
