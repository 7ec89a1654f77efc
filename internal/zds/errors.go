package zds

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Static errors for err113 compliance.
var (
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrUnexpectedPayload = errors.New("unexpected response payload")
)

// InvalidParam is one entry of the "invalid-params" list of a ZDS error.
type InvalidParam struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ClientError is returned when a ZDS API answers with a status other than
// the one expected for the operation.
type ClientError struct {
	Operation     string         `json:"-"`
	URL           string         `json:"-"`
	Status        int            `json:"status"`
	Type          string         `json:"type"`
	Code          string         `json:"code"`
	Title         string         `json:"title"`
	Detail        string         `json:"detail"`
	Instance      string         `json:"instance"`
	InvalidParams []InvalidParam `json:"invalid-params"`
	// Body is the raw response body.
	Body []byte `json:"-"`
}

func newClientError(operation, url string, status int, body []byte) *ClientError {
	clientErr := &ClientError{}

	// A body that is not a ZDS error document still yields a usable error.
	_ = json.Unmarshal(body, clientErr)

	clientErr.Operation = operation
	clientErr.URL = url
	clientErr.Status = status
	clientErr.Body = body

	if clientErr.Title == "" {
		clientErr.Title = http.StatusText(status)
	}

	return clientErr
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Operation, e.Status, e.Title, e.Detail)
	}

	return fmt.Sprintf("%s: %d %s", e.Operation, e.Status, e.Title)
}

// FieldError is a validation failure of one request field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// String renders the error the way it is shown next to a form.
func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// ValidationErrors returns the field errors carried by a 400 "invalid"
// response, or nil if err is not such a response.
func ValidationErrors(err error) []FieldError {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Code != "invalid" {
		return nil
	}

	fields := make([]FieldError, 0, len(clientErr.InvalidParams))
	for _, param := range clientErr.InvalidParams {
		fields = append(fields, FieldError{
			Field:   param.Name,
			Code:    param.Code,
			Message: param.Reason,
		})
	}

	return fields
}

// IsValidation reports whether err is a 400 "invalid" response.
func IsValidation(err error) bool {
	var clientErr *ClientError

	return errors.As(err, &clientErr) && clientErr.Code == "invalid"
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return HasStatus(err, http.StatusNotFound)
}

// HasStatus reports whether err is a ClientError with the given status.
func HasStatus(err error, status int) bool {
	var clientErr *ClientError

	return errors.As(err, &clientErr) && clientErr.Status == status
}
