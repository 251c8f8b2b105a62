package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/tidwall/gjson"
)

// DefaultErrorMessage is shown when an error carries no usable message
const DefaultErrorMessage = "An unexpected error occurred"

// FieldError is a single rejected request field
type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue,omitempty"`
}

// Error is a failed API call. It unwraps to one of the apperrors kinds
// (ErrUnauthorized, ErrValidation, ErrTransient, ...) and, for transport
// failures, to the underlying error.
type Error struct {
	StatusCode       int // 0 when no response was received
	Method           string
	Path             string
	Message          string
	ErrorCode        string
	Timestamp        string
	ValidationErrors []FieldError
	Kind             error
	Err              error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// errorBody is the API's error envelope
type errorBody struct {
	Status           int          `json:"status"`
	Error            string       `json:"error"`
	ErrorCode        string       `json:"errorCode"`
	Message          string       `json:"message"`
	Path             string       `json:"path"`
	Timestamp        string       `json:"timestamp"`
	ValidationErrors []FieldError `json:"validationErrors"`
}

// messagePaths are tried in order on bodies that do not match errorBody
var messagePaths = []string{"message", "error.message", "error_description", "detail"}

func statusError(method, path string, status int, body []byte) *Error {
	e := &Error{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Kind:       statusKind(status),
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Message = parsed.Message
		e.ErrorCode = parsed.ErrorCode
		e.Timestamp = parsed.Timestamp
		e.ValidationErrors = parsed.ValidationErrors
	}
	if e.Message == "" && gjson.ValidBytes(body) {
		for _, p := range messagePaths {
			if m := gjson.GetBytes(body, p); m.Type == gjson.String && m.String() != "" {
				e.Message = m.String()
				break
			}
		}
	}
	return e
}

func transportError(method, path string, err error) *Error {
	return &Error{
		Method: method,
		Path:   path,
		Kind:   apperrors.ErrTransient,
		Err:    err,
	}
}

func statusKind(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case status == http.StatusForbidden:
		return apperrors.ErrForbidden
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusConflict:
		return apperrors.ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.ErrValidation
	case status >= http.StatusInternalServerError:
		return apperrors.ErrTransient
	default:
		return apperrors.ErrRequestFailed
	}
}

// ErrorMessage picks the message to show a user for err: the server's
// message, else the error's own text, else DefaultErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Message != "":
			return apiErr.Message
		case apiErr.Err != nil && apiErr.Err.Error() != "":
			return apiErr.Err.Error()
		case apiErr.StatusCode != 0:
			return fmt.Sprintf("Request failed with status code %d", apiErr.StatusCode)
		}
		return DefaultErrorMessage
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}

// IsNetworkError reports whether err is a call that never got a response
func IsNetworkError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 0 && errors.Is(apiErr.Kind, apperrors.ErrTransient)
}
