package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx response from the query service.
//
// The session store and the auth store read the status through
// StatusCode, so a 401/403 is reported as a permission problem and a 404
// as a missing query.
type StatusError struct {
	// Code is the HTTP status code.
	Code int

	// Method and URL identify the request.
	Method string
	URL    string

	// Body is the response body, trimmed.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// NotFound returns the error reported for a missing resource.
func NotFound(method, url string) *StatusError {
	return &StatusError{Code: http.StatusNotFound, Method: method, URL: url}
}

// IsNotFound returns true if err is a 404 StatusError.
func IsNotFound(err error) bool {
	return hasCode(err, http.StatusNotFound)
}

// IsForbidden returns true if err is a 401 or 403 StatusError.
func IsForbidden(err error) bool {
	return hasCode(err, http.StatusUnauthorized) || hasCode(err, http.StatusForbidden)
}

func hasCode(err error, code int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newStatusError(method, url string, code int, body []byte) *StatusError {
	return &StatusError{
		Code:   code,
		Method: method,
		URL:    url,
		Body:   strings.TrimSpace(string(body)),
	}
}
