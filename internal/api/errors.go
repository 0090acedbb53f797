package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means no HTTP response was received at all.
	ErrUnavailable = errors.New("api: storefront API unavailable")
	// ErrUnauthorized matches any 401 or 403 response.
	ErrUnauthorized = errors.New("api: unauthorized")
)

// ResponseError is a response the API answered with a failure status or success:false.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *ResponseError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}
