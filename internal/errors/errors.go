package errors

import "errors"

// Provider API errors. The OAuth core carries its own tagged error type;
// these sentinels cover the plain request/response layer.
var (
	ErrAPIRequest   = errors.New("API request failed")
	ErrAPIResponse  = errors.New("unexpected API response")
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("request not authorized")
)
