package oauth

import (
	"errors"
	"fmt"
)

// Kind classifies an authorization failure. Callers branch on the kind
// via KindOf instead of matching message text.
type Kind int

const (
	// KindUnknown is the zero value, returned by KindOf for errors that
	// did not originate in this package.
	KindUnknown Kind = iota

	// KindNoToken means no persisted token exists, or the persisted
	// token is bound to different credentials or a different region.
	KindNoToken

	// KindTokenExpired means a matching token exists but is past its
	// expiry minus the safety buffer.
	KindTokenExpired

	// KindCsrfMismatch means the callback carried a missing or wrong
	// state value and was rejected as a CSRF failure.
	KindCsrfMismatch

	// KindProviderDenied means the authorization server reported an
	// error on the callback (user declined, invalid scope, ...).
	KindProviderDenied

	// KindCallbackTimeout means no callback arrived within the window.
	KindCallbackTimeout

	// KindPortInUse means the local callback listener could not bind.
	KindPortInUse

	// KindNetworkError means the token exchange failed at the transport
	// level.
	KindNetworkError

	// KindExchangeRejected means the token endpoint returned a non-2xx
	// response; the body is attached for diagnosis.
	KindExchangeRejected
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNoToken:
		return "no_token"
	case KindTokenExpired:
		return "token_expired"
	case KindCsrfMismatch:
		return "csrf_mismatch"
	case KindProviderDenied:
		return "provider_denied"
	case KindCallbackTimeout:
		return "callback_timeout"
	case KindPortInUse:
		return "port_in_use"
	case KindNetworkError:
		return "network_error"
	case KindExchangeRejected:
		return "exchange_rejected"
	default:
		return "unknown"
	}
}

// FlowError is a tagged authorization failure.
type FlowError struct {
	Kind   Kind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause, if any.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnknown if no FlowError is in
// its chain.
func KindOf(err error) Kind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return KindUnknown
}

func flowErr(kind Kind, detail string) *FlowError {
	return &FlowError{Kind: kind, Detail: detail}
}
