// Package ticktick implements a client for the TickTick Open API
// (projects and tasks). The dida365 region serves the same API from a
// different host.
package ticktick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/ticktick-mcp/internal/errors"
	"github.com/tidwall/gjson"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller may retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	apiPrefix = "/open/v1"
)

// BaseURL returns the API host for a region.
func BaseURL(region string) string {
	if region == "dida365" {
		return "https://api.dida365.com"
	}

	return "https://api.ticktick.com"
}

// OAuthEndpoints returns the authorization and token endpoints for a
// region.
func OAuthEndpoints(region string) (authURL, tokenURL string) {
	if region == "dida365" {
		return "https://dida365.com/oauth/authorize", "https://dida365.com/oauth/token"
	}

	return "https://ticktick.com/oauth/authorize", "https://ticktick.com/oauth/token"
}

// TokenSource supplies a bearer token for each request. Failures
// propagate to the caller untouched so the tool layer can distinguish
// "not authorized" from "expired".
type TokenSource interface {
	AccessToken() (string, error)
}

// Client talks to the TickTick Open API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for baseURL, authenticating through
// tokens. If httpClient is nil, a client with a 30-second timeout and
// same-host redirect policy is created.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// errorMessage pulls a human-readable message out of a provider error
// body. The shapes vary by endpoint, so probe the known field names.
func errorMessage(body []byte) string {
	for _, field := range []string{"errorMessage", "error_description", "error", "message"} {
		if v := gjson.GetBytes(body, field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}

	return ""
}

// do sends an authenticated JSON request and decodes the response into
// result (which may be nil for endpoints with empty responses).
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return err
	}

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", endpoint, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	// Cap response reads at 1MB. API responses are small JSON payloads.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(endpoint, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %v", apperrors.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

func (c *Client) statusError(endpoint string, status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = sanitizeResponseBody(body)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%d): %s", apperrors.ErrUnauthorized, endpoint, status, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, endpoint)
	}

	err := fmt.Errorf("%w: %s (%d): %s", apperrors.ErrAPIRequest, endpoint, status, msg)
	if isTransientStatus(status) {
		return &TransientError{Err: err}
	}

	return err
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, result)
}

func (c *Client) post(ctx context.Context, endpoint string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, body, result)
}

func (c *Client) delete(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}
