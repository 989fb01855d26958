// Package oauth implements the authorization-code flow against the
// TickTick provider and the credential-bound token store behind it. The
// token file is the single source of truth: nothing here caches it, so
// external edits, deletions, and concurrent instances are observed on
// every access.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// FlowTimeout is the wall-clock limit on a pending authorization.
const FlowTimeout = 5 * time.Minute

// Endpoints are the provider's OAuth2 endpoints.
type Endpoints struct {
	AuthURL  string
	TokenURL string
}

// Options configure the Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	CallbackPort int
	Endpoints    Endpoints

	// HTTPClient overrides the client used for the token exchange.
	// Tests point it at an httptest server.
	HTTPClient *http.Client
}

// pendingRequest tracks the single outstanding authorization flow. The
// callback port is fixed, so at most one may exist; a repeated URL
// request while it is live returns the same URL instead of starting a
// second flow.
type pendingRequest struct {
	state     string
	authURL   string
	startedAt time.Time
	server    *CallbackServer
}

// Manager orchestrates the authorization lifecycle: it builds the
// authorization URL, runs the callback server, exchanges the code for a
// token, persists it through the TokenManager, and answers the tool
// layer's token/status/revoke requests.
type Manager struct {
	opts    Options
	oauth   *oauth2.Config
	tokens  *TokenManager
	machine *StateMachine
	logger  *slog.Logger

	mu      sync.Mutex
	pending *pendingRequest
	now     func() time.Time
}

// NewManager wires the orchestrator. The token endpoint is called with
// the authorization-code grant form-encoded, credentials in the body.
func NewManager(opts Options, tokens *TokenManager, machine *StateMachine, logger *slog.Logger) *Manager {
	return &Manager{
		opts: opts,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       opts.Scopes,
			RedirectURL:  fmt.Sprintf("http://localhost:%d%s", opts.CallbackPort, CallbackPath),
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.Endpoints.AuthURL,
				TokenURL:  opts.Endpoints.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		tokens:  tokens,
		machine: machine,
		logger:  logger,
		now:     time.Now,
	}
}

// AuthorizationURL starts an authorization flow and returns the URL the
// user must open. While a flow is already pending and unexpired, the
// same URL is returned and no second callback server is started. The
// HTTP exchange happens in the background; the caller is never blocked
// on user interaction.
func (m *Manager) AuthorizationURL() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		if m.now().Sub(m.pending.startedAt) < FlowTimeout {
			return m.pending.authURL, nil
		}

		// Stale flow: its background goroutine is about to time out (or
		// already has); make room for the new one.
		m.pending.server.Close()
		m.pending = nil
	}

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	server := NewCallbackServer(m.opts.CallbackPort, state, m.logger)
	if err := server.Start(); err != nil {
		m.machine.Fail(err.Error())
		return "", err
	}

	authURL := m.oauth.AuthCodeURL(state)

	m.pending = &pendingRequest{
		state:     state,
		authURL:   authURL,
		startedAt: m.now(),
		server:    server,
	}

	m.machine.StartFlow()
	m.logger.Info("authorization flow started",
		slog.String("redirect_uri", m.oauth.RedirectURL),
	)

	go m.completeFlow(server, state)

	return authURL, nil
}

// completeFlow runs in the background after AuthorizationURL returns:
// it waits for the callback, exchanges the code, and persists the
// token. Every failure becomes an Error transition; the callback server
// is closed and the pending request cleared in all outcomes.
func (m *Manager) completeFlow(server *CallbackServer, state string) {
	defer m.clearPending(state, server)

	result, err := server.Wait(context.Background(), FlowTimeout)
	if err != nil {
		m.failFlow(err)
		return
	}

	token, err := m.exchange(context.Background(), result.Code)
	if err != nil {
		m.failFlow(err)
		return
	}

	record, err := m.buildRecord(token)
	if err != nil {
		m.failFlow(err)
		return
	}

	if err := m.tokens.SetToken(record); err != nil {
		m.failFlow(fmt.Errorf("persisting token: %w", err))
		return
	}

	m.machine.Complete()
	m.logger.Info("authorization complete",
		slog.Time("expires_at", record.ExpiresAt),
		slog.String("scope", record.Scope),
	)
}

func (m *Manager) failFlow(err error) {
	m.machine.Fail(err.Error())
	m.logger.Warn("authorization flow failed", slog.String("error", err.Error()))
}

// clearPending drops the pending request if it still belongs to this
// flow. A newer flow may have replaced it already.
func (m *Manager) clearPending(state string, server *CallbackServer) {
	server.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil && m.pending.state == state {
		m.pending = nil
	}
}

// exchange posts the authorization-code grant to the token endpoint.
func (m *Manager) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if m.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.opts.HTTPClient)
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &FlowError{
				Kind: KindExchangeRejected,
				Detail: fmt.Sprintf("token endpoint returned %s: %s",
					retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body))),
				Err: err,
			}
		}

		return nil, &FlowError{Kind: KindNetworkError, Detail: "token exchange", Err: err}
	}

	return token, nil
}

// buildRecord converts an exchange response into a persistable record
// stamped with the current validation context.
func (m *Manager) buildRecord(token *oauth2.Token) (*TokenRecord, error) {
	if token.AccessToken == "" {
		return nil, flowErr(KindExchangeRejected, "token response missing access_token")
	}

	if token.Expiry.IsZero() {
		return nil, flowErr(KindExchangeRejected, "token response missing expires_in")
	}

	record := &TokenRecord{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
		CreatedAt:   m.now(),
		TokenType:   token.TokenType,
		Scope:       strings.Join(m.opts.Scopes, " "),
	}

	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		record.Scope = scope
	}

	m.tokens.Context().Stamp(record)

	return record, nil
}

// AccessToken returns a currently valid token for the tool layer. On
// failure the state machine is downgraded to Expired or NotAuthorized
// before the error is re-raised; on success it is corrected to
// Authorized if some earlier failure left it elsewhere.
func (m *Manager) AccessToken() (string, error) {
	token, err := m.tokens.AccessToken()
	if err != nil {
		switch KindOf(err) {
		case KindTokenExpired:
			m.machine.MarkExpired()
		default:
			m.machine.MarkNotAuthorized()
		}

		return "", err
	}

	m.machine.MarkAuthorized()

	return token, nil
}

// Status returns the reconciled authorization status, including the
// pending authorization URL only while a flow is genuinely pending.
func (m *Manager) Status() StatusInfo {
	info := m.machine.StatusInfo()

	m.mu.Lock()
	defer m.mu.Unlock()

	if info.State == StatePending && m.pending != nil {
		info.AuthURL = m.pending.authURL
	}

	return info
}

// Revoke clears the persisted token, closes any live callback server,
// and forces the state to NotAuthorized. The provider is not called:
// revocation is local only.
func (m *Manager) Revoke() error {
	m.mu.Lock()
	if m.pending != nil {
		m.pending.server.Close()
		m.pending = nil
	}
	m.mu.Unlock()

	if err := m.tokens.ClearToken(); err != nil {
		return err
	}

	m.machine.Revoke()
	m.logger.Info("authorization revoked, token deleted")

	return nil
}

// Close tears down any live callback server without touching the token.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		m.pending.server.Close()
		m.pending = nil
	}
}

// randomState returns a 256-bit CSRF state token.
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
