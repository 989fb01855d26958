package oauth

import (
	"fmt"
	"log/slog"
	"time"
)

// ExpiryBuffer is subtracted from a token's expiry when judging
// freshness, so a token cannot expire mid-request.
const ExpiryBuffer = 5 * time.Minute

// TokenManager owns token validity. Every probe re-reads the file: the
// token is process-external state that can change underneath us (manual
// deletion, another instance), so nothing is memoized.
type TokenManager struct {
	store  *Store
	vc     ValidationContext
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenManager creates a manager bound to vc. Any persisted token
// that does not match vc is deleted immediately: it belongs to rotated
// credentials or another region and must never be returned.
func NewTokenManager(store *Store, vc ValidationContext, logger *slog.Logger) *TokenManager {
	m := &TokenManager{
		store:  store,
		vc:     vc,
		logger: logger,
		now:    time.Now,
	}

	if rec := store.Load(); rec != nil && !vc.MatchesRecord(rec) {
		logger.Warn("discarding persisted token bound to different credentials",
			slog.String("token_client_id", rec.ClientID),
			slog.String("token_region", rec.Region),
			slog.String("configured_client_id", vc.ClientID),
			slog.String("configured_region", vc.Region),
		)

		if err := store.Delete(); err != nil {
			logger.Error("deleting stale token file", slog.String("error", err.Error()))
		}
	}

	return m
}

// Context returns the validation context tokens are bound to.
func (m *TokenManager) Context() ValidationContext {
	return m.vc
}

// load reads the persisted record and applies the binding check. A
// record minted under foreign credentials is treated exactly like an
// absent one.
func (m *TokenManager) load() *TokenRecord {
	rec := m.store.Load()
	if rec == nil || !m.vc.MatchesRecord(rec) {
		return nil
	}

	return rec
}

// fresh reports whether rec is still usable, applying the safety buffer.
func (m *TokenManager) fresh(rec *TokenRecord) bool {
	return m.now().Before(rec.ExpiresAt.Add(-ExpiryBuffer))
}

// AccessToken returns a currently valid access token, or a FlowError of
// kind NoToken or TokenExpired.
func (m *TokenManager) AccessToken() (string, error) {
	rec := m.load()
	if rec == nil {
		return "", flowErr(KindNoToken, "no access token available")
	}

	if !m.fresh(rec) {
		return "", flowErr(KindTokenExpired,
			fmt.Sprintf("access token expired at %s", rec.ExpiresAt.Format(time.RFC3339)))
	}

	return rec.AccessToken, nil
}

// SetToken persists a freshly obtained record. The caller stamps it
// with the current validation context before handing it over.
func (m *TokenManager) SetToken(rec *TokenRecord) error {
	if !m.vc.MatchesRecord(rec) {
		return fmt.Errorf("token record not stamped with the current validation context")
	}

	return m.store.Save(rec)
}

// HasToken reports whether a context-matching record is persisted,
// regardless of freshness.
func (m *TokenManager) HasToken() bool {
	return m.load() != nil
}

// IsTokenValid reports whether a context-matching, unexpired record is
// persisted.
func (m *TokenManager) IsTokenValid() bool {
	rec := m.load()
	return rec != nil && m.fresh(rec)
}

// ClearToken deletes the persisted record.
func (m *TokenManager) ClearToken() error {
	return m.store.Delete()
}
