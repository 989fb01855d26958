package oauth

import (
	"crypto/sha256"
	"encoding/hex"
)

// ValidationContext identifies the OAuth client credentials and region a
// token must have been minted under to be usable. The secret is hashed
// once at construction so the raw value never reaches disk and is never
// re-hashed on the validation path.
type ValidationContext struct {
	ClientID          string
	SecretFingerprint string
	Region            string
}

// NewValidationContext builds a context from the configured credentials.
// Pure function, no I/O.
func NewValidationContext(clientID, clientSecret, region string) ValidationContext {
	sum := sha256.Sum256([]byte(clientSecret))

	return ValidationContext{
		ClientID:          clientID,
		SecretFingerprint: hex.EncodeToString(sum[:]),
		Region:            region,
	}
}

// MatchesRecord reports whether rec was minted under this context. A
// token from different credentials or a different region must never be
// reused; after a credential rotation it would silently read another
// account's data.
func (c ValidationContext) MatchesRecord(rec *TokenRecord) bool {
	return rec != nil &&
		rec.ClientID == c.ClientID &&
		rec.SecretFingerprint == c.SecretFingerprint &&
		rec.Region == c.Region
}

// Stamp writes the binding fields onto a freshly obtained record before
// it is persisted.
func (c ValidationContext) Stamp(rec *TokenRecord) {
	rec.ClientID = c.ClientID
	rec.SecretFingerprint = c.SecretFingerprint
	rec.Region = c.Region
}
