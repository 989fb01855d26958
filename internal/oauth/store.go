package oauth

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	// tokenDirPerm is the permission mode for the token directory.
	tokenDirPerm = fs.FileMode(0o700)

	// tokenFilePerm is the permission mode for the token file.
	tokenFilePerm = fs.FileMode(0o600)
)

// TokenRecord is the persisted access token plus the binding metadata
// that ties it to the credentials and region it was minted under.
type TokenRecord struct {
	AccessToken       string    `json:"access_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	Scope             string    `json:"scope,omitempty"`
	TokenType         string    `json:"token_type,omitempty"`
	ClientID          string    `json:"client_id"`
	SecretFingerprint string    `json:"client_secret_fingerprint"`
	Region            string    `json:"region"`
}

// Store reads and writes the single token record at a fixed path. The
// file is the sole owner of the record: there is no in-memory copy, so
// external edits and deletions are always observed.
type Store struct {
	path string
}

// NewStore creates a store for the token file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Save serializes rec and writes it with owner-only permissions. The
// write goes through a temp file and rename so a crash mid-write cannot
// leave a half-written record.
func (s *Store) Save(rec *TokenRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), tokenDirPerm); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing token record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, tokenFilePerm); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}

	return nil
}

// Load returns the persisted record, or nil if the file is missing,
// unreadable, malformed, or lacks the mandatory access_token/expires_at
// fields. Corruption reads as "no token", never as a fatal error: the
// file can be edited or deleted externally at any time.
func (s *Store) Load() *TokenRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	rec := &TokenRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil
	}

	if rec.AccessToken == "" || rec.ExpiresAt.IsZero() {
		return nil
	}

	return rec
}

// Delete removes the token file. Removing an absent file is a no-op.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting token file: %w", err)
	}

	return nil
}
