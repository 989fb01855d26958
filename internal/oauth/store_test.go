package oauth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testRecord(vc ValidationContext, expiresAt time.Time) *TokenRecord {
	rec := &TokenRecord{
		AccessToken: "tok-abc123",
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
		Scope:       "tasks:read tasks:write",
		TokenType:   "bearer",
	}
	vc.Stamp(rec)
	return rec
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	s := NewStore(path)
	vc := NewValidationContext("client1", "secret1", "ticktick")

	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.Save(testRecord(vc, expiresAt)))

	rec := s.Load()
	require.NotNil(t, rec)
	assert.Equal(t, "tok-abc123", rec.AccessToken)
	assert.True(t, expiresAt.Equal(rec.ExpiresAt))
	assert.Equal(t, "client1", rec.ClientID)
	assert.Equal(t, "ticktick", rec.Region)
	assert.Equal(t, vc.SecretFingerprint, rec.SecretFingerprint)
}

func TestStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "dir", "token.json")
	s := NewStore(path)
	vc := NewValidationContext("client1", "secret1", "ticktick")
	require.NoError(t, s.Save(testRecord(vc, time.Now().Add(time.Hour))))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

// The on-disk format is a documented external surface: users inspect and
// delete the file by hand.
func TestStore_WireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := NewStore(path)
	vc := NewValidationContext("client1", "secret1", "ticktick")
	require.NoError(t, s.Save(testRecord(vc, time.Now().Add(time.Hour))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	body := string(data)
	assert.Equal(t, "tok-abc123", gjson.Get(body, "access_token").String())
	assert.True(t, gjson.Get(body, "expires_at").Exists())
	assert.True(t, gjson.Get(body, "created_at").Exists())
	assert.Equal(t, "client1", gjson.Get(body, "client_id").String())
	assert.True(t, gjson.Get(body, "client_secret_fingerprint").Exists())
	assert.Equal(t, "ticktick", gjson.Get(body, "region").String())

	// The fingerprint must never be the raw secret.
	assert.NotEqual(t, "secret1", gjson.Get(body, "client_secret_fingerprint").String())
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	assert.Nil(t, s.Load())
}

func TestStore_LoadCorruptFile(t *testing.T) {
	cases := map[string]string{
		"not json":             "{not json at all",
		"empty object":         "{}",
		"missing access_token": `{"expires_at":"2030-01-01T00:00:00Z"}`,
		"missing expires_at":   `{"access_token":"tok"}`,
		"truncated":            `{"access_token":"tok","expires`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			assert.Nil(t, NewStore(path).Load())
		})
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := NewStore(path)
	vc := NewValidationContext("client1", "secret1", "ticktick")
	require.NoError(t, s.Save(testRecord(vc, time.Now().Add(time.Hour))))

	require.NoError(t, s.Delete())
	assert.Nil(t, s.Load())

	// Deleting an already-absent file succeeds.
	require.NoError(t, s.Delete())
}

func TestStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "token.json"))
	vc := NewValidationContext("client1", "secret1", "ticktick")
	require.NoError(t, s.Save(testRecord(vc, time.Now().Add(time.Hour))))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}
