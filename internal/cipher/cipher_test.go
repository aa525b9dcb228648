package cipher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "evidence.fernet.key"))
	require.NoError(t, err)

	plaintext := []byte("this is the evidentiary payload")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Contains(t, string(ciphertext), Prefix)
	assert.NotContains(t, string(ciphertext), string(plaintext))

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptLegacyPlaintextPassesThrough(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "evidence.fernet.key"))
	require.NoError(t, err)

	legacy := []byte("never encrypted")
	got, err := c.Decrypt(legacy)
	require.NoError(t, err)
	assert.Equal(t, legacy, got)
}

func TestDecryptRejectsTamperedMAC(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "evidence.fernet.key"))
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)
	tampered := []byte(string(ciphertext))
	tampered[len(tampered)-1] ^= 0xFF

	_, err = c.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestMasterKeyPersistedAndReloaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.fernet.key")
	c1, err := Load(path)
	require.NoError(t, err)
	c2, err := Load(path)
	require.NoError(t, err)

	ciphertext, err := c1.Encrypt([]byte("persisted key material"))
	require.NoError(t, err)
	got, err := c2.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted key material"), got)
}
