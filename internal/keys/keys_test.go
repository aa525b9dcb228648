package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	s, err := NewFileSigner(t.TempDir())
	require.NoError(t, err)

	payload := []byte("canonical-bytes")
	sig, err := s.Sign("officer1", payload)
	require.NoError(t, err)

	pub, err := s.PublicKeyB64("officer1")
	require.NoError(t, err)

	assert.True(t, s.Verify(pub, sig, payload))
	assert.False(t, s.Verify(pub, sig, []byte("tampered")))
}

func TestLoadOrCreateIsStable(t *testing.T) {
	s, err := NewFileSigner(t.TempDir())
	require.NoError(t, err)

	pub1, err := s.PublicKeyB64("alice")
	require.NoError(t, err)
	pub2, err := s.PublicKeyB64("alice")
	require.NoError(t, err)
	assert.Equal(t, pub1, pub2)
}

func TestKeyFilePersistedAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSigner(dir)
	require.NoError(t, err)

	_, err = s.Sign("bob", []byte("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-key-")
		if e.Name() == "bob.ed25519.pem" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	s, err := NewFileSigner(t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.Verify("not-base64!!", []byte("sig"), []byte("payload")))
	assert.False(t, s.Verify("", nil, nil))
}

func TestInvalidUserIDRejected(t *testing.T) {
	s, err := NewFileSigner(t.TempDir())
	require.NoError(t, err)
	_, err = s.Sign(filepath.Join("..", "escape"), []byte("x"))
	assert.Error(t, err)
}
