package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/traysentinel/custodyledger/internal/keys"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// openMaybeCorrupt opens a Ledger over an existing (possibly tampered)
// ledger file. A malformed line is itself evidence of tampering, so a
// non-nil error here is an acceptable signal alongside ValidateChain()
// returning false.
func openMaybeCorrupt(t *testing.T, path string) (*Ledger, error) {
	t.Helper()
	signer, err := keys.NewFileSigner(filepath.Join(t.TempDir(), "keys"))
	require.NoError(t, err)
	return Open(path, signer, zerolog.Nop())
}
