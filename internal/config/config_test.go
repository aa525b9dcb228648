package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathLayout(t *testing.T) {
	base := filepath.Join("tmp", "custodyledger-test")
	dataDir := filepath.Join(base, "data")

	assert.Equal(t, filepath.Join(dataDir, "ledger.jsonl"), LedgerPath(dataDir))
	assert.Equal(t, filepath.Join(dataDir, "sentinel.db"), EvidenceDBPath(dataDir))
	assert.Equal(t, filepath.Join(dataDir, "keys"), KeysDir(dataDir))
	assert.Equal(t, filepath.Join(dataDir, "keys", "evidence.fernet.key"), CipherKeyPath(dataDir))

	// evidence_store is a sibling of data/, not nested under it.
	assert.Equal(t, filepath.Join(base, "evidence_store"), EvidenceStoreDir(dataDir))
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}
