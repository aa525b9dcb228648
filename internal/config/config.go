// Package config holds the small set of settings custodyd needs to wire up
// a Service: where data lives, how verbose to log, and the fixed strings a
// court report is stamped with.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the effective configuration of one custodyd process.
type Config struct {
	DataDir      string   `json:"data_dir"`
	LogLevel     string   `json:"log_level"`
	Jurisdiction string   `json:"jurisdiction"`
	LegalBasis   []string `json:"legal_basis"`
	Encrypt      bool     `json:"encrypt"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir returns "<user home>/.custodyledger/data" (spec §6's
// "<base>/data"), falling back to a relative directory if the home
// directory can't be resolved. evidence_store/ lives as a sibling of this
// directory, under "<base>", not under it.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".custodyledger", "data")
	}
	return filepath.Join(home, ".custodyledger", "data")
}

// Default returns the baseline configuration before flags are applied.
func Default() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     "info",
		Jurisdiction: "Unspecified Jurisdiction",
		LegalBasis:   []string{"Federal Rules of Evidence 901"},
		Encrypt:      false,
	}
}

// Validate rejects configs with an empty data directory, an unknown log
// level, or no legal basis strings at all.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if strings.TrimSpace(cfg.Jurisdiction) == "" {
		return errors.New("jurisdiction is required")
	}
	if len(cfg.LegalBasis) == 0 {
		return errors.New("at least one legal_basis string is required")
	}
	return nil
}

// LedgerPath returns the path of the hash-chained ledger file under dataDir.
func LedgerPath(dataDir string) string { return filepath.Join(dataDir, "ledger.jsonl") }

// EvidenceDBPath returns the path of the evidence metadata store under
// dataDir.
func EvidenceDBPath(dataDir string) string { return filepath.Join(dataDir, "sentinel.db") }

// EvidenceStoreDir returns the directory payload files are written under.
// It is a sibling of dataDir, not a child of it: dataDir holds the
// relational-ish state (ledger, metadata db, keys), while payload bytes
// live next to it.
func EvidenceStoreDir(dataDir string) string {
	return filepath.Join(filepath.Dir(dataDir), "evidence_store")
}

// KeysDir returns the directory per-user signing keys are stored under.
func KeysDir(dataDir string) string { return filepath.Join(dataDir, "keys") }

// CipherKeyPath returns the path of the envelope-encryption master key,
// alongside the per-user signing keys under KeysDir.
func CipherKeyPath(dataDir string) string { return filepath.Join(KeysDir(dataDir), "evidence.fernet.key") }
