// Package keys implements per-actor Ed25519 key custody. Spec §9 records the
// prototype choice made here explicitly: the service holds users' private
// keys on their behalf rather than integrating a remote signer or HSM. The
// Signer interface is the seam where that choice can later be swapped out
// without touching the ledger (internal/ledger depends only on Signer).
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"crypto/x509"
)

// Signer is the narrow crypto seam C7 (the ledger) depends on. A
// hardware-backed or remote signer can implement this without the ledger
// code changing.
type Signer interface {
	PublicKeyB64(userID string) (string, error)
	Sign(userID string, payload []byte) ([]byte, error)
	Verify(pubKeyB64 string, sig []byte, payload []byte) bool
}

// FileSigner is the prototype Signer: one Ed25519 keypair per user,
// persisted unencrypted as PKCS#8 PEM under baseDir/<user_id>.ed25519.pem.
type FileSigner struct {
	baseDir string
}

// NewFileSigner returns a FileSigner rooted at baseDir, creating it if
// necessary.
func NewFileSigner(baseDir string) (*FileSigner, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("keys: create key directory: %w", err)
	}
	return &FileSigner{baseDir: baseDir}, nil
}

func (s *FileSigner) keyPath(userID string) (string, error) {
	if userID == "" || filepath.Base(userID) != userID {
		return "", fmt.Errorf("keys: invalid user id %q", userID)
	}
	return filepath.Join(s.baseDir, userID+".ed25519.pem"), nil
}

// loadOrCreate loads the user's key if present, else generates and
// atomically persists a new one (write-to-temp then rename, so a crash
// mid-write never leaves a half-written key file behind).
func (s *FileSigner) loadOrCreate(userID string) (ed25519.PrivateKey, error) {
	path, err := s.keyPath(userID)
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(path); err == nil { // #nosec G304 -- internal key store path
		return decodePrivateKey(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: read key file: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate key: %w", err)
	}
	if err := s.persistAtomic(path, priv); err != nil {
		// Another request may have created it concurrently; re-read rather
		// than fail the caller.
		if data, rerr := os.ReadFile(path); rerr == nil { // #nosec G304
			return decodePrivateKey(data)
		}
		return nil, err
	}
	return priv, nil
}

func (s *FileSigner) persistAtomic(path string, priv ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("keys: marshal PKCS#8: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	pemBytes := pem.EncodeToMemory(block)

	tmp, err := os.CreateTemp(s.baseDir, ".tmp-key-*")
	if err != nil {
		return fmt.Errorf("keys: create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(pemBytes); err != nil {
		tmp.Close()
		return fmt.Errorf("keys: write temp key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("keys: chmod temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keys: close temp key file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("keys: rename into place: %w", err)
	}
	return nil
}

func decodePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse PKCS#8: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keys: key is not Ed25519")
	}
	return priv, nil
}

// PublicKeyB64 returns the user's raw 32-byte Ed25519 public key,
// base64-encoded with no PEM wrapper, creating the keypair if absent.
func (s *FileSigner) PublicKeyB64(userID string) (string, error) {
	priv, err := s.loadOrCreate(userID)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub), nil
}

// Sign produces a 64-byte Ed25519 signature over payload, creating the
// user's keypair if absent.
func (s *FileSigner) Sign(userID string, payload []byte) ([]byte, error) {
	priv, err := s.loadOrCreate(userID)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, payload), nil
}

// Verify reports whether sig is a valid Ed25519 signature over payload
// under pubKeyB64. Any malformed input yields false, never an error.
func (s *FileSigner) Verify(pubKeyB64 string, sig []byte, payload []byte) bool {
	pub, err := base64.StdEncoding.DecodeString(pubKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}
