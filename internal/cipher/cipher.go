// Package cipher implements the optional envelope encryption of evidence
// payloads at rest (spec §4.5). The construction is AES-128-CBC
// encrypt-then-MAC with HMAC-SHA256 — MAC-then-encrypt is explicitly
// forbidden by the spec because it lets an attacker probe padding without
// ever being caught by the MAC.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// Prefix distinguishes TSENC1-wrapped ciphertext from legacy plaintext
// payloads written before encryption was enabled.
const Prefix = "TSENC1:"

// ErrCryptoFailure reports a failed authenticated decrypt: a malformed
// envelope, a bad MAC, or invalid padding.
var ErrCryptoFailure = errors.New("cipher: MAC verification failed")

const (
	masterKeySize = 32
	ivSize        = aes.BlockSize
	macSize       = sha256.Size
)

// Cipher envelope-encrypts and decrypts evidence payloads using a single
// master secret persisted on disk.
type Cipher struct {
	encKey []byte
	macKey []byte
}

// Load reads (or, on first use, generates and persists) the 32-byte master
// secret at keyPath, base64-urlsafe encoded on disk, and derives independent
// AES and HMAC subkeys from it via HKDF-SHA256. Splitting one master secret
// into two purpose-bound subkeys this way — rather than reusing the same
// bytes for both the cipher and the MAC — is the standard construction for
// composite encrypt-then-MAC schemes.
func Load(keyPath string) (*Cipher, error) {
	master, err := loadOrCreateMasterKey(keyPath)
	if err != nil {
		return nil, err
	}

	encKey := make([]byte, masterKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("custodyledger evidence-cipher enc")), encKey); err != nil {
		return nil, fmt.Errorf("cipher: derive enc key: %w", err)
	}
	macKey := make([]byte, masterKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("custodyledger evidence-cipher mac")), macKey); err != nil {
		return nil, fmt.Errorf("cipher: derive mac key: %w", err)
	}
	return &Cipher{encKey: encKey, macKey: macKey}, nil
}

func loadOrCreateMasterKey(keyPath string) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil { // #nosec G304 -- internal key store path
		decoded, derr := base64.URLEncoding.DecodeString(string(data))
		if derr != nil || len(decoded) != masterKeySize {
			return nil, fmt.Errorf("cipher: malformed master key at %s", keyPath)
		}
		return decoded, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cipher: read master key: %w", err)
	}

	master := make([]byte, masterKeySize)
	if _, err := rand.Read(master); err != nil {
		return nil, fmt.Errorf("cipher: generate master key: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(master)

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("cipher: create key directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(keyPath), ".tmp-evidence-key-*")
	if err != nil {
		return nil, fmt.Errorf("cipher: create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("cipher: write temp key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("cipher: chmod temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("cipher: close temp key file: %w", err)
	}
	if err := os.Rename(tmpPath, keyPath); err != nil {
		// Concurrent first-use: fall through and re-read what won the race.
		if data, rerr := os.ReadFile(keyPath); rerr == nil { // #nosec G304
			decoded, derr := base64.URLEncoding.DecodeString(string(data))
			if derr == nil && len(decoded) == masterKeySize {
				return decoded, nil
			}
		}
		return nil, fmt.Errorf("cipher: rename master key into place: %w", err)
	}
	return master, nil
}

// Encrypt wraps plaintext as TSENC1:base64(iv || ciphertext || hmac).
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.encKey[:16])
	if err != nil {
		return nil, fmt.Errorf("cipher: new AES cipher: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cipher: generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	envelope := make([]byte, 0, ivSize+len(ciphertext)+macSize)
	envelope = append(envelope, iv...)
	envelope = append(envelope, ciphertext...)
	envelope = append(envelope, tag...)

	out := Prefix + base64.StdEncoding.EncodeToString(envelope)
	return []byte(out), nil
}

// Decrypt unwraps payload. If payload does not carry the TSENC1 prefix it
// is treated as legacy plaintext, per §4.5's backward-compatibility rule.
func (c *Cipher) Decrypt(payload []byte) ([]byte, error) {
	if !hasPrefix(payload) {
		return payload, nil
	}
	b64 := payload[len(Prefix):]
	envelope, err := base64.StdEncoding.DecodeString(string(b64))
	if err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrCryptoFailure, err)
	}
	if len(envelope) < ivSize+macSize {
		return nil, fmt.Errorf("%w: envelope too short", ErrCryptoFailure)
	}

	iv := envelope[:ivSize]
	tag := envelope[len(envelope)-macSize:]
	ciphertext := envelope[ivSize : len(envelope)-macSize]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid ciphertext length", ErrCryptoFailure)
	}

	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	want := mac.Sum(nil)
	if !hmac.Equal(want, tag) {
		return nil, ErrCryptoFailure
	}

	block, err := aes.NewCipher(c.encKey[:16])
	if err != nil {
		return nil, fmt.Errorf("cipher: new AES cipher: %w", err)
	}
	plainPadded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plainPadded, ciphertext)

	return pkcs7Unpad(plainPadded)
}

func hasPrefix(payload []byte) bool {
	return len(payload) >= len(Prefix) && string(payload[:len(Prefix)]) == Prefix
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCryptoFailure)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrCryptoFailure)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid padding", ErrCryptoFailure)
		}
	}
	return data[:len(data)-padLen], nil
}
