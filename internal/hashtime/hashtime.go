// Package hashtime provides the two primitives every other component
// anchors to: content hashing and wall-clock timestamps.
package hashtime

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"
)

// chunkSize is the minimum streaming read size required by the spec so a
// multi-gigabyte evidence payload never has to be loaded whole.
const chunkSize = 1 << 20 // 1 MiB

// SumBytes returns the lowercase hex SHA-256 digest of b.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumFile streams path through SHA-256 in chunkSize reads and returns the
// lowercase hex digest. It never buffers the whole file in memory.
func SumFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- caller-controlled evidence path
	if err != nil {
		return "", err
	}
	defer f.Close()

	return SumReader(f)
}

// SumReader streams r through SHA-256 in chunkSize reads and returns the
// lowercase hex digest.
func SumReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	br := bufio.NewReaderSize(r, chunkSize)
	if _, err := io.CopyBuffer(h, br, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NowISO returns the current UTC instant as RFC 3339 with fractional
// seconds at microsecond resolution, e.g. "2026-07-31T12:00:00.123456Z".
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}
