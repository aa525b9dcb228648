package hashtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumBytesKnownVector(t *testing.T) {
	// sha256("hello"), the digest the S1 service scenario also checks.
	got := SumBytes([]byte("hello"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestSumFileMatchesSumBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	data := make([]byte, 3*chunkSize+17)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	want := SumBytes(data)
	got, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNowISOIsUTCAndParses(t *testing.T) {
	ts := NowISO()
	parsed, err := time.Parse("2006-01-02T15:04:05.000000Z07:00", ts)
	require.NoError(t, err)
	_, offset := parsed.Zone()
	assert.Equal(t, 0, offset)
}
