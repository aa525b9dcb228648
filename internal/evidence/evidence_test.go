package evidence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "sentinel.db"), filepath.Join(dir, "evidence_store"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)

	path, err := s.WritePayload("ev-1", "d.E01", []byte("payload"))
	require.NoError(t, err)

	ev := Evidence{
		EvidenceID:        "ev-1",
		CaseID:            "case-1",
		Description:       "disk image",
		AcquisitionMethod: "dd",
		FileName:          "d.E01",
		SHA256:            "abc123",
		CreatedAt:         "2026-07-31T00:00:00.000000Z",
	}
	require.NoError(t, s.Insert(ev, path))

	got, err := s.Get("ev-1")
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	gotPath, err := s.GetFilePath("ev-1")
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWritePayloadRejectsOverwrite(t *testing.T) {
	s := openTestStore(t)
	_, err := s.WritePayload("ev-1", "d.E01", []byte("first"))
	require.NoError(t, err)

	_, err = s.WritePayload("ev-1", "d.E01", []byte("second"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInsertRejectsDuplicateEvidenceID(t *testing.T) {
	s := openTestStore(t)
	ev := Evidence{EvidenceID: "ev-1", CaseID: "case-1"}
	require.NoError(t, s.Insert(ev, "/tmp/x"))
	err := s.Insert(ev, "/tmp/y")
	assert.Error(t, err)
}

func TestListByCase(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(Evidence{EvidenceID: "a", CaseID: "case-1"}, "/tmp/a"))
	require.NoError(t, s.Insert(Evidence{EvidenceID: "b", CaseID: "case-1"}, "/tmp/b"))
	require.NoError(t, s.Insert(Evidence{EvidenceID: "c", CaseID: "case-2"}, "/tmp/c"))

	got, err := s.ListByCase("case-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
