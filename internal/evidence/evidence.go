// Package evidence implements the relational metadata plus content-addressed
// file storage for intake records (spec §4.4). Metadata lives in a
// single-file embedded store (bbolt, two buckets standing in for the two
// tables the spec names); payload bytes live on the filesystem under
// <store_dir>/<evidence_id>/<file_name>, written create-exclusive so an
// overwrite is always an error.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when an evidence_id is unknown.
var ErrNotFound = errors.New("evidence: not found")

// ErrAlreadyExists is returned when a payload file already exists at the
// target path.
var ErrAlreadyExists = errors.New("evidence: payload file already exists")

var (
	bucketEvidence     = []byte("evidence")
	bucketEvidenceFile = []byte("evidence_file")
)

// Evidence is the immutable metadata record created at intake.
type Evidence struct {
	EvidenceID        string `json:"evidence_id"`
	CaseID            string `json:"case_id"`
	Description       string `json:"description"`
	SourceDevice      string `json:"source_device,omitempty"`
	AcquisitionMethod string `json:"acquisition_method"`
	FileName          string `json:"file_name"`
	SHA256            string `json:"sha256"`
	CreatedAt         string `json:"created_at"`
}

// Store is the relational-metadata + content-addressed-file backing for
// evidence records.
type Store struct {
	db       *bbolt.DB
	storeDir string
}

// Open opens (creating if absent) the bbolt database at dbPath and roots
// payload files under storeDir.
func Open(dbPath, storeDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create db directory: %w", err)
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create store directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("evidence: open db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvidence); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEvidenceFile); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("evidence: init buckets: %w", err)
	}

	return &Store{db: db, storeDir: storeDir}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PayloadDir returns the directory a given evidence_id's payload lives in.
func (s *Store) PayloadDir(evidenceID string) string {
	return filepath.Join(s.storeDir, evidenceID)
}

// WritePayload writes data create-exclusively to
// <store_dir>/<evidence_id>/<file_name> and returns the absolute path.
// Overwriting an existing payload is always an error.
func (s *Store) WritePayload(evidenceID, fileName string, data []byte) (string, error) {
	if filepath.Base(fileName) != fileName || fileName == "" {
		return "", fmt.Errorf("evidence: invalid file name %q", fileName)
	}
	dir := s.PayloadDir(evidenceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("evidence: create payload directory: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, fileName))
	if err != nil {
		return "", fmt.Errorf("evidence: resolve payload path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("evidence: create payload file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("evidence: write payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("evidence: sync payload: %w", err)
	}
	return path, nil
}

// Insert transactionally records ev's metadata and its file_path, failing
// if evidence_id already exists.
func (s *Store) Insert(ev Evidence, filePath string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		eb := tx.Bucket(bucketEvidence)
		if eb.Get([]byte(ev.EvidenceID)) != nil {
			return fmt.Errorf("evidence: evidence_id %q already exists", ev.EvidenceID)
		}
		evBytes, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("evidence: marshal evidence: %w", err)
		}
		if err := eb.Put([]byte(ev.EvidenceID), evBytes); err != nil {
			return err
		}

		fb := tx.Bucket(bucketEvidenceFile)
		return fb.Put([]byte(ev.EvidenceID), []byte(filePath))
	})
}

// Get looks up evidence by id, returning ErrNotFound if absent.
func (s *Store) Get(evidenceID string) (Evidence, error) {
	var ev Evidence
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketEvidence).Get([]byte(evidenceID))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &ev)
	})
	return ev, err
}

// GetFilePath returns the absolute payload path for evidenceID.
func (s *Store) GetFilePath(evidenceID string) (string, error) {
	var path string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketEvidenceFile).Get([]byte(evidenceID))
		if raw == nil {
			return ErrNotFound
		}
		path = string(raw)
		return nil
	})
	return path, err
}

// ListByCase returns all evidence rows for caseID, in arbitrary order.
// Callers needing chronological order should sort by CreatedAt.
func (s *Store) ListByCase(caseID string) ([]Evidence, error) {
	var out []Evidence
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvidence).ForEach(func(_, raw []byte) error {
			var ev Evidence
			if err := json.Unmarshal(raw, &ev); err != nil {
				return err
			}
			if ev.CaseID == caseID {
				out = append(out, ev)
			}
			return nil
		})
	})
	return out, err
}
