// Package service implements the eight custody-ledger verbs (spec §4.9) as
// plain Go methods on Service, each gated by the authorization matrix and
// returning the typed errors from §7 so a thin transport layer — never
// built here — can map them to status codes via Code.
package service

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/cipher"
	"github.com/traysentinel/custodyledger/internal/evidence"
	"github.com/traysentinel/custodyledger/internal/hashtime"
	"github.com/traysentinel/custodyledger/internal/keys"
	"github.com/traysentinel/custodyledger/internal/ledger"
	"github.com/traysentinel/custodyledger/internal/report"
)

// Service wires the five core components behind the eight verbs. Cipher is
// optional: a nil Cipher means payloads are stored as plaintext.
type Service struct {
	Evidence *evidence.Store
	Ledger   *ledger.Ledger
	Signer   keys.Signer
	Cipher   *cipher.Cipher
	Authz    *authz.Checker
	Reporter *report.Reporter
}

// New wires a Service from its components. reportJurisdiction/legalBasis
// feed the Reporter (spec §4.8).
func New(store *evidence.Store, l *ledger.Ledger, signer keys.Signer, c *cipher.Cipher, jurisdiction string, legalBasis []string) *Service {
	return &Service{
		Evidence: store,
		Ledger:   l,
		Signer:   signer,
		Cipher:   c,
		Authz:    authz.NewChecker(),
		Reporter: &report.Reporter{Ledger: l, Evidence: store, Jurisdiction: jurisdiction, LegalBasis: legalBasis},
	}
}

// authorize enforces the identity contract (spec §6): a zero-value
// Principal is ErrAuthRequired, an unrecognized role is ErrAuthUnknown,
// otherwise the permission matrix decides.
func (s *Service) authorize(principal authz.Principal, action authz.Action) error {
	if principal.UserID == "" {
		return ErrAuthRequired
	}
	if !authz.KnownRole(principal.Role) {
		return fmt.Errorf("%w: %q", ErrAuthUnknown, principal.Role)
	}
	return s.Authz.Allowed(principal.Role, action)
}

// VerifyResult is the return value of Verify.
type VerifyResult struct {
	Expected    string `json:"expected_sha256"`
	Actual      string `json:"actual_sha256"`
	IntegrityOK bool   `json:"integrity_ok"`
}

// HealthResult is the return value of Health.
type HealthResult struct {
	ChainValid  bool   `json:"chain_valid"`
	ChainReason string `json:"chain_reason"`
}

// Intake registers a new piece of evidence: hashes payload, stores it
// (encrypted if a Cipher is configured), records the metadata row, and
// appends a self-endorsed INTAKE event (spec §4.9).
func (s *Service) Intake(principal authz.Principal, caseID, description, sourceDevice, acquisitionMethod, fileName string, payload []byte) (evidence.Evidence, error) {
	if err := s.authorize(principal, authz.RegisterEvidence); err != nil {
		return evidence.Evidence{}, err
	}

	sum := hashtime.SumBytes(payload)
	stored := payload
	if s.Cipher != nil {
		enc, err := s.Cipher.Encrypt(payload)
		if err != nil {
			return evidence.Evidence{}, fmt.Errorf("service: encrypt payload: %w", err)
		}
		stored = enc
	}

	evidenceID := uuid.NewString()
	path, err := s.Evidence.WritePayload(evidenceID, fileName, stored)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("service: write payload: %w", err)
	}

	ev := evidence.Evidence{
		EvidenceID:        evidenceID,
		CaseID:            caseID,
		Description:       description,
		SourceDevice:      sourceDevice,
		AcquisitionMethod: acquisitionMethod,
		FileName:          fileName,
		SHA256:            sum,
		CreatedAt:         hashtime.NowISO(),
	}
	if err := s.Evidence.Insert(ev, path); err != nil {
		return evidence.Evidence{}, fmt.Errorf("service: insert evidence: %w", err)
	}

	details := map[string]any{"case_id": caseID, "file_name": fileName}
	if _, err := s.Ledger.Append(evidenceID, authz.Intake, principal, sum, &sum, true, details, true); err != nil {
		return evidence.Evidence{}, fmt.Errorf("service: append intake event: %w", err)
	}
	return ev, nil
}

// RecordEvent appends a custody event of actionType against an existing
// evidence row (spec §4.9).
func (s *Service) RecordEvent(principal authz.Principal, evidenceID string, actionType authz.ActionType, details map[string]any, presentedSHA256 *string, endorse bool) (ledger.Event, error) {
	if err := s.authorize(principal, authz.RecordEvent); err != nil {
		return ledger.Event{}, err
	}
	ev, err := s.Evidence.Get(evidenceID)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("service: lookup evidence %s: %w", evidenceID, err)
	}

	integrityOK := true
	if presentedSHA256 != nil {
		integrityOK = *presentedSHA256 == ev.SHA256
	}
	return s.Ledger.Append(evidenceID, actionType, principal, ev.SHA256, presentedSHA256, integrityOK, details, endorse)
}

// Verify rehashes the evidence file on disk (decrypting first if it carries
// the cipher's prefix) and records the result as a self-endorsed ACCESS
// event. An integrity mismatch is never an error — it is written into the
// ledger and surfaced as IntegrityOK=false (spec §7).
func (s *Service) Verify(principal authz.Principal, evidenceID string) (VerifyResult, error) {
	if err := s.authorize(principal, authz.VerifyIntegrity); err != nil {
		return VerifyResult{}, err
	}
	ev, err := s.Evidence.Get(evidenceID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("service: lookup evidence %s: %w", evidenceID, err)
	}
	path, err := s.Evidence.GetFilePath(evidenceID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("service: lookup payload path: %w", err)
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- internal store path
	if err != nil {
		return VerifyResult{}, fmt.Errorf("service: read payload: %w", err)
	}
	if s.Cipher != nil {
		raw, err = s.Cipher.Decrypt(raw)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("service: decrypt payload: %w", err)
		}
	}

	actual := hashtime.SumBytes(raw)
	integrityOK := actual == ev.SHA256

	if _, err := s.Ledger.Append(evidenceID, authz.Access, principal, ev.SHA256, &actual, integrityOK, nil, true); err != nil {
		return VerifyResult{}, fmt.Errorf("service: append verify event: %w", err)
	}
	return VerifyResult{Expected: ev.SHA256, Actual: actual, IntegrityOK: integrityOK}, nil
}

// Endorse co-signs an existing event on behalf of principal's org. A
// second endorsement from the same org for the same tx is
// ErrDuplicateEndorsement (409, spec §7).
func (s *Service) Endorse(principal authz.Principal, txID, evidenceID string) (ledger.Event, error) {
	if err := s.authorize(principal, authz.RecordEvent); err != nil {
		return ledger.Event{}, err
	}
	return s.Ledger.Endorse(txID, evidenceID, principal)
}

// Timeline returns every event for evidenceID with endorsement status
// recomputed against the full ledger.
func (s *Service) Timeline(principal authz.Principal, evidenceID string) ([]ledger.Event, error) {
	if err := s.authorize(principal, authz.ViewEvidence); err != nil {
		return nil, err
	}
	return s.Ledger.Timeline(evidenceID)
}

// Report builds the court report for a single evidence item.
func (s *Service) Report(principal authz.Principal, evidenceID string) (report.CourtReport, error) {
	if err := s.authorize(principal, authz.GenerateReport); err != nil {
		return report.CourtReport{}, err
	}
	return s.Reporter.CourtReportFor(evidenceID)
}

// CaseSummary lists every evidence row in caseID.
func (s *Service) CaseSummary(principal authz.Principal, caseID string) ([]evidence.Evidence, error) {
	if err := s.authorize(principal, authz.ViewEvidence); err != nil {
		return nil, err
	}
	return s.Evidence.ListByCase(caseID)
}

// Health reports ledger chain validity. It carries no authorization
// requirement (spec §4.9).
func (s *Service) Health() (HealthResult, error) {
	valid, reason := s.Ledger.ValidateChain()
	return HealthResult{ChainValid: valid, ChainReason: reason}, nil
}
