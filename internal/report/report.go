// Package report implements the two pure read-side projections over the
// ledger and evidence store: a court report for one piece of evidence and a
// case-wide compliance audit rollup (spec §4.8).
package report

import (
	"fmt"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/evidence"
	"github.com/traysentinel/custodyledger/internal/ledger"
)

const (
	CompliantStatus         = "COMPLIANT"
	AttentionRequiredStatus = "ATTENTION_REQUIRED"
)

// EventSummary is one timeline line as surfaced in a court report.
type EventSummary struct {
	TxID              string           `json:"tx_id"`
	ActionType        authz.ActionType `json:"action_type"`
	Actor             string           `json:"actor"`
	EndorsementStatus string           `json:"endorsement_status"`
	IntegrityOK       bool             `json:"integrity_ok"`
	PresentedSHA256   *string          `json:"presented_sha256"`
	ExpectedSHA256    string           `json:"expected_sha256"`
	SignerPubKeyB64   string           `json:"signer_pubkey_b64"`
	SignatureB64      string           `json:"signature_b64"`
	RecordHash        string           `json:"record_hash"`
	PrevHash          string           `json:"prev_hash"`
	Timestamp         string           `json:"timestamp"`
}

// CourtReport is the report body for a single piece of evidence.
type CourtReport struct {
	Jurisdiction string            `json:"jurisdiction"`
	LegalBasis   []string          `json:"legal_basis"`
	ChainValid   bool              `json:"chain_valid"`
	ChainReason  string            `json:"chain_reason"`
	Evidence     evidence.Evidence `json:"evidence"`
	Timeline     []EventSummary    `json:"timeline"`
}

// Reporter builds the two report types from a ledger + evidence store.
type Reporter struct {
	Ledger       *ledger.Ledger
	Evidence     *evidence.Store
	Jurisdiction string
	LegalBasis   []string
}

// CourtReportFor builds the court report for evidenceID.
func (r *Reporter) CourtReportFor(evidenceID string) (CourtReport, error) {
	ev, err := r.Evidence.Get(evidenceID)
	if err != nil {
		return CourtReport{}, fmt.Errorf("report: evidence lookup: %w", err)
	}
	timeline, err := r.Ledger.Timeline(evidenceID)
	if err != nil {
		return CourtReport{}, fmt.Errorf("report: timeline: %w", err)
	}
	chainValid, reason := r.Ledger.ValidateChain()

	summaries := make([]EventSummary, 0, len(timeline))
	for _, e := range timeline {
		summaries = append(summaries, EventSummary{
			TxID:              e.TxID,
			ActionType:        e.ActionType,
			Actor:             fmt.Sprintf("%s (%s/%s)", e.ActorUserID, e.ActorRole, e.ActorOrgID),
			EndorsementStatus: e.EndorsementStatus,
			IntegrityOK:       e.IntegrityOK,
			PresentedSHA256:   e.PresentedSHA256,
			ExpectedSHA256:    e.ExpectedSHA256,
			SignerPubKeyB64:   e.SignerPubKeyB64,
			SignatureB64:      e.SignatureB64,
			RecordHash:        e.RecordHash,
			PrevHash:          e.PrevHash,
			Timestamp:         e.Timestamp,
		})
	}

	return CourtReport{
		Jurisdiction: r.Jurisdiction,
		LegalBasis:   r.LegalBasis,
		ChainValid:   chainValid,
		ChainReason:  reason,
		Evidence:     ev,
		Timeline:     summaries,
	}, nil
}
