package report

import (
	"fmt"

	"github.com/traysentinel/custodyledger/internal/authz"
)

// EvidenceAudit is the per-evidence row of a case audit rollup.
type EvidenceAudit struct {
	EvidenceID          string `json:"evidence_id"`
	EventCount          int    `json:"event_count"`
	IntegrityFailures   int    `json:"integrity_failures"`
	PendingEndorsements int    `json:"pending_endorsements"`
	LastEventAt         string `json:"last_event_at"`
	ComplianceStatus    string `json:"compliance_status"`
}

// CaseAudit is the case-wide compliance rollup (spec §4.8).
type CaseAudit struct {
	CaseID              string          `json:"case_id"`
	Evidence            []EvidenceAudit `json:"evidence"`
	TotalEvents         int             `json:"total_events"`
	TotalIntegrityFails int             `json:"total_integrity_failures"`
	TotalPending        int             `json:"total_pending_endorsements"`
	ComplianceStatus    string          `json:"compliance_status"`
}

// CaseAuditFor builds the compliance rollup for every evidence row in
// caseID.
func (r *Reporter) CaseAuditFor(caseID string) (CaseAudit, error) {
	rows, err := r.Evidence.ListByCase(caseID)
	if err != nil {
		return CaseAudit{}, fmt.Errorf("report: list by case: %w", err)
	}

	audit := CaseAudit{CaseID: caseID, ComplianceStatus: CompliantStatus}
	for _, ev := range rows {
		timeline, err := r.Ledger.Timeline(ev.EvidenceID)
		if err != nil {
			return CaseAudit{}, fmt.Errorf("report: timeline for %s: %w", ev.EvidenceID, err)
		}

		row := EvidenceAudit{EvidenceID: ev.EvidenceID, EventCount: len(timeline), ComplianceStatus: CompliantStatus}
		for _, e := range timeline {
			if !e.IntegrityOK {
				row.IntegrityFailures++
			}
			if e.ActionType != authz.Endorse && e.EndorsementStatus != "FINAL" {
				row.PendingEndorsements++
			}
			row.LastEventAt = e.Timestamp
		}
		if row.IntegrityFailures > 0 || row.PendingEndorsements > 0 {
			row.ComplianceStatus = AttentionRequiredStatus
		}

		audit.Evidence = append(audit.Evidence, row)
		audit.TotalEvents += row.EventCount
		audit.TotalIntegrityFails += row.IntegrityFailures
		audit.TotalPending += row.PendingEndorsements
	}
	if audit.TotalIntegrityFails > 0 || audit.TotalPending > 0 {
		audit.ComplianceStatus = AttentionRequiredStatus
	}
	return audit, nil
}
