package report

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/evidence"
	"github.com/traysentinel/custodyledger/internal/keys"
	"github.com/traysentinel/custodyledger/internal/ledger"
)

func newTestReporter(t *testing.T) *Reporter {
	t.Helper()
	dir := t.TempDir()
	store, err := evidence.Open(filepath.Join(dir, "sentinel.db"), filepath.Join(dir, "evidence_store"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	signer, err := keys.NewFileSigner(filepath.Join(dir, "keys"))
	require.NoError(t, err)
	l, err := ledger.Open(filepath.Join(dir, "ledger.jsonl"), signer, zerolog.Nop())
	require.NoError(t, err)

	return &Reporter{Ledger: l, Evidence: store, Jurisdiction: "Test District", LegalBasis: []string{"Rule 901"}}
}

func strp(s string) *string { return &s }

func TestCaseAuditCompliantByDefault(t *testing.T) {
	r := newTestReporter(t)
	principal := authz.Principal{UserID: "officer1", Role: authz.FieldOfficer, OrgID: "KPS"}

	require.NoError(t, r.Evidence.Insert(evidence.Evidence{EvidenceID: "ev-1", CaseID: "case-1", SHA256: "h"}, "/tmp/x"))
	_, err := r.Ledger.Append("ev-1", authz.Intake, principal, "h", strp("h"), true, nil, true)
	require.NoError(t, err)

	audit, err := r.CaseAuditFor("case-1")
	require.NoError(t, err)
	assert.Equal(t, CompliantStatus, audit.ComplianceStatus)
	assert.Equal(t, 0, audit.TotalIntegrityFails)
}

func TestCaseAuditFlagsIntegrityFailure(t *testing.T) {
	r := newTestReporter(t)
	principal := authz.Principal{UserID: "officer1", Role: authz.FieldOfficer, OrgID: "KPS"}

	require.NoError(t, r.Evidence.Insert(evidence.Evidence{EvidenceID: "ev-1", CaseID: "case-1", SHA256: "h"}, "/tmp/x"))
	_, err := r.Ledger.Append("ev-1", authz.Intake, principal, "h", strp("h"), true, nil, true)
	require.NoError(t, err)
	_, err = r.Ledger.Append("ev-1", authz.Access, principal, "h", strp("different"), false, nil, true)
	require.NoError(t, err)

	audit, err := r.CaseAuditFor("case-1")
	require.NoError(t, err)
	assert.Equal(t, AttentionRequiredStatus, audit.ComplianceStatus)
	assert.Equal(t, 1, audit.TotalIntegrityFails)
}

func TestCourtReportIncludesChainValidityAndTimeline(t *testing.T) {
	r := newTestReporter(t)
	principal := authz.Principal{UserID: "officer1", Role: authz.FieldOfficer, OrgID: "KPS"}

	require.NoError(t, r.Evidence.Insert(evidence.Evidence{EvidenceID: "ev-1", CaseID: "case-1", SHA256: "h"}, "/tmp/x"))
	_, err := r.Ledger.Append("ev-1", authz.Intake, principal, "h", strp("h"), true, nil, true)
	require.NoError(t, err)

	rep, err := r.CourtReportFor("ev-1")
	require.NoError(t, err)
	assert.True(t, rep.ChainValid)
	assert.Equal(t, "ok", rep.ChainReason)
	require.Len(t, rep.Timeline, 1)
	assert.Equal(t, authz.Intake, rep.Timeline[0].ActionType)
}
