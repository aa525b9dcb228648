package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traysentinel/custodyledger/internal/authz"
)

// TestPropertyChainValidAfterManyAppends covers invariants 1, 2, 5, 6 and 7
// from spec §8 across a realistic mixed sequence of actions.
func TestPropertyChainValidAfterManyAppends(t *testing.T) {
	l, _ := newTestLedger(t)
	officer := authz.Principal{UserID: "officer1", Role: authz.FieldOfficer, OrgID: "KPS"}
	analyst := authz.Principal{UserID: "analyst1", Role: authz.ForensicAnalyst, OrgID: "LAB"}

	intake, err := l.Append("ev-1", authz.Intake, officer, "h", strPtr("h"), true, nil, true)
	require.NoError(t, err)

	actions := []authz.ActionType{authz.Access, authz.Analysis, authz.Storage, authz.Transfer, authz.CourtSubmission}
	var lastTwoOrgTx string
	for _, a := range actions {
		e, err := l.Append("ev-1", a, officer, "h", strPtr("h"), true, nil, true)
		require.NoError(t, err)

		if a == authz.Transfer || a == authz.CourtSubmission {
			assert.Equal(t, 2, e.RequiredEndorserOrgs) // invariant 5
			lastTwoOrgTx = e.TxID
		} else {
			assert.Equal(t, 1, e.RequiredEndorserOrgs)
		}
	}
	_, err = l.Endorse(lastTwoOrgTx, "ev-1", analyst)
	require.NoError(t, err)

	events, err := l.All()
	require.NoError(t, err)
	for _, e := range events {
		orgs := map[string]struct{}{}
		for _, end := range e.Endorsements {
			orgs[end.OrgID] = struct{}{}
		}
		for _, other := range events {
			if other.ActionType == authz.Endorse {
				if endTx, _ := other.Details["endorsed_tx_id"].(string); endTx == e.TxID {
					orgs[other.ActorOrgID] = struct{}{}
				}
			}
		}
		wantFinal := len(orgs) >= e.RequiredEndorserOrgs
		gotFinal := e.EndorsementStatus == StatusFinal
		assert.Equal(t, wantFinal, gotFinal) // invariant 6
	}

	ok, reason := l.ValidateChain() // invariant 1
	assert.True(t, ok)
	assert.Equal(t, ReasonOK, reason)

	t1, err := l.Timeline("ev-1")
	require.NoError(t, err)
	t2, err := l.Timeline("ev-1")
	require.NoError(t, err)
	assert.Equal(t, t1, t2) // invariant 7

	_ = intake
}

// TestPropertyByteFlipBreaksValidation covers invariant 3: flipping any byte
// of any line must break validate_chain().
func TestPropertyByteFlipBreaksValidation(t *testing.T) {
	l, path := newTestLedger(t)
	officer := authz.Principal{UserID: "officer1", Role: authz.FieldOfficer, OrgID: "KPS"}
	for i := 0; i < 3; i++ {
		_, err := l.Append("ev-1", authz.Access, officer, "h", strPtr("h"), true, nil, true)
		require.NoError(t, err)
	}

	raw := readFile(t, path)
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		idx := rng.Intn(len(mutated))
		if mutated[idx] == '\n' {
			continue
		}
		mutated[idx] ^= 0x01
		writeFile(t, path, mutated)

		fresh, err := openMaybeCorrupt(t, path)
		if err != nil {
			writeFile(t, path, raw)
			continue // malformed JSON is itself a tamper signal
		}
		ok, _ := fresh.ValidateChain()
		assert.False(t, ok, "byte flip at offset %d should invalidate the chain", idx)
	}
}

func strPtr(s string) *string { return &s }
