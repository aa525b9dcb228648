package ledger

import "github.com/traysentinel/custodyledger/internal/authz"

// Endorsement status values (spec §3).
const (
	StatusFinal              = "FINAL"
	StatusPendingEndorsement = "PENDING_ENDORSEMENT"
)

// Endorsement is one {org_id, user_id} pair attached to an event at write
// time.
type Endorsement struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
}

// Event is one line of the append-only ledger (spec §3, the LedgerEvent
// record). Field order here is irrelevant to wire format — canonical.Marshal
// always sorts keys — but it's kept in the spec's table order for
// readability.
type Event struct {
	TxID                 string             `json:"tx_id"`
	EvidenceID           string             `json:"evidence_id"`
	ActionType           authz.ActionType   `json:"action_type"`
	RequiredEndorserOrgs int                `json:"required_endorser_orgs"`
	ActorUserID          string             `json:"actor_user_id"`
	ActorRole            authz.Role         `json:"actor_role"`
	ActorOrgID           string             `json:"actor_org_id"`
	Timestamp            string             `json:"timestamp"`
	PresentedSHA256      *string            `json:"presented_sha256"`
	ExpectedSHA256       string             `json:"expected_sha256"`
	IntegrityOK          bool               `json:"integrity_ok"`
	PrevHash             string             `json:"prev_hash"`
	EndorsementStatus    string             `json:"endorsement_status"`
	Endorsements         []Endorsement      `json:"endorsements"`
	Details              map[string]any     `json:"details"`
	SignerPubKeyB64      string             `json:"signer_pubkey_b64"`
	SignatureB64         string             `json:"signature_b64"`
	RecordHash           string             `json:"record_hash"`
}
