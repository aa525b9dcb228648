package ledger

import "errors"

// ErrDuplicateEndorsement is returned when the same org attempts to endorse
// a tx_id it has already endorsed.
var ErrDuplicateEndorsement = errors.New("ledger: duplicate endorsement from org")

// ErrEventNotFound is returned when a referenced tx_id does not exist.
var ErrEventNotFound = errors.New("ledger: event not found")

// Chain validation reasons, returned as labeled strings rather than errors
// per spec §4.7/§7 — validate_chain() never throws.
const (
	ReasonOK                 = "ok"
	ReasonRecordHashMismatch = "record hash mismatch"
	ReasonPrevHashMismatch   = "prev_hash mismatch"
	ReasonMissingSignature   = "missing signature"
	ReasonInvalidSignature   = "invalid signature"
)
