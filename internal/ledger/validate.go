package ledger

import (
	"encoding/base64"

	"github.com/traysentinel/custodyledger/internal/canonical"
	"github.com/traysentinel/custodyledger/internal/hashtime"
)

func sumHex(b []byte) string { return hashtime.SumBytes(b) }

func decodeB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// ValidateChain walks the ledger from the top and returns (true, "ok") if
// every invariant in spec §3/§4.7 holds, or (false, reason) for the first
// violation found. It never returns an error — chain validity is always a
// labeled result, per spec §7.
func (l *Ledger) ValidateChain() (bool, string) {
	events, err := l.readAll()
	if err != nil {
		return false, err.Error()
	}
	return ValidateEvents(events, l.signer)
}

// ValidateEvents validates a slice of events read independently of a Ledger
// (e.g. from a copied ledger.jsonl file), so verification can happen offline
// from the file alone (spec §1).
func ValidateEvents(events []Event, verifier signatureVerifier) (bool, string) {
	prev := GenesisHash
	for _, e := range events {
		hashingPayload, err := canonical.WithoutFields(e, "record_hash")
		if err != nil {
			return false, ReasonRecordHashMismatch
		}
		hashingBytes, err := canonical.Marshal(hashingPayload)
		if err != nil {
			return false, ReasonRecordHashMismatch
		}
		if sumHex(hashingBytes) != e.RecordHash {
			return false, ReasonRecordHashMismatch
		}

		if e.PrevHash != prev {
			return false, ReasonPrevHashMismatch
		}

		if e.SignatureB64 == "" || e.SignerPubKeyB64 == "" {
			return false, ReasonMissingSignature
		}
		signingPayload, err := canonical.WithoutFields(e, signatureFields...)
		if err != nil {
			return false, ReasonInvalidSignature
		}
		signingBytes, err := canonical.Marshal(signingPayload)
		if err != nil {
			return false, ReasonInvalidSignature
		}
		sig, err := decodeB64(e.SignatureB64)
		if err != nil {
			return false, ReasonInvalidSignature
		}
		if !verifier.Verify(e.SignerPubKeyB64, sig, signingBytes) {
			return false, ReasonInvalidSignature
		}

		prev = e.RecordHash
	}
	return true, ReasonOK
}

// signatureVerifier is the subset of keys.Signer chain validation needs.
type signatureVerifier interface {
	Verify(pubKeyB64 string, sig []byte, payload []byte) bool
}
