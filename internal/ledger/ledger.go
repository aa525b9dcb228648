// Package ledger implements the append-only, hash-chained, signed custody
// log (spec §4.7) — the core of the whole system. Every append is
// serialized behind a single exclusive file lock; readers never lock and
// simply iterate the file to EOF (spec §5).
package ledger

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/traysentinel/custodyledger/internal/authz"
	"github.com/traysentinel/custodyledger/internal/canonical"
	"github.com/traysentinel/custodyledger/internal/hashtime"
	"github.com/traysentinel/custodyledger/internal/keys"
)

// GenesisHash is the literal prev_hash value of the first ledger line.
const GenesisHash = "GENESIS"

// signatureFields are excluded from the payload that gets signed.
var signatureFields = []string{"record_hash", "signer_pubkey_b64", "signature_b64"}

// Ledger is the append-only custody log backed by a single newline-delimited
// JSON file.
type Ledger struct {
	path   string
	signer keys.Signer
	log    zerolog.Logger
	fl     *flock.Flock

	mu           sync.Mutex // guards tip/endorsedBy below
	tip          string     // record_hash of the last appended line
	endorsedBy   map[string]map[string]struct{} // endorsed_tx_id -> set of org_id
}

// Open opens (creating if absent) the ledger file at path, replays it to
// rebuild the in-memory tip hash and duplicate-endorsement index (spec §9
// sanctions this as a rebuildable-from-file optimization), and returns a
// Ledger ready to append.
func Open(path string, signer keys.Signer, log zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}

	l := &Ledger{
		path:       path,
		signer:     signer,
		log:        log,
		fl:         flock.New(path + ".lock"),
		tip:        GenesisHash,
		endorsedBy: make(map[string]map[string]struct{}),
	}

	events, err := l.readAll()
	if err != nil {
		return nil, fmt.Errorf("ledger: replay: %w", err)
	}
	for _, e := range events {
		l.tip = e.RecordHash
		if e.ActionType == authz.Endorse {
			l.indexEndorsement(e)
		}
	}
	return l, nil
}

func (l *Ledger) indexEndorsement(e Event) {
	endorsedTxID, _ := e.Details["endorsed_tx_id"].(string)
	if endorsedTxID == "" {
		return
	}
	set, ok := l.endorsedBy[endorsedTxID]
	if !ok {
		set = make(map[string]struct{})
		l.endorsedBy[endorsedTxID] = set
	}
	set[e.ActorOrgID] = struct{}{}
}

// readAll reads every line in the ledger file in order. Readers never take
// the write lock (spec §5).
func (l *Ledger) readAll() ([]Event, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger: parse line: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Path returns the ledger file's path on disk.
func (l *Ledger) Path() string { return l.path }

// Timeline returns every event for evidenceID in file order, with its
// endorsement status recomputed against the full file (spec §4.7's "on
// read" rule).
func (l *Ledger) Timeline(evidenceID string) ([]Event, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0)
	for _, e := range events {
		if e.EvidenceID != evidenceID {
			continue
		}
		e.EndorsementStatus = ComputeStatus(e, events)
		out = append(out, e)
	}
	return out, nil
}

// Get returns a single event by tx_id with its status recomputed.
func (l *Ledger) Get(txID string) (Event, error) {
	events, err := l.readAll()
	if err != nil {
		return Event{}, err
	}
	for _, e := range events {
		if e.TxID == txID {
			e.EndorsementStatus = ComputeStatus(e, events)
			return e, nil
		}
	}
	return Event{}, ErrEventNotFound
}

// All returns every event in the file, statuses recomputed, in file order.
func (l *Ledger) All() ([]Event, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(events))
	for i, e := range events {
		e.EndorsementStatus = ComputeStatus(e, events)
		out[i] = e
	}
	return out, nil
}

// ComputeStatus is the authoritative endorsement status for e, computed
// against the full set of events currently in the ledger (spec §4.7).
func ComputeStatus(e Event, all []Event) string {
	if e.ActionType == authz.Endorse {
		return StatusFinal
	}
	orgs := make(map[string]struct{})
	for _, end := range e.Endorsements {
		orgs[end.OrgID] = struct{}{}
	}
	for _, other := range all {
		if other.ActionType != authz.Endorse {
			continue
		}
		if endorsedTxID, _ := other.Details["endorsed_tx_id"].(string); endorsedTxID == e.TxID {
			orgs[other.ActorOrgID] = struct{}{}
		}
	}
	if len(orgs) >= e.RequiredEndorserOrgs {
		return StatusFinal
	}
	return StatusPendingEndorsement
}

// Append writes one new custody event. The record is assembled and the
// signer's public key loaded before the exclusive file lock is taken;
// stamping prev_hash, signing, hashing and writing the line happen while
// locked (see commit), because the signature covers prev_hash.
func (l *Ledger) Append(
	evidenceID string,
	actionType authz.ActionType,
	principal authz.Principal,
	expectedSHA256 string,
	presentedSHA256 *string,
	integrityOK bool,
	details map[string]any,
	endorse bool,
) (Event, error) {
	if details == nil {
		details = map[string]any{}
	}

	e := Event{
		TxID:                 uuid.NewString(),
		EvidenceID:           evidenceID,
		ActionType:           actionType,
		RequiredEndorserOrgs: authz.RequiredEndorserOrgs(actionType),
		ActorUserID:          principal.UserID,
		ActorRole:            principal.Role,
		ActorOrgID:           principal.OrgID,
		Timestamp:            hashtime.NowISO(),
		PresentedSHA256:      presentedSHA256,
		ExpectedSHA256:       expectedSHA256,
		IntegrityOK:          integrityOK,
		Details:              details,
	}
	if endorse {
		e.Endorsements = []Endorsement{{OrgID: principal.OrgID, UserID: principal.UserID}}
	} else {
		e.Endorsements = []Endorsement{}
	}
	if len(uniqueOrgs(e.Endorsements)) >= e.RequiredEndorserOrgs {
		e.EndorsementStatus = StatusFinal
	} else {
		e.EndorsementStatus = StatusPendingEndorsement
	}

	pubKeyB64, err := l.signer.PublicKeyB64(principal.UserID)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: load signer public key: %w", err)
	}
	e.SignerPubKeyB64 = pubKeyB64

	return l.commit(e)
}

// Endorse appends an ENDORSE event targeting txID, rejecting the request if
// principal's org has already endorsed that tx.
func (l *Ledger) Endorse(txID, evidenceID string, principal authz.Principal) (Event, error) {
	l.mu.Lock()
	alreadyEndorsed := false
	if set, ok := l.endorsedBy[txID]; ok {
		_, alreadyEndorsed = set[principal.OrgID]
	}
	l.mu.Unlock()
	if alreadyEndorsed {
		return Event{}, ErrDuplicateEndorsement
	}

	e := Event{
		TxID:                 uuid.NewString(),
		EvidenceID:           evidenceID,
		ActionType:           authz.Endorse,
		RequiredEndorserOrgs: authz.RequiredEndorserOrgs(authz.Endorse),
		ActorUserID:          principal.UserID,
		ActorRole:            principal.Role,
		ActorOrgID:           principal.OrgID,
		Timestamp:            hashtime.NowISO(),
		PresentedSHA256:      nil,
		ExpectedSHA256:       "",
		IntegrityOK:          true,
		Details:              map[string]any{"endorsed_tx_id": txID},
		Endorsements:         []Endorsement{{OrgID: principal.OrgID, UserID: principal.UserID}},
		EndorsementStatus:    StatusFinal,
	}

	pubKeyB64, err := l.signer.PublicKeyB64(principal.UserID)
	if err != nil {
		return Event{}, fmt.Errorf("ledger: load signer public key: %w", err)
	}
	e.SignerPubKeyB64 = pubKeyB64

	return l.commitEndorse(txID, principal.OrgID, e)
}

func uniqueOrgs(endorsements []Endorsement) map[string]struct{} {
	set := make(map[string]struct{}, len(endorsements))
	for _, e := range endorsements {
		set[e.OrgID] = struct{}{}
	}
	return set
}

// commit acquires the exclusive file lock, stamps prev_hash, signs, hashes,
// appends, and fsyncs — the "write-time" half of the append protocol.
func (l *Ledger) commit(e Event) (Event, error) {
	if err := l.fl.Lock(); err != nil {
		return Event{}, fmt.Errorf("ledger: acquire lock: %w", err)
	}
	defer l.fl.Unlock()

	l.mu.Lock()
	e.PrevHash = l.tip
	l.mu.Unlock()

	if err := l.signAndHash(&e); err != nil {
		return Event{}, err
	}
	if err := l.writeLine(e); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	l.tip = e.RecordHash
	if e.ActionType == authz.Endorse {
		l.indexEndorsement(e)
	}
	l.mu.Unlock()

	return e, nil
}

// commitEndorse is commit plus a re-check of the duplicate-endorsement
// precondition under the file lock, so two goroutines racing past the
// initial check in Endorse cannot both win.
func (l *Ledger) commitEndorse(txID, orgID string, e Event) (Event, error) {
	if err := l.fl.Lock(); err != nil {
		return Event{}, fmt.Errorf("ledger: acquire lock: %w", err)
	}
	defer l.fl.Unlock()

	l.mu.Lock()
	if set, ok := l.endorsedBy[txID]; ok {
		if _, dup := set[orgID]; dup {
			l.mu.Unlock()
			return Event{}, ErrDuplicateEndorsement
		}
	}
	e.PrevHash = l.tip
	l.mu.Unlock()

	if err := l.signAndHash(&e); err != nil {
		return Event{}, err
	}
	if err := l.writeLine(e); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	l.tip = e.RecordHash
	l.indexEndorsement(e)
	l.mu.Unlock()

	return e, nil
}

func (l *Ledger) signAndHash(e *Event) error {
	signingPayload, err := canonical.WithoutFields(*e, signatureFields...)
	if err != nil {
		return fmt.Errorf("ledger: build signing payload: %w", err)
	}
	signingBytes, err := canonical.Marshal(signingPayload)
	if err != nil {
		return fmt.Errorf("ledger: canonicalize for signing: %w", err)
	}
	sig, err := l.signer.Sign(e.ActorUserID, signingBytes)
	if err != nil {
		return fmt.Errorf("ledger: sign: %w", err)
	}
	e.SignatureB64 = base64.StdEncoding.EncodeToString(sig)

	hashingPayload, err := canonical.WithoutFields(*e, "record_hash")
	if err != nil {
		return fmt.Errorf("ledger: build hashing payload: %w", err)
	}
	hashingBytes, err := canonical.Marshal(hashingPayload)
	if err != nil {
		return fmt.Errorf("ledger: canonicalize for hashing: %w", err)
	}
	e.RecordHash = hashtime.SumBytes(hashingBytes)
	return nil
}

func (l *Ledger) writeLine(e Event) error {
	line, err := canonical.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: marshal line: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger: write line: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("ledger: fsync line: %w", err)
	}
	dir, err := os.Open(filepath.Dir(l.path))
	if err != nil {
		return fmt.Errorf("ledger: open directory for fsync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		l.log.Warn().Err(err).Msg("ledger: directory fsync unsupported on this filesystem")
	}

	l.log.Debug().Str("tx_id", e.TxID).Str("action_type", string(e.ActionType)).Msg("ledger: appended event")
	return nil
}
