package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the PrevHash of the first record in every transfer's chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Action is the lifecycle action an audit record describes.
type Action string

const (
	ActionValidated Action = "validated"
	ActionPosted    Action = "posted"
	ActionRejected  Action = "rejected"
	ActionFailed    Action = "failed"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionValidated, ActionPosted, ActionRejected, ActionFailed:
		return true
	}
	return false
}

// Record is a single immutable audit entry.
type Record struct {
	TransferID  uuid.UUID `json:"transfer_id"  db:"transfer_id"`
	Seq         int       `json:"seq"          db:"seq"` // 1-based, per transfer
	Action      Action    `json:"action"       db:"action"`
	PerformedBy string    `json:"performed_by" db:"performed_by"`
	Notes       string    `json:"notes"        db:"notes"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	PrevHash    string    `json:"prev_hash"    db:"prev_hash"`
	Hash        string    `json:"hash"         db:"hash"`
}

// hashRecord computes a deterministic SHA-256 over a record's fields.
func hashRecord(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s|%s",
		r.TransferID, r.Seq, r.Action, r.PerformedBy, r.Notes,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// now returns the current time at the precision PostgreSQL timestamptz keeps,
// so hashes computed before insert still match after a round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// verifyChain checks sequence continuity and hash linkage of one transfer's records.
func verifyChain(records []*Record) error {
	prevHash := GenesisHash
	for i, r := range records {
		if r.Seq != i+1 {
			return fmt.Errorf("sequence gap at record %d (seq %d)", i+1, r.Seq)
		}
		if r.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at seq %d", r.Seq)
		}
		if r.Hash != hashRecord(r) {
			return fmt.Errorf("record %d has invalid hash", r.Seq)
		}
		prevHash = r.Hash
	}
	return nil
}
