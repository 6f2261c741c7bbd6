// Package feed is the engine's best-effort change feed. Services publish an
// Event after every committed transition; dashboards consume them over SSE and
// configured endpoints receive them as signed webhooks. Nothing in the engine
// depends on an event being delivered.
package feed

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
)

// Event types published by the engine.
const (
	EventSubmitted              = "transfer.submitted"
	EventValidated              = "transfer.validated"
	EventPosted                 = "transfer.posted"
	EventRejected               = "transfer.rejected"
	EventFailed                 = "transfer.failed"
	EventReconciliationRequired = "transfer.reconciliation_required"
)

// Event is a single change notification.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	TransferID uuid.UUID              `json:"transfer_id"`
	Actor      string                 `json:"actor,omitempty"`
	Detail     string                 `json:"detail,omitempty"`
	Transfer   *model.TransferRequest `json:"transfer,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent builds an event carrying a snapshot of t.
func NewEvent(eventType string, t *model.TransferRequest, actor, detail string) Event {
	ev := Event{
		ID:         uuid.New(),
		Type:       eventType,
		Actor:      actor,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if t != nil {
		ev.TransferID = t.ID
		ev.Transfer = t.Clone()
	}
	return ev
}
