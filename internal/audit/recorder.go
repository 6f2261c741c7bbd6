package audit

import (
	"context"

	"github.com/google/uuid"
)

// Recorder is the append-only audit trail. Both MemoryRecorder and
// PostgresRecorder implement this interface.
type Recorder interface {
	// Append adds a record to the end of the transfer's chain.
	Append(ctx context.Context, transferID uuid.UUID, action Action, actor, notes string) (*Record, error)

	// List returns the transfer's records ordered by Seq. An unknown transfer
	// has an empty history.
	List(ctx context.Context, transferID uuid.UUID) ([]*Record, error)

	// Verify walks the transfer's chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context, transferID uuid.UUID) error
}
