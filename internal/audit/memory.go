package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRecorder is an in-memory, thread-safe Recorder implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryRecorder struct {
	mu     sync.RWMutex
	chains map[uuid.UUID][]*Record
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{chains: make(map[uuid.UUID][]*Record)}
}

// Append implements Recorder.
func (m *MemoryRecorder) Append(_ context.Context, transferID uuid.UUID, action Action, actor, notes string) (*Record, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown audit action %q", action)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.chains[transferID]
	prevHash := GenesisHash
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].Hash
	}

	rec := &Record{
		TransferID:  transferID,
		Seq:         len(chain) + 1,
		Action:      action,
		PerformedBy: actor,
		Notes:       notes,
		CreatedAt:   now(),
		PrevHash:    prevHash,
	}
	rec.Hash = hashRecord(rec)
	m.chains[transferID] = append(chain, rec)

	cp := *rec
	return &cp, nil
}

// List implements Recorder.
func (m *MemoryRecorder) List(_ context.Context, transferID uuid.UUID) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.chains[transferID]
	out := make([]*Record, 0, len(chain))
	for _, r := range chain {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Verify implements Recorder.
func (m *MemoryRecorder) Verify(_ context.Context, transferID uuid.UUID) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return verifyChain(m.chains[transferID])
}
