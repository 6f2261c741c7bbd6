package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
)

// MemoryTransferRepository is an in-memory TransferRepository equivalent used
// by tests and the memory store backend. It stores clones so callers can never
// mutate persisted state through a returned pointer.
type MemoryTransferRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.TransferRequest
}

// NewMemoryTransferRepository creates an empty MemoryTransferRepository.
func NewMemoryTransferRepository() *MemoryTransferRepository {
	return &MemoryTransferRepository{rows: make(map[uuid.UUID]*model.TransferRequest)}
}

// Create stores a new queued transfer request.
func (r *MemoryTransferRepository) Create(_ context.Context, req *model.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = uuid.New()
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	req.Status = model.StatusQueued
	req.PostingStatus = model.PostingQueued
	r.rows[req.ID] = req.Clone()
	return nil
}

// GetByID returns a copy of the stored request.
func (r *MemoryTransferRepository) GetByID(_ context.Context, id uuid.UUID) (*model.TransferRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "transfer", ID: id}
	}
	return t.Clone(), nil
}

// ListByPostingStatus returns requests in any of the given statuses, newest first.
func (r *MemoryTransferRepository) ListByPostingStatus(ctx context.Context, statuses []model.PostingStatus, limit int) ([]*model.TransferRequest, error) {
	return r.ListPage(ctx, statuses, nil, limit)
}

// ListPage returns up to limit requests in the given statuses that sort after
// the cursor, newest first with ties broken by id.
func (r *MemoryTransferRepository) ListPage(_ context.Context, statuses []model.PostingStatus, after *model.PageCursor, limit int) ([]*model.TransferRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	want := make(map[model.PostingStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	r.mu.Lock()
	var out []*model.TransferRequest
	for _, t := range r.rows {
		if want[t.PostingStatus] && (after == nil || sortsBefore(after.CreatedAt, after.ID, t.CreatedAt, t.ID)) {
			out = append(out, t.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return sortsBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortsBefore reports whether (at, aid) precedes (bt, bid) in
// (created_at DESC, id DESC) order.
func sortsBefore(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return bytes.Compare(aid[:], bid[:]) > 0
}

// UpdateStatus applies upd only when the stored posting status equals expected.
func (r *MemoryTransferRepository) UpdateStatus(_ context.Context, id uuid.UUID, expected model.PostingStatus, upd model.StatusUpdate) (*model.TransferRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "transfer", ID: id}
	}
	if t.PostingStatus != expected {
		return nil, &model.ConflictError{TransferID: id, Expected: expected, Actual: t.PostingStatus}
	}
	upd.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	return t.Clone(), nil
}
