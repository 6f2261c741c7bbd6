package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// PendingStatuses are the posting statuses listPending returns.
var PendingStatuses = []model.PostingStatus{model.PostingQueued, model.PostingValidated}

// AuditHistory is a transfer's audit trail together with its integrity checks.
type AuditHistory struct {
	Records        []*audit.Record     `json:"records"`
	ChainIntact    bool                `json:"chain_intact"`
	ChainError     string              `json:"chain_error,omitempty"`
	ReplayedStatus model.PostingStatus `json:"replayed_status"`
	ReplayError    string              `json:"replay_error,omitempty"`
}

// Engine is the collaborator-facing surface of the posting engine. It wires
// the intake, validation, posting and rejection services onto one repository,
// ledger and audit trail.
type Engine struct {
	*core
	intake     *IntakeService
	validation *ValidationService
	posting    *PostingEngine
	rejection  *RejectionService
}

// NewEngine creates an Engine. recorder may be nil to disable audit writes.
func NewEngine(repo TransferStore, store ledger.Store, recorder audit.Recorder, logger *zap.Logger) *Engine {
	c := newCore(repo, recorder, logger)
	rejection := &RejectionService{core: c}
	return &Engine{
		core:       c,
		intake:     &IntakeService{core: c},
		validation: &ValidationService{core: c, ledger: store, rejector: rejection},
		posting:    &PostingEngine{core: c, ledger: store},
		rejection:  rejection,
	}
}

// SetPublisher configures the change feed.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetTransitionRecorder configures the metrics callback.
func (e *Engine) SetTransitionRecorder(fn TransitionRecorder) {
	e.onTransition = fn
}

// Submit stores a new queued request.
func (e *Engine) Submit(ctx context.Context, req *model.SubmitRequest) (*model.TransferRequest, error) {
	return e.intake.Submit(ctx, req)
}

// Validate approves a queued request.
func (e *Engine) Validate(ctx context.Context, id uuid.UUID, actor, notes string) (*model.TransferRequest, error) {
	return e.validation.Validate(ctx, id, actor, notes)
}

// Post credits a validated request's destination.
func (e *Engine) Post(ctx context.Context, id uuid.UUID, actor string) (*PostingResult, error) {
	return e.posting.Post(ctx, id, actor)
}

// Reject terminates a pre-posting request.
func (e *Engine) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*model.TransferRequest, error) {
	return e.rejection.Reject(ctx, id, actor, reason)
}

// Fail terminates a pre-posting request the engine could not process.
func (e *Engine) Fail(ctx context.Context, id uuid.UUID, actor, reason string) (*model.TransferRequest, error) {
	return e.rejection.Fail(ctx, id, actor, reason)
}

// Get returns a request by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error) {
	return e.repo.GetByID(ctx, id)
}

// ListPending returns queued and validated requests, newest first.
func (e *Engine) ListPending(ctx context.Context, limit int) ([]*model.TransferRequest, error) {
	return e.repo.ListByPostingStatus(ctx, PendingStatuses, limit)
}

// History returns the audit trail of an existing request.
func (e *Engine) History(ctx context.Context, id uuid.UUID) (*AuditHistory, error) {
	if _, err := e.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	h := &AuditHistory{Records: []*audit.Record{}, ChainIntact: true}
	if e.audit == nil {
		return h, nil
	}

	recs, err := e.audit.List(ctx, id)
	if err != nil {
		return nil, err
	}
	h.Records = recs
	if err := e.audit.Verify(ctx, id); err != nil {
		h.ChainIntact = false
		h.ChainError = err.Error()
	}
	status, err := audit.Replay(recs)
	h.ReplayedStatus = status
	if err != nil {
		h.ReplayError = err.Error()
	}
	return h, nil
}
