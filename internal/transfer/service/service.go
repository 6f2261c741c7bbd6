package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// TransferStore is the persistence interface shared by the transfer services.
// *repository.TransferRepository and *repository.MemoryTransferRepository
// satisfy this interface.
type TransferStore interface {
	Create(ctx context.Context, req *model.TransferRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error)
	ListByPostingStatus(ctx context.Context, statuses []model.PostingStatus, limit int) ([]*model.TransferRequest, error)
	ListPage(ctx context.Context, statuses []model.PostingStatus, after *model.PageCursor, limit int) ([]*model.TransferRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected model.PostingStatus, upd model.StatusUpdate) (*model.TransferRequest, error)
}

// Publisher receives change events. *feed.Broker satisfies this interface.
type Publisher interface {
	Publish(ev feed.Event)
}

// TransitionRecorder is an optional callback for recording operation outcomes.
type TransitionRecorder func(op, outcome string)

// Outcome labels passed to TransitionRecorder.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidState = "invalid_state"
	OutcomeConflict     = "conflict"
	OutcomeRuleFailed   = "rule_failed"
	OutcomePartial      = "partial"
	OutcomeError        = "error"
)

// core holds the collaborators every transfer service needs. One core is
// shared by all services built by NewEngine so setters apply everywhere.
type core struct {
	repo         TransferStore
	audit        audit.Recorder
	publisher    Publisher          // nil = no change feed
	onTransition TransitionRecorder // nil = no metrics
	now          func() time.Time
	logger       *zap.Logger
}

func newCore(repo TransferStore, recorder audit.Recorder, logger *zap.Logger) *core {
	return &core{
		repo:   repo,
		audit:  recorder,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// appendAudit writes an audit record. A failure is logged but never undoes
// the committed transition; the reconciler reports the resulting gap.
func (c *core) appendAudit(ctx context.Context, id uuid.UUID, action audit.Action, actor, notes string) {
	if c.audit == nil {
		return
	}
	if _, err := c.audit.Append(ctx, id, action, actor, notes); err != nil {
		c.logger.Error("audit append failed",
			zap.String("transfer_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (c *core) publish(eventType string, t *model.TransferRequest, actor, detail string) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(feed.NewEvent(eventType, t, actor, detail))
}

func (c *core) record(op string, err error) {
	if c.onTransition != nil {
		c.onTransition(op, outcomeOf(err))
	}
}

// lastActor returns who performed the most recent recorded action on id.
func (c *core) lastActor(ctx context.Context, id uuid.UUID) string {
	if c.audit == nil {
		return ""
	}
	recs, err := c.audit.List(ctx, id)
	if err != nil || len(recs) == 0 {
		return ""
	}
	return recs[len(recs)-1].PerformedBy
}

// attributeConflict fills ActedBy on a ConflictError from the audit trail.
func (c *core) attributeConflict(ctx context.Context, err error) error {
	var conflict *model.ConflictError
	if errors.As(err, &conflict) && conflict.ActedBy == "" {
		conflict.ActedBy = c.lastActor(ctx, conflict.TransferID)
	}
	return err
}

func outcomeOf(err error) string {
	var (
		partial *model.PartialPostingError
		posted  *model.AlreadyPostedError
		invalid *model.InvalidStateError
		rule    *model.ErrValidation
		rate    *model.MissingExchangeRateError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &partial):
		return OutcomePartial
	case errors.As(err, &posted), errors.Is(err, model.ErrConflict):
		return OutcomeConflict
	case errors.As(err, &invalid):
		return OutcomeInvalidState
	case errors.Is(err, model.ErrNotFound):
		return OutcomeNotFound
	case errors.As(err, &rule), errors.As(err, &rate):
		return OutcomeRuleFailed
	}
	return OutcomeError
}
