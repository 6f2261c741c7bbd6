package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// RejectionService moves pre-posting requests to the terminal failed state.
type RejectionService struct {
	*core
}

// Reject is an operator decision: posting_status=failed, status=rejected and
// an audit record with action=rejected.
func (s *RejectionService) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*model.TransferRequest, error) {
	t, err := s.terminateByID(ctx, id, audit.ActionRejected, actor, reason)
	s.record("reject", err)
	return t, err
}

// Fail terminates a request the engine could not process. It differs from
// Reject only in the recorded action.
func (s *RejectionService) Fail(ctx context.Context, id uuid.UUID, actor, reason string) (*model.TransferRequest, error) {
	t, err := s.terminateByID(ctx, id, audit.ActionFailed, actor, reason)
	s.record("fail", err)
	return t, err
}

func (s *RejectionService) terminateByID(ctx context.Context, id uuid.UUID, action audit.Action, actor, reason string) (*model.TransferRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &model.ErrValidation{Msg: "reason is required"}
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.terminate(ctx, t, action, actor, reason)
}

// terminate transitions t from its observed status to failed.
func (s *RejectionService) terminate(ctx context.Context, t *model.TransferRequest, action audit.Action, actor, reason string) (*model.TransferRequest, error) {
	switch t.PostingStatus {
	case model.PostingPosted:
		return nil, &model.InvalidStateError{
			TransferID: t.ID,
			Current:    t.PostingStatus,
			Attempted:  model.PostingFailed,
			Detail:     "rejection of a posted transfer requires a reversal flow",
		}
	case model.PostingFailed:
		return nil, &model.InvalidStateError{
			TransferID: t.ID,
			Current:    t.PostingStatus,
			Attempted:  model.PostingFailed,
			Detail:     "already processed by " + orUnknown(s.lastActor(ctx, t.ID)),
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, t.ID, t.PostingStatus, model.StatusUpdate{
		PostingStatus: model.PostingFailed,
		Status:        model.StatusRejected,
		Reason:        &reason,
	})
	if err != nil {
		return nil, s.attributeConflict(ctx, err)
	}

	s.appendAudit(ctx, t.ID, action, actor, reason)

	eventType := feed.EventRejected
	if action == audit.ActionFailed {
		eventType = feed.EventFailed
	}
	s.publish(eventType, updated, actor, reason)

	s.logger.Info("transfer terminated",
		zap.String("id", t.ID.String()),
		zap.String("action", string(action)),
		zap.String("from", string(t.PostingStatus)),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
	return updated, nil
}

func orUnknown(actor string) string {
	if actor == "" {
		return "another actor"
	}
	return actor
}
