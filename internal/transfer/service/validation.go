package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// ValidationService checks business rules and approves queued requests.
type ValidationService struct {
	*core
	ledger   ledger.Store
	rejector *RejectionService
}

// Validate approves a queued request. A request that breaks a business rule
// is moved to failed with an audit record and the rule error is returned.
func (s *ValidationService) Validate(ctx context.Context, id uuid.UUID, actor, notes string) (*model.TransferRequest, error) {
	t, err := s.validate(ctx, id, actor, notes)
	s.record("validate", err)
	return t, err
}

func (s *ValidationService) validate(ctx context.Context, id uuid.UUID, actor, notes string) (*model.TransferRequest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PostingStatus != model.PostingQueued {
		return nil, &model.InvalidStateError{
			TransferID: t.ID,
			Current:    t.PostingStatus,
			Attempted:  model.PostingValidated,
			Detail:     "already processed by " + orUnknown(s.lastActor(ctx, t.ID)),
		}
	}

	ruleErr, err := s.checkRules(ctx, t)
	if err != nil {
		return nil, err
	}
	if ruleErr != nil {
		if _, failErr := s.rejector.terminate(ctx, t, audit.ActionFailed, actor, ruleErr.Error()); failErr != nil {
			return nil, failErr
		}
		s.logger.Warn("transfer failed validation",
			zap.String("id", t.ID.String()),
			zap.Error(ruleErr),
		)
		return nil, ruleErr
	}

	now := s.now()
	updated, err := s.repo.UpdateStatus(ctx, t.ID, model.PostingQueued, model.StatusUpdate{
		PostingStatus: model.PostingValidated,
		Status:        model.StatusApproved,
		AuthorizedAt:  &now,
	})
	if err != nil {
		return nil, s.attributeConflict(ctx, err)
	}

	s.appendAudit(ctx, t.ID, audit.ActionValidated, actor, notes)
	s.publish(feed.EventValidated, updated, actor, notes)
	s.logger.Info("transfer validated",
		zap.String("id", t.ID.String()),
		zap.String("actor", actor),
	)
	return updated, nil
}

// checkRules returns a rule violation as ruleErr. err is reserved for
// infrastructure failures that must not fail the request.
func (s *ValidationService) checkRules(ctx context.Context, t *model.TransferRequest) (ruleErr, err error) {
	if !t.Amount.IsPositive() {
		return &model.ErrValidation{Msg: "amount must be greater than zero"}, nil
	}
	if _, rateErr := t.CreditAmount(); rateErr != nil {
		return rateErr, nil
	}
	if !t.DestinationType.IsLedger() {
		return nil, nil
	}
	if t.DestinationAccountID == nil {
		return &model.ErrValidation{Msg: "destination_account_id is required for " + string(t.DestinationType) + " destinations"}, nil
	}

	acct, lookupErr := s.ledger.GetAccount(ctx, *t.DestinationAccountID)
	if errors.Is(lookupErr, ledger.ErrAccountNotFound) {
		return &model.NotFoundError{Kind: "account", ID: *t.DestinationAccountID}, nil
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("lookup destination account: %w", lookupErr)
	}
	if want := t.EffectiveDestinationCurrency(); !strings.EqualFold(acct.Currency, want) {
		return &model.ErrValidation{Msg: fmt.Sprintf("destination account currency %s does not match %s", acct.Currency, want)}, nil
	}
	return nil, nil
}
