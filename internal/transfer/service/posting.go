package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostingResult is returned by Post.
type PostingResult struct {
	Transfer *model.TransferRequest `json:"transfer"`

	// Transaction is the journal entry. Nil for holdings destinations.
	Transaction *ledger.Transaction `json:"transaction,omitempty"`

	// Credited is the amount applied to the destination, in its currency.
	Credited decimal.Decimal `json:"credited"`
}

// destination applies a posted transfer to its target system.
type destination interface {
	apply(ctx context.Context, t *model.TransferRequest, amount decimal.Decimal) (*ledger.Transaction, error)
	notes() string
}

// ledgerCredit credits a balance-bearing ledger account.
type ledgerCredit struct {
	store     ledger.Store
	accountID uuid.UUID
}

func (d ledgerCredit) apply(ctx context.Context, t *model.TransferRequest, amount decimal.Decimal) (*ledger.Transaction, error) {
	return d.store.Credit(ctx, ledger.Credit{
		AccountID:  d.accountID,
		TransferID: t.ID,
		Amount:     amount,
		Label:      t.TransferType.Label(),
	})
}

func (ledgerCredit) notes() string { return "posted to ledger" }

// holdingHandoff is a status-only posting; the FX holdings system picks the
// transfer up from the change feed.
type holdingHandoff struct{}

func (holdingHandoff) apply(context.Context, *model.TransferRequest, decimal.Decimal) (*ledger.Transaction, error) {
	return nil, nil
}

func (holdingHandoff) notes() string { return "handed off to fx holdings" }

// PostingEngine applies validated requests to their destination exactly once.
type PostingEngine struct {
	*core
	ledger ledger.Store
}

func (e *PostingEngine) resolveDestination(t *model.TransferRequest) (destination, error) {
	switch t.DestinationType {
	case model.DestinationMainBank, model.DestinationTreasuryPool:
		if t.DestinationAccountID == nil {
			return nil, &model.ErrValidation{Msg: "destination_account_id is required for " + string(t.DestinationType) + " destinations"}
		}
		return ledgerCredit{store: e.ledger, accountID: *t.DestinationAccountID}, nil
	case model.DestinationFXHolding:
		return holdingHandoff{}, nil
	}
	return nil, &model.ErrValidation{Msg: "unknown destination_type " + string(t.DestinationType)}
}

// Post moves a validated request to posted and credits its destination. The
// status flip is the only guard against double crediting: of N concurrent
// callers exactly one wins it and the rest get AlreadyPostedError without
// touching the ledger. A failure after the flip is a PartialPostingError and
// is never retried.
func (e *PostingEngine) Post(ctx context.Context, id uuid.UUID, actor string) (*PostingResult, error) {
	res, err := e.post(ctx, id, actor)
	e.record("post", err)
	return res, err
}

func (e *PostingEngine) post(ctx context.Context, id uuid.UUID, actor string) (*PostingResult, error) {
	t, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.PostingStatus {
	case model.PostingValidated:
	case model.PostingPosted:
		return nil, &model.AlreadyPostedError{TransferID: t.ID, ActedBy: e.lastActor(ctx, t.ID)}
	default:
		return nil, &model.InvalidStateError{
			TransferID: t.ID,
			Current:    t.PostingStatus,
			Attempted:  model.PostingPosted,
		}
	}

	credit, err := t.CreditAmount()
	if err != nil {
		return nil, err
	}
	dest, err := e.resolveDestination(t)
	if err != nil {
		return nil, err
	}

	now := e.now()
	posted, err := e.repo.UpdateStatus(ctx, t.ID, model.PostingValidated, model.StatusUpdate{
		PostingStatus: model.PostingPosted,
		Status:        model.StatusPosted,
		PostedAt:      &now,
	})
	if err != nil {
		var conflict *model.ConflictError
		if errors.As(err, &conflict) {
			e.attributeConflict(ctx, conflict)
			if conflict.Actual == model.PostingPosted {
				return nil, &model.AlreadyPostedError{TransferID: t.ID, ActedBy: conflict.ActedBy, Conflict: conflict}
			}
			return nil, conflict
		}
		return nil, err
	}

	txn, err := dest.apply(ctx, posted, credit)
	if err != nil {
		return nil, e.partial(ctx, posted, actor, err)
	}

	e.appendAudit(ctx, t.ID, audit.ActionPosted, actor, dest.notes())
	e.publish(feed.EventPosted, posted, actor, dest.notes())
	e.logger.Info("transfer posted",
		zap.String("id", t.ID.String()),
		zap.String("destination", string(t.DestinationType)),
		zap.String("credited", credit.String()),
		zap.String("actor", actor),
	)
	return &PostingResult{Transfer: posted, Transaction: txn, Credited: credit}, nil
}

// partial raises the reconciliation alert for a request that is posted but
// whose destination was not credited.
func (e *PostingEngine) partial(ctx context.Context, t *model.TransferRequest, actor string, cause error) error {
	notes := fmt.Sprintf("ledger credit failed, reconciliation required: %v", cause)
	e.appendAudit(ctx, t.ID, audit.ActionPosted, actor, notes)
	e.publish(feed.EventReconciliationRequired, t, actor, notes)
	e.logger.Error("RECONCILIATION REQUIRED: transfer posted without ledger credit",
		zap.String("id", t.ID.String()),
		zap.String("destination", string(t.DestinationType)),
		zap.String("amount", t.Amount.String()),
		zap.Error(cause),
	)
	return &model.PartialPostingError{TransferID: t.ID, Cause: cause}
}
