package service

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// IntakeService accepts originator submissions.
type IntakeService struct {
	*core
}

// Submit validates the payload shape and stores a new queued request.
func (s *IntakeService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.TransferRequest, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.record("submit", err)
		return nil, err
	}

	t := model.NewTransferRequest(req)
	if err := s.repo.Create(ctx, t); err != nil {
		s.record("submit", err)
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	s.logger.Info("transfer submitted",
		zap.String("id", t.ID.String()),
		zap.String("type", string(t.TransferType)),
		zap.String("amount", t.Amount.String()),
		zap.String("currency", t.SourceCurrency),
	)
	s.publish(feed.EventSubmitted, t, "", "")
	s.record("submit", nil)
	return t, nil
}
