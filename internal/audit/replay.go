package audit

import (
	"fmt"

	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
)

// Replay folds a transfer's ordered audit records into the posting status they
// imply, starting from queued. An illegal sequence is an error.
func Replay(records []*Record) (model.PostingStatus, error) {
	status := model.PostingQueued
	for _, r := range records {
		next, err := statusAfter(r.Action)
		if err != nil {
			return status, fmt.Errorf("seq %d: %w", r.Seq, err)
		}
		if !status.CanTransitionTo(next) {
			return status, fmt.Errorf("seq %d: illegal %s from %s", r.Seq, r.Action, status)
		}
		status = next
	}
	return status, nil
}

func statusAfter(a Action) (model.PostingStatus, error) {
	switch a {
	case ActionValidated:
		return model.PostingValidated, nil
	case ActionPosted:
		return model.PostingPosted, nil
	case ActionRejected, ActionFailed:
		return model.PostingFailed, nil
	}
	return "", fmt.Errorf("unknown action %q", a)
}
