package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrConflict         = errors.New("concurrent modification")
	ErrAlreadyPosted    = errors.New("transfer already posted")
	ErrMissingRate      = errors.New("missing exchange rate")
	ErrPartialPosting   = errors.New("partial posting")
	ErrValidationFailed = errors.New("validation failed")
)

// ErrValidation is returned when a request payload or business rule is not met.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string { return e.Msg }

func (e *ErrValidation) Is(target error) bool { return target == ErrValidationFailed }

// NotFoundError reports a missing transfer request or ledger account.
type NotFoundError struct {
	Kind string // "transfer" or "account"
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports an attempted transition that is not legal from
// the request's current posting status.
type InvalidStateError struct {
	TransferID uuid.UUID
	Current    PostingStatus
	Attempted  PostingStatus
	Detail     string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("transfer %s cannot move from %s to %s", e.TransferID, e.Current, e.Attempted)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// ConflictError reports a lost compare-and-swap: the stored posting status no
// longer matched the caller's expectation. ActedBy names the actor of the most
// recent audit record when it could be determined.
type ConflictError struct {
	TransferID uuid.UUID
	Expected   PostingStatus
	Actual     PostingStatus
	ActedBy    string
}

func (e *ConflictError) Error() string {
	if e.ActedBy != "" {
		return fmt.Sprintf("transfer %s already processed by %s (now %s)", e.TransferID, e.ActedBy, e.Actual)
	}
	return fmt.Sprintf("transfer %s already processed (expected %s, now %s)", e.TransferID, e.Expected, e.Actual)
}

// Is matches ErrConflict and ErrInvalidState: losing the race leaves the
// request in a state the caller did not expect.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || target == ErrInvalidState
}

// AlreadyPostedError is returned by posting when the request is, or has just
// become, posted by another caller. No ledger mutation was performed.
type AlreadyPostedError struct {
	TransferID uuid.UUID
	ActedBy    string
	Conflict   *ConflictError
}

func (e *AlreadyPostedError) Error() string {
	if e.ActedBy != "" {
		return fmt.Sprintf("transfer %s already posted by %s", e.TransferID, e.ActedBy)
	}
	return fmt.Sprintf("transfer %s already posted", e.TransferID)
}

func (e *AlreadyPostedError) Is(target error) bool { return target == ErrAlreadyPosted }

func (e *AlreadyPostedError) Unwrap() error {
	if e.Conflict == nil {
		return nil
	}
	return e.Conflict
}

// MissingExchangeRateError is returned when a cross-currency transfer has no
// usable exchange rate.
type MissingExchangeRateError struct {
	TransferID uuid.UUID
	From       string
	To         string
}

func (e *MissingExchangeRateError) Error() string {
	return fmt.Sprintf("transfer %s: exchange rate required for %s to %s", e.TransferID, e.From, e.To)
}

func (e *MissingExchangeRateError) Is(target error) bool { return target == ErrMissingRate }

// PartialPostingError means the request was flipped to posted but the ledger
// credit or journal write did not complete. It requires manual reconciliation
// and must never be retried automatically.
type PartialPostingError struct {
	TransferID uuid.UUID
	Cause      error
}

func (e *PartialPostingError) Error() string {
	return fmt.Sprintf("transfer %s posted without ledger credit, reconciliation required: %v", e.TransferID, e.Cause)
}

func (e *PartialPostingError) Is(target error) bool { return target == ErrPartialPosting }

func (e *PartialPostingError) Unwrap() error { return e.Cause }
