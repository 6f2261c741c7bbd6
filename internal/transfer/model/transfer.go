package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingStatus is the processing state of a transfer request. It is persisted
// in the cbs_posting_status column and only ever moves forward.
type PostingStatus string

const (
	PostingQueued    PostingStatus = "queued"
	PostingValidated PostingStatus = "validated"
	PostingPosted    PostingStatus = "posted"
	PostingFailed    PostingStatus = "failed"
)

// Terminal reports whether no further transition is permitted from s.
func (s PostingStatus) Terminal() bool {
	return s == PostingPosted || s == PostingFailed
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// Legal steps: queued→validated, validated→posted, queued→failed, validated→failed.
func (s PostingStatus) CanTransitionTo(next PostingStatus) bool {
	switch s {
	case PostingQueued:
		return next == PostingValidated || next == PostingFailed
	case PostingValidated:
		return next == PostingPosted || next == PostingFailed
	default:
		return false
	}
}

// Status is the business status shown to originators.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusApproved Status = "approved"
	StatusPosted   Status = "posted"
	StatusRejected Status = "rejected"
)

// SourceType is the origin category of the funds.
type SourceType string

const (
	SourceTreasuryPool SourceType = "treasury_pool"
	SourceMainBank     SourceType = "main_bank"
	SourceFXHolding    SourceType = "fx_holding"
	SourceExternal     SourceType = "external"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTreasuryPool, SourceMainBank, SourceFXHolding, SourceExternal:
		return true
	}
	return false
}

// DestinationType is the target category of a transfer. Ledger destinations
// are credited on a balance-bearing account; the rest are status-only postings
// handed to an external holdings system.
type DestinationType string

const (
	DestinationTreasuryPool DestinationType = "treasury_pool"
	DestinationMainBank     DestinationType = "main_bank"
	DestinationFXHolding    DestinationType = "fx_holding"
)

// Valid reports whether t is a known destination type.
func (t DestinationType) Valid() bool {
	switch t {
	case DestinationTreasuryPool, DestinationMainBank, DestinationFXHolding:
		return true
	}
	return false
}

// IsLedger reports whether postings to t credit a ledger account.
func (t DestinationType) IsLedger() bool {
	return t == DestinationTreasuryPool || t == DestinationMainBank
}

// TransferType classifies the business purpose of a transfer.
type TransferType string

const (
	TransferInternalLiquidity TransferType = "internal_liquidity"
	TransferCapitalInjection  TransferType = "capital_injection"
	TransferFXAllocation      TransferType = "fx_allocation"
	TransferFXSpot            TransferType = "fx_spot"
	TransferFXForward         TransferType = "fx_forward"
	TransferFXSwap            TransferType = "fx_swap"
)

var transferLabels = map[TransferType]string{
	TransferInternalLiquidity: "Internal liquidity transfer",
	TransferCapitalInjection:  "Capital injection",
	TransferFXAllocation:      "FX allocation",
	TransferFXSpot:            "FX spot settlement",
	TransferFXForward:         "FX forward settlement",
	TransferFXSwap:            "FX swap settlement",
}

// Valid reports whether t is a known transfer type.
func (t TransferType) Valid() bool {
	_, ok := transferLabels[t]
	return ok
}

// Label returns the human-readable journal label for t.
func (t TransferType) Label() string {
	if l, ok := transferLabels[t]; ok {
		return l
	}
	return "Treasury transfer"
}

// TransferRequest is a liquidity transfer moving through intake, validation
// and posting.
type TransferRequest struct {
	ID                   uuid.UUID        `json:"id"                               db:"id"`
	SourceType           SourceType       `json:"source_type"                      db:"source_type"`
	DestinationType      DestinationType  `json:"destination_type"                 db:"destination_type"`
	SourceCurrency       string           `json:"source_currency"                  db:"source_currency"`
	DestinationCurrency  *string          `json:"destination_currency,omitempty"   db:"destination_currency"`
	Amount               decimal.Decimal  `json:"amount"                           db:"amount"`
	TransferType         TransferType     `json:"transfer_type"                    db:"transfer_type"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate,omitempty"          db:"exchange_rate"`
	Status               Status           `json:"status"                           db:"status"`
	PostingStatus        PostingStatus    `json:"posting_status"                   db:"cbs_posting_status"`
	Reason               string           `json:"reason,omitempty"                 db:"reason"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty" db:"destination_account_id"`
	CreatedAt            time.Time        `json:"created_at"                       db:"created_at"`
	AuthorizedAt         *time.Time       `json:"authorized_at,omitempty"          db:"authorized_at"`
	PostedAt             *time.Time       `json:"posted_at,omitempty"              db:"posted_at"`
	UpdatedAt            time.Time        `json:"updated_at"                       db:"updated_at"`
}

// PageCursor is a keyset position in the newest-first ordering
// (created_at DESC, id DESC). A page starts strictly after it.
type PageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter returns the cursor positioned after t.
func CursorAfter(t *TransferRequest) *PageCursor {
	return &PageCursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// EffectiveDestinationCurrency returns the currency the destination is
// credited in. A nil destination currency means "same as source".
func (r *TransferRequest) EffectiveDestinationCurrency() string {
	if r.DestinationCurrency == nil || strings.TrimSpace(*r.DestinationCurrency) == "" {
		return r.SourceCurrency
	}
	return *r.DestinationCurrency
}

// IsCrossCurrency reports whether the source and destination currencies differ.
func (r *TransferRequest) IsCrossCurrency() bool {
	return !strings.EqualFold(r.SourceCurrency, r.EffectiveDestinationCurrency())
}

// CreditAmount returns the amount the destination receives: Amount for
// same-currency transfers, Amount × ExchangeRate otherwise.
func (r *TransferRequest) CreditAmount() (decimal.Decimal, error) {
	if !r.IsCrossCurrency() {
		return r.Amount, nil
	}
	if r.ExchangeRate == nil || !r.ExchangeRate.IsPositive() {
		return decimal.Zero, &MissingExchangeRateError{
			TransferID: r.ID,
			From:       r.SourceCurrency,
			To:         r.EffectiveDestinationCurrency(),
		}
	}
	return r.Amount.Mul(*r.ExchangeRate), nil
}

// Clone returns a deep copy of r.
func (r *TransferRequest) Clone() *TransferRequest {
	cp := *r
	if r.DestinationCurrency != nil {
		v := *r.DestinationCurrency
		cp.DestinationCurrency = &v
	}
	if r.ExchangeRate != nil {
		v := *r.ExchangeRate
		cp.ExchangeRate = &v
	}
	if r.DestinationAccountID != nil {
		v := *r.DestinationAccountID
		cp.DestinationAccountID = &v
	}
	if r.AuthorizedAt != nil {
		v := *r.AuthorizedAt
		cp.AuthorizedAt = &v
	}
	if r.PostedAt != nil {
		v := *r.PostedAt
		cp.PostedAt = &v
	}
	return &cp
}

// StatusUpdate describes the fields written by a single conditional
// transition. Nil pointer fields leave the stored value untouched.
type StatusUpdate struct {
	PostingStatus PostingStatus
	Status        Status
	Reason        *string
	AuthorizedAt  *time.Time
	PostedAt      *time.Time
}

// Apply writes u onto r.
func (u StatusUpdate) Apply(r *TransferRequest) {
	r.PostingStatus = u.PostingStatus
	r.Status = u.Status
	if u.Reason != nil {
		r.Reason = *u.Reason
	}
	if u.AuthorizedAt != nil {
		t := *u.AuthorizedAt
		r.AuthorizedAt = &t
	}
	if u.PostedAt != nil {
		t := *u.PostedAt
		r.PostedAt = &t
	}
}

// SubmitRequest is the payload an originator sends to create a transfer.
type SubmitRequest struct {
	SourceType           SourceType       `json:"source_type"            binding:"required"`
	DestinationType      DestinationType  `json:"destination_type"       binding:"required"`
	SourceCurrency       string           `json:"source_currency"        binding:"required"`
	DestinationCurrency  *string          `json:"destination_currency"`
	Amount               decimal.Decimal  `json:"amount"`
	TransferType         TransferType     `json:"transfer_type"          binding:"required"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate"`
	Reason               string           `json:"reason"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id"`
}

// Normalize upper-cases currency codes and drops a destination currency that
// only repeats the source currency.
func (r *SubmitRequest) Normalize() {
	r.SourceCurrency = strings.ToUpper(strings.TrimSpace(r.SourceCurrency))
	if r.DestinationCurrency != nil {
		dc := strings.ToUpper(strings.TrimSpace(*r.DestinationCurrency))
		if dc == "" || dc == r.SourceCurrency {
			r.DestinationCurrency = nil
		} else {
			r.DestinationCurrency = &dc
		}
	}
}

// Validate checks the intake rules. The exchange rate is deliberately not
// required here; a cross-currency request without one fails at validation.
func (r *SubmitRequest) Validate() error {
	if !r.SourceType.Valid() {
		return &ErrValidation{Msg: "unknown source_type " + string(r.SourceType)}
	}
	if !r.DestinationType.Valid() {
		return &ErrValidation{Msg: "unknown destination_type " + string(r.DestinationType)}
	}
	if !r.TransferType.Valid() {
		return &ErrValidation{Msg: "unknown transfer_type " + string(r.TransferType)}
	}
	if len(r.SourceCurrency) != 3 {
		return &ErrValidation{Msg: "source_currency must be a 3-letter ISO code"}
	}
	if r.DestinationCurrency != nil && len(*r.DestinationCurrency) != 3 {
		return &ErrValidation{Msg: "destination_currency must be a 3-letter ISO code"}
	}
	if !r.Amount.IsPositive() {
		return &ErrValidation{Msg: "amount must be greater than zero"}
	}
	if r.ExchangeRate != nil && !r.ExchangeRate.IsPositive() {
		return &ErrValidation{Msg: "exchange_rate must be greater than zero"}
	}
	if r.DestinationType.IsLedger() && r.DestinationAccountID == nil {
		return &ErrValidation{Msg: "destination_account_id is required for " + string(r.DestinationType) + " destinations"}
	}
	return nil
}

// NewTransferRequest builds a queued transfer from a validated submission.
func NewTransferRequest(req *SubmitRequest) *TransferRequest {
	return &TransferRequest{
		SourceType:           req.SourceType,
		DestinationType:      req.DestinationType,
		SourceCurrency:       req.SourceCurrency,
		DestinationCurrency:  req.DestinationCurrency,
		Amount:               req.Amount,
		TransferType:         req.TransferType,
		ExchangeRate:         req.ExchangeRate,
		Status:               StatusQueued,
		PostingStatus:        PostingQueued,
		Reason:               req.Reason,
		DestinationAccountID: req.DestinationAccountID,
	}
}
