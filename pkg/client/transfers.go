package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitRequest is the payload for Submit.
type SubmitRequest struct {
	SourceType           string           `json:"source_type"`
	DestinationType      string           `json:"destination_type"`
	SourceCurrency       string           `json:"source_currency"`
	DestinationCurrency  *string          `json:"destination_currency,omitempty"`
	Amount               decimal.Decimal  `json:"amount"`
	TransferType         string           `json:"transfer_type"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate,omitempty"`
	Reason               string           `json:"reason,omitempty"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty"`
}

// Transfer is a transfer request as returned by the engine.
type Transfer struct {
	ID                   uuid.UUID        `json:"id"`
	SourceType           string           `json:"source_type"`
	DestinationType      string           `json:"destination_type"`
	SourceCurrency       string           `json:"source_currency"`
	DestinationCurrency  *string          `json:"destination_currency,omitempty"`
	Amount               decimal.Decimal  `json:"amount"`
	TransferType         string           `json:"transfer_type"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate,omitempty"`
	Status               string           `json:"status"`
	PostingStatus        string           `json:"posting_status"`
	Reason               string           `json:"reason,omitempty"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	AuthorizedAt         *time.Time       `json:"authorized_at,omitempty"`
	PostedAt             *time.Time       `json:"posted_at,omitempty"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// JournalEntry is the ledger transaction produced by a posting.
type JournalEntry struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	TransferID   uuid.UUID       `json:"transfer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Label        string          `json:"label"`
	CreatedAt    time.Time       `json:"created_at"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// PostResult is returned by Post.
type PostResult struct {
	Transfer    Transfer        `json:"transfer"`
	Transaction *JournalEntry   `json:"transaction,omitempty"`
	Credited    decimal.Decimal `json:"credited"`
}

// AuditRecord is a single entry of a transfer's audit trail.
type AuditRecord struct {
	Seq         int       `json:"seq"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	Hash        string    `json:"hash"`
}

// AuditTrail is returned by Audit.
type AuditTrail struct {
	Records        []AuditRecord `json:"records"`
	ChainIntact    bool          `json:"chain_intact"`
	ChainError     string        `json:"chain_error,omitempty"`
	ReplayedStatus string        `json:"replayed_status"`
}

// Submit creates a new queued transfer.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Transfer, error) {
	var t Transfer
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get fetches a transfer by id.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	var t Transfer
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/transfers/"+id.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListPending returns queued and validated transfers, newest first. limit <= 0
// uses the server default.
func (c *Client) ListPending(ctx context.Context, limit int) ([]Transfer, error) {
	path := "/api/v1/transfers/pending"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var wrapper struct {
		Transfers []Transfer `json:"transfers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Transfers, nil
}

// Validate approves a queued transfer.
func (c *Client) Validate(ctx context.Context, id uuid.UUID, notes string) (*Transfer, error) {
	body := map[string]string{"actor": c.actor, "notes": notes}
	var t Transfer
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers/"+id.String()+"/validate", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Post credits a validated transfer's destination.
func (c *Client) Post(ctx context.Context, id uuid.UUID) (*PostResult, error) {
	body := map[string]string{"actor": c.actor}
	var res PostResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers/"+id.String()+"/post", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reject terminates a pre-posting transfer with a reason.
func (c *Client) Reject(ctx context.Context, id uuid.UUID, reason string) (*Transfer, error) {
	body := map[string]string{"actor": c.actor, "reason": reason}
	var t Transfer
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers/"+id.String()+"/reject", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Audit fetches a transfer's audit trail and integrity status.
func (c *Client) Audit(ctx context.Context, id uuid.UUID) (*AuditTrail, error) {
	var trail AuditTrail
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/transfers/"+id.String()+"/audit", nil, &trail); err != nil {
		return nil, err
	}
	return &trail, nil
}

// Event is a change notification delivered by Watch.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	TransferID uuid.UUID       `json:"transfer_id"`
	Actor      string          `json:"actor,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Transfer   *Transfer       `json:"transfer,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Raw        json.RawMessage `json:"-"`
}
