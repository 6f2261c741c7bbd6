package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"github.com/shopspring/decimal"
)

// transferColumns is the projection shared by every SELECT/RETURNING clause.
// Decimals cross the driver boundary as text.
const transferColumns = `
	id, source_type, destination_type, source_currency, destination_currency,
	amount::text, transfer_type, exchange_rate::text, status, cbs_posting_status,
	reason, destination_account_id, created_at, authorized_at, posted_at, updated_at`

// TransferRepository provides persistence for transfer requests against PostgreSQL.
type TransferRepository struct {
	db *pgxpool.Pool
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(db *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a new transfer request. The request is always stored queued.
func (r *TransferRepository) Create(ctx context.Context, req *model.TransferRequest) error {
	req.ID = uuid.New()
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	req.Status = model.StatusQueued
	req.PostingStatus = model.PostingQueued

	var rate *string
	if req.ExchangeRate != nil {
		s := req.ExchangeRate.String()
		rate = &s
	}

	query := `
		INSERT INTO transfer_requests (
			id, source_type, destination_type, source_currency, destination_currency,
			amount, transfer_type, exchange_rate, status, cbs_posting_status,
			reason, destination_account_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7, $8::numeric, $9, $10,
			$11, $12, $13, $13
		)`
	_, err := r.db.Exec(ctx, query,
		req.ID, req.SourceType, req.DestinationType, req.SourceCurrency, req.DestinationCurrency,
		req.Amount.String(), req.TransferType, rate, req.Status, req.PostingStatus,
		req.Reason, req.DestinationAccountID, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer request: %w", err)
	}
	return nil
}

// GetByID retrieves a transfer request by id.
func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transferColumns+` FROM transfer_requests WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &model.NotFoundError{Kind: "transfer", ID: id}
	}
	return scanTransfer(rows)
}

// ListByPostingStatus returns requests in any of the given posting statuses,
// newest first. limit <= 0 defaults to 100.
func (r *TransferRepository) ListByPostingStatus(ctx context.Context, statuses []model.PostingStatus, limit int) ([]*model.TransferRequest, error) {
	return r.ListPage(ctx, statuses, nil, limit)
}

// ListPage returns up to limit requests in the given statuses that sort after
// the cursor in (created_at DESC, id DESC) order. A nil cursor starts at the
// newest request. limit <= 0 defaults to 100.
func (r *TransferRepository) ListPage(ctx context.Context, statuses []model.PostingStatus, after *model.PageCursor, limit int) ([]*model.TransferRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT ` + transferColumns + `
		FROM transfer_requests
		WHERE cbs_posting_status = ANY($1)`
	args := []any{names}
	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TransferRequest
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateStatus applies upd only if the stored posting status still equals
// expected. The guard and the write are one statement, so two callers racing
// on the same transition cannot both succeed. When no row is updated the
// request is re-read to tell a missing request from a lost race.
func (r *TransferRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected model.PostingStatus, upd model.StatusUpdate) (*model.TransferRequest, error) {
	query := `
		UPDATE transfer_requests SET
			cbs_posting_status = $3,
			status             = $4,
			reason             = COALESCE($5, reason),
			authorized_at      = COALESCE($6, authorized_at),
			posted_at          = COALESCE($7, posted_at),
			updated_at         = now()
		WHERE id = $1 AND cbs_posting_status = $2
		RETURNING ` + transferColumns

	rows, err := r.db.Query(ctx, query,
		id, expected, upd.PostingStatus, upd.Status,
		upd.Reason, upd.AuthorizedAt, upd.PostedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("conditional status update: %w", err)
	}

	if rows.Next() {
		t, scanErr := scanTransfer(rows)
		rows.Close()
		return t, scanErr
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conditional status update: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &model.ConflictError{TransferID: id, Expected: expected, Actual: current.PostingStatus}
}

// scanTransfer reads a single transfer request from a pgx.Rows cursor.
// Column order matches transferColumns.
func scanTransfer(rows pgx.Rows) (*model.TransferRequest, error) {
	var t model.TransferRequest
	var amount string
	var rate *string

	err := rows.Scan(
		&t.ID, &t.SourceType, &t.DestinationType, &t.SourceCurrency, &t.DestinationCurrency,
		&amount, &t.TransferType, &rate, &t.Status, &t.PostingStatus,
		&t.Reason, &t.DestinationAccountID, &t.CreatedAt, &t.AuthorizedAt, &t.PostedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if rate != nil {
		d, err := decimal.NewFromString(*rate)
		if err != nil {
			return nil, fmt.Errorf("parse exchange_rate: %w", err)
		}
		t.ExchangeRate = &d
	}
	return &t, nil
}
