package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRecorder persists the audit trail to the transfer_audit table.
// It implements the Recorder interface.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecorder creates a PostgresRecorder backed by the given connection pool.
func NewPostgresRecorder(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRecorder {
	return &PostgresRecorder{pool: pool, logger: logger}
}

// Append implements Recorder.
// It takes a transaction-scoped advisory lock keyed on the transfer id, reads
// the chain tail, computes the new hash and inserts the record, all in one
// transaction. Appends to different transfers do not contend.
func (p *PostgresRecorder) Append(ctx context.Context, transferID uuid.UUID, action Action, actor, notes string) (*Record, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown audit action %q", action)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", transferID.String()); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prevSeq := 0
	prevHash := GenesisHash
	err = tx.QueryRow(ctx,
		"SELECT seq, hash FROM transfer_audit WHERE transfer_id = $1 ORDER BY seq DESC LIMIT 1",
		transferID,
	).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	rec := &Record{
		TransferID:  transferID,
		Seq:         prevSeq + 1,
		Action:      action,
		PerformedBy: actor,
		Notes:       notes,
		CreatedAt:   now(),
		PrevHash:    prevHash,
	}
	rec.Hash = hashRecord(rec)

	if _, err := tx.Exec(ctx,
		`INSERT INTO transfer_audit (transfer_id, seq, action, performed_by, notes, created_at, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.TransferID, rec.Seq, rec.Action, rec.PerformedBy,
		rec.Notes, rec.CreatedAt, rec.PrevHash, rec.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	p.logger.Debug("audit record appended",
		zap.String("transfer_id", transferID.String()),
		zap.Int("seq", rec.Seq),
		zap.String("action", string(rec.Action)),
	)
	return rec, nil
}

// List implements Recorder.
func (p *PostgresRecorder) List(ctx context.Context, transferID uuid.UUID) ([]*Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT transfer_id, seq, action, performed_by, notes, created_at, prev_hash, hash
		 FROM transfer_audit WHERE transfer_id = $1 ORDER BY seq ASC`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(
			&r.TransferID, &r.Seq, &r.Action, &r.PerformedBy,
			&r.Notes, &r.CreatedAt, &r.PrevHash, &r.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Verify implements Recorder. O(n) in the length of one transfer's history.
func (p *PostgresRecorder) Verify(ctx context.Context, transferID uuid.UUID) error {
	records, err := p.List(ctx, transferID)
	if err != nil {
		return err
	}
	return verifyChain(records)
}
