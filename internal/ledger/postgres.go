package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists accounts and journal transactions in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// CreateAccount implements Store.
func (s *PostgresStore) CreateAccount(ctx context.Context, acct *Account) error {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	acct.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance, currency, created_at) VALUES ($1, $2::numeric, $3, $4)`,
		acct.ID, acct.Balance.String(), acct.Currency, acct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount implements Store.
func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT id, balance::text, currency, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &balance, &a.Currency, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return &a, nil
}

// Credit implements Store. The balance is incremented in SQL rather than read
// and rewritten, so concurrent credits to the same account cannot lose updates.
// The journal insert shares the transaction; transactions.transfer_id is UNIQUE.
func (s *PostgresStore) Credit(ctx context.Context, c Credit) (*Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var after string
	if err := tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2::numeric
		 WHERE id = $1
		 RETURNING balance::text`,
		c.AccountID, c.Amount.String(),
	).Scan(&after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("increment balance: %w", err)
	}

	txn := &Transaction{
		ID:         uuid.New(),
		AccountID:  c.AccountID,
		TransferID: c.TransferID,
		Amount:     c.Amount,
		Label:      c.Label,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, transfer_id, amount, label, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		txn.ID, txn.AccountID, txn.TransferID, txn.Amount.String(), txn.Label, txn.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateJournal
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit tx: %w", err)
	}

	if txn.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		s.logger.Warn("parse balance after credit", zap.String("value", after), zap.Error(err))
	}

	s.logger.Debug("ledger credited",
		zap.String("account_id", c.AccountID.String()),
		zap.String("transfer_id", c.TransferID.String()),
		zap.String("amount", c.Amount.String()),
	)
	return txn, nil
}

// TransactionByTransfer implements Store.
func (s *PostgresStore) TransactionByTransfer(ctx context.Context, transferID uuid.UUID) (*Transaction, error) {
	var t Transaction
	var amount string
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, transfer_id, amount::text, label, created_at
		 FROM transactions WHERE transfer_id = $1`, transferID,
	).Scan(&t.ID, &t.AccountID, &t.TransferID, &amount, &t.Label, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction for transfer %s: %w", transferID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &t, nil
}
