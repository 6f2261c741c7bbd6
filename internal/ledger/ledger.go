// Package ledger is the engine's port onto the external account ledger.
//
// The engine never reads-then-writes a balance. Credit applies an atomic
// increment and writes the journal Transaction in the same unit of work, and
// the journal is unique per transfer so a request can never be journalled twice.
//
// Two implementations of Store are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned when a ledger account does not exist.
	ErrAccountNotFound = errors.New("ledger account not found")
	// ErrTransactionNotFound is returned when no journal entry exists for a transfer.
	ErrTransactionNotFound = errors.New("ledger transaction not found")
	// ErrDuplicateJournal is returned when a transfer already has a journal entry.
	ErrDuplicateJournal = errors.New("transfer already journalled")
)

// Account is a balance-bearing ledger entity.
type Account struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	Balance   decimal.Decimal `json:"balance"    db:"balance"`
	Currency  string          `json:"currency"   db:"currency"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Transaction is the journal entry produced by a successful posting.
type Transaction struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	AccountID  uuid.UUID       `json:"account_id"  db:"account_id"`
	TransferID uuid.UUID       `json:"transfer_id" db:"transfer_id"`
	Amount     decimal.Decimal `json:"amount"      db:"amount"`
	Label      string          `json:"label"       db:"label"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
	// BalanceAfter is the account balance immediately after this credit.
	// It is returned by Credit and never stored.
	BalanceAfter decimal.Decimal `json:"balance_after" db:"-"`
}

// Credit is a single "credit by amount" mutation.
type Credit struct {
	AccountID  uuid.UUID
	TransferID uuid.UUID
	Amount     decimal.Decimal
	Label      string
}

// Store is the ledger port used by validation, posting and reconciliation.
type Store interface {
	// CreateAccount opens a new account. Accounts are owned externally; this
	// exists for seeding and tests.
	CreateAccount(ctx context.Context, acct *Account) error

	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	// Credit atomically increments the account balance and writes one journal
	// Transaction. Either both happen or neither does.
	Credit(ctx context.Context, c Credit) (*Transaction, error)

	// TransactionByTransfer returns the journal entry for a transfer or
	// ErrTransactionNotFound.
	TransactionByTransfer(ctx context.Context, transferID uuid.UUID) (*Transaction, error)
}
