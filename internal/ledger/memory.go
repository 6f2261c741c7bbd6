package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
type MemoryStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]*Account
	byTransfer map[uuid.UUID]*Transaction
	journal    []*Transaction
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[uuid.UUID]*Account),
		byTransfer: make(map[uuid.UUID]*Transaction),
	}
}

// CreateAccount implements Store. A zero ID is replaced with a new UUID.
func (s *MemoryStore) CreateAccount(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	cp := *acct
	s.accounts[acct.ID] = &cp
	return nil
}

// GetAccount implements Store.
func (s *MemoryStore) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// Credit implements Store.
func (s *MemoryStore) Credit(_ context.Context, c Credit) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[c.AccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if _, dup := s.byTransfer[c.TransferID]; dup {
		return nil, ErrDuplicateJournal
	}

	a.Balance = a.Balance.Add(c.Amount)
	txn := &Transaction{
		ID:           uuid.New(),
		AccountID:    c.AccountID,
		TransferID:   c.TransferID,
		Amount:       c.Amount,
		Label:        c.Label,
		CreatedAt:    time.Now().UTC(),
		BalanceAfter: a.Balance,
	}
	s.byTransfer[c.TransferID] = txn
	s.journal = append(s.journal, txn)

	cp := *txn
	return &cp, nil
}

// TransactionByTransfer implements Store.
func (s *MemoryStore) TransactionByTransfer(_ context.Context, transferID uuid.UUID) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byTransfer[transferID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

// Transactions returns every journal entry for an account in write order.
func (s *MemoryStore) Transactions(accountID uuid.UUID) []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, t := range s.journal {
		if t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}
