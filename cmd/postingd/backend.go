package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/repository"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
)

// backend bundles the three stores the engine runs on.
type backend struct {
	transfers service.TransferStore
	ledger    ledger.Store
	audit     audit.Recorder
	close     func()
}

// openBackend builds the stores selected by store.backend: "postgres"
// (default) or "memory" for local development.
func openBackend(ctx context.Context, logger *zap.Logger) (*backend, error) {
	switch kind := viper.GetString("store.backend"); kind {
	case "memory":
		store := ledger.NewMemoryStore()
		if err := seedAccounts(ctx, store, logger); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory stores, state is lost on restart")
		return &backend{
			transfers: repository.NewMemoryTransferRepository(),
			ledger:    store,
			audit:     audit.NewMemoryRecorder(),
			close:     func() {},
		}, nil

	case "postgres", "":
		db, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database")
		return &backend{
			transfers: repository.NewTransferRepository(db),
			ledger:    ledger.NewPostgresStore(db, logger),
			audit:     audit.NewPostgresRecorder(db, logger),
			close:     db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store.backend %q", kind)
	}
}

// seedAccounts opens the accounts listed under seed.accounts.
func seedAccounts(ctx context.Context, store ledger.Store, logger *zap.Logger) error {
	var seeds []seedAccount
	if err := viper.UnmarshalKey("seed.accounts", &seeds); err != nil {
		return fmt.Errorf("parse seed.accounts: %w", err)
	}
	for _, s := range seeds {
		acct := &ledger.Account{Currency: s.Currency, Balance: decimal.Zero}
		if s.ID != "" {
			id, err := uuid.Parse(s.ID)
			if err != nil {
				return fmt.Errorf("seed account id %q: %w", s.ID, err)
			}
			acct.ID = id
		}
		if s.Balance != "" {
			bal, err := decimal.NewFromString(s.Balance)
			if err != nil {
				return fmt.Errorf("seed account %s balance: %w", s.ID, err)
			}
			acct.Balance = bal
		}
		if err := store.CreateAccount(ctx, acct); err != nil {
			return fmt.Errorf("seed account: %w", err)
		}
		logger.Info("seeded ledger account",
			zap.String("id", acct.ID.String()),
			zap.String("currency", acct.Currency),
			zap.String("balance", acct.Balance.String()),
		)
	}
	return nil
}
