package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/handler"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/repository"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
	"github.com/jmerrifield20/TreasuryPostingEngine/pkg/client"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// engineServer starts the real router over in-memory stores and returns its
// URL and the id of a ZAR account holding 100.
func engineServer(t *testing.T) (string, uuid.UUID, *ledger.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	repo := repository.NewMemoryTransferRepository()
	store := ledger.NewMemoryStore()
	broker := feed.NewBroker(16, logger)
	engine := service.NewEngine(repo, store, audit.NewMemoryRecorder(), logger)
	engine.SetPublisher(broker)

	acct := &ledger.Account{Currency: "ZAR", Balance: decimal.NewFromInt(100)}
	require.NoError(t, store.CreateAccount(context.Background(), acct))

	ctx, cancel := context.WithCancel(context.Background())
	router := handler.NewRouter(ctx, handler.RouterOptions{
		Transfers: handler.NewTransferHandler(engine, logger),
		Stream:    handler.NewStreamHandler(broker, time.Second, logger),
		Logger:    logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv.URL, acct.ID, store
}

func TestClient_Lifecycle(t *testing.T) {
	base, acctID, store := engineServer(t)
	c := client.MustNew(base, client.WithActor("sdk-operator"))
	ctx := context.Background()

	tr, err := c.Submit(ctx, client.SubmitRequest{
		SourceType:           "external",
		DestinationType:      "main_bank",
		SourceCurrency:       "ZAR",
		Amount:               decimal.NewFromInt(10000),
		TransferType:         "capital_injection",
		DestinationAccountID: &acctID,
	})
	require.NoError(t, err)
	assert.Equal(t, "queued", tr.PostingStatus)

	pending, err := c.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tr.ID, pending[0].ID)

	v, err := c.Validate(ctx, tr.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, "validated", v.PostingStatus)

	res, err := c.Post(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)
	assert.True(t, res.Credited.Equal(decimal.NewFromInt(10000)))
	assert.True(t, res.Transaction.BalanceAfter.Equal(decimal.NewFromInt(10100)))

	acct, _ := store.GetAccount(ctx, acctID)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(10100)))

	_, err = c.Post(ctx, tr.ID)
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "sdk-operator", apiErr.ActedBy)

	trail, err := c.Audit(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, trail.ChainIntact)
	assert.Equal(t, "posted", trail.ReplayedStatus)
	assert.Len(t, trail.Records, 2)
}

func TestClient_NotFound(t *testing.T) {
	base, _, _ := engineServer(t)
	c := client.MustNew(base)
	_, err := c.Get(context.Background(), uuid.New())
	assert.True(t, client.IsNotFound(err))
}

func TestClient_RejectNeedsActor(t *testing.T) {
	base, _, _ := engineServer(t)
	c := client.MustNew(base)
	ctx := context.Background()

	tr, err := c.Submit(ctx, client.SubmitRequest{
		SourceType:      "external",
		DestinationType: "fx_holding",
		SourceCurrency:  "USD",
		Amount:          decimal.NewFromInt(5),
		TransferType:    "fx_allocation",
	})
	require.NoError(t, err)

	_, err = c.Reject(ctx, tr.ID, "duplicate")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)

	c2 := client.MustNew(base, client.WithActor("ops"))
	got, err := c2.Reject(ctx, tr.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, "rejected", got.Status)
	assert.Equal(t, "duplicate", got.Reason)
}

func TestClient_Watch(t *testing.T) {
	base, acctID, _ := engineServer(t)
	c := client.MustNew(base, client.WithActor("ops"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := c.Watch(ctx, nil)
	require.NoError(t, err)

	tr, err := c.Submit(ctx, client.SubmitRequest{
		SourceType:           "external",
		DestinationType:      "main_bank",
		SourceCurrency:       "ZAR",
		Amount:               decimal.NewFromInt(1),
		TransferType:         "internal_liquidity",
		DestinationAccountID: &acctID,
	})
	require.NoError(t, err)

	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed early")
		assert.Equal(t, "transfer.submitted", ev.Type)
		assert.Equal(t, tr.ID, ev.TransferID)
		require.NotNil(t, ev.Transfer)
		assert.Equal(t, "queued", ev.Transfer.PostingStatus)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
