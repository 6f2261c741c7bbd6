package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/reconcile"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/repository"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

type env struct {
	repo     *repository.MemoryTransferRepository
	store    *ledger.MemoryStore
	recorder *audit.MemoryRecorder
	engine   *service.Engine
	acct     *ledger.Account
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		repo:     repository.NewMemoryTransferRepository(),
		store:    ledger.NewMemoryStore(),
		recorder: audit.NewMemoryRecorder(),
	}
	e.engine = service.NewEngine(e.repo, e.store, e.recorder, zap.NewNop())
	e.acct = &ledger.Account{Currency: "ZAR", Balance: decimal.Zero}
	require.NoError(t, e.store.CreateAccount(ctx, e.acct))
	return e
}

func (e *env) submit(t *testing.T) *model.TransferRequest {
	t.Helper()
	id := e.acct.ID
	tr, err := e.engine.Submit(ctx, &model.SubmitRequest{
		SourceType:           model.SourceExternal,
		DestinationType:      model.DestinationMainBank,
		SourceCurrency:       "ZAR",
		Amount:               decimal.NewFromInt(10),
		TransferType:         model.TransferInternalLiquidity,
		DestinationAccountID: &id,
	})
	require.NoError(t, err)
	return tr
}

func (e *env) reconciler() *reconcile.Reconciler {
	return reconcile.New(e.repo, e.store, e.recorder, reconcile.Config{GracePeriod: time.Nanosecond}, zap.NewNop())
}

func TestCheckAll_CleanEngineHasNoFindings(t *testing.T) {
	e := newEnv(t)
	a := e.submit(t)
	_, err := e.engine.Validate(ctx, a.ID, "checker", "")
	require.NoError(t, err)
	_, err = e.engine.Post(ctx, a.ID, "poster")
	require.NoError(t, err)
	b := e.submit(t)
	_, err = e.engine.Reject(ctx, b.ID, "ops", "dup")
	require.NoError(t, err)
	e.submit(t)

	report, err := e.reconciler().CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Empty(t, report.Findings)
}

func TestCheckAll_ReportsPostedWithoutJournal(t *testing.T) {
	e := newEnv(t)
	tr := e.submit(t)
	_, err := e.engine.Validate(ctx, tr.ID, "checker", "")
	require.NoError(t, err)

	// Flip to posted without crediting, as a crash between the two would.
	posted := time.Now().Add(-time.Hour)
	_, err = e.repo.UpdateStatus(ctx, tr.ID, model.PostingValidated, model.StatusUpdate{
		PostingStatus: model.PostingPosted,
		Status:        model.StatusPosted,
		PostedAt:      &posted,
	})
	require.NoError(t, err)
	_, err = e.recorder.Append(ctx, tr.ID, audit.ActionPosted, "poster", "")
	require.NoError(t, err)

	var seen []reconcile.Finding
	var counts map[string]int
	r := e.reconciler()
	r.SetFindingCallback(func(f reconcile.Finding) { seen = append(seen, f) })
	r.SetMetricsRecord(func(c map[string]int) { counts = c })

	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, reconcile.KindMissingJournal, report.Findings[0].Kind)
	assert.Equal(t, tr.ID, report.Findings[0].TransferID)
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, counts[reconcile.KindMissingJournal])
	assert.Equal(t, 0, counts[reconcile.KindAuditMismatch])
}

func TestCheckAll_RespectsGracePeriod(t *testing.T) {
	e := newEnv(t)
	tr := e.submit(t)
	_, _ = e.engine.Validate(ctx, tr.ID, "checker", "")
	now := time.Now().UTC()
	_, err := e.repo.UpdateStatus(ctx, tr.ID, model.PostingValidated, model.StatusUpdate{
		PostingStatus: model.PostingPosted,
		Status:        model.StatusPosted,
		PostedAt:      &now,
	})
	require.NoError(t, err)
	_, _ = e.recorder.Append(ctx, tr.ID, audit.ActionPosted, "poster", "")

	r := reconcile.New(e.repo, e.store, e.recorder, reconcile.Config{GracePeriod: time.Hour}, zap.NewNop())
	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestCheckAll_ReportsAuditMismatch(t *testing.T) {
	e := newEnv(t)
	tr := e.submit(t)

	// Status moved without an audit record.
	_, err := e.repo.UpdateStatus(ctx, tr.ID, model.PostingQueued, model.StatusUpdate{
		PostingStatus: model.PostingValidated,
		Status:        model.StatusApproved,
	})
	require.NoError(t, err)

	report, err := e.reconciler().CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, reconcile.KindAuditMismatch, report.Findings[0].Kind)
	assert.Contains(t, report.Findings[0].Detail, "stored validated")
}

func TestCheckAll_IgnoresHoldingDestinations(t *testing.T) {
	e := newEnv(t)
	tr, err := e.engine.Submit(ctx, &model.SubmitRequest{
		SourceType:      model.SourceExternal,
		DestinationType: model.DestinationFXHolding,
		SourceCurrency:  "USD",
		Amount:          decimal.NewFromInt(3),
		TransferType:    model.TransferFXAllocation,
	})
	require.NoError(t, err)
	_, err = e.engine.Validate(ctx, tr.ID, "checker", "")
	require.NoError(t, err)
	_, err = e.engine.Post(ctx, tr.ID, "poster")
	require.NoError(t, err)

	report, err := e.reconciler().CheckAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestCheckAll_UnknownTransferHasNoFindings(t *testing.T) {
	e := newEnv(t)
	_, err := e.store.TransactionByTransfer(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	report, err := e.reconciler().CheckAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestCheckAll_PagesPastBatchLimit(t *testing.T) {
	e := newEnv(t)
	old := e.submit(t)
	_, err := e.engine.Validate(ctx, old.ID, "checker", "")
	require.NoError(t, err)
	posted := time.Now().Add(-time.Hour)
	_, err = e.repo.UpdateStatus(ctx, old.ID, model.PostingValidated, model.StatusUpdate{
		PostingStatus: model.PostingPosted,
		Status:        model.StatusPosted,
		PostedAt:      &posted,
	})
	require.NoError(t, err)
	_, err = e.recorder.Append(ctx, old.ID, audit.ActionPosted, "poster", "")
	require.NoError(t, err)

	// Newer requests fill the first page.
	for i := 0; i < 3; i++ {
		e.submit(t)
	}

	r := reconcile.New(e.repo, e.store, e.recorder, reconcile.Config{
		GracePeriod: time.Nanosecond,
		BatchLimit:  3,
	}, zap.NewNop())
	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, reconcile.KindMissingJournal, report.Findings[0].Kind)
	assert.Equal(t, old.ID, report.Findings[0].TransferID)
}

func TestCheckAll_ExactMultipleOfBatchLimit(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 4; i++ {
		e.submit(t)
	}
	r := reconcile.New(e.repo, e.store, e.recorder, reconcile.Config{
		GracePeriod: time.Nanosecond,
		BatchLimit:  2,
	}, zap.NewNop())
	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.Empty(t, report.Findings)
}

func TestCheckAll_SkipsRecentlyChangedRequests(t *testing.T) {
	e := newEnv(t)
	tr := e.submit(t)

	// Status committed, audit append not yet written.
	_, err := e.repo.UpdateStatus(ctx, tr.ID, model.PostingQueued, model.StatusUpdate{
		PostingStatus: model.PostingValidated,
		Status:        model.StatusApproved,
	})
	require.NoError(t, err)

	r := reconcile.New(e.repo, e.store, e.recorder, reconcile.Config{GracePeriod: time.Hour}, zap.NewNop())
	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

// staleLister serves pages captured before a transition committed, while
// single-row reads see the current state.
type staleLister struct {
	*repository.MemoryTransferRepository
	page []*model.TransferRequest
}

func (s *staleLister) ListPage(context.Context, []model.PostingStatus, *model.PageCursor, int) ([]*model.TransferRequest, error) {
	return s.page, nil
}

func TestCheckAll_IgnoresTransitionDuringScan(t *testing.T) {
	e := newEnv(t)
	tr := e.submit(t)
	snapshot, err := e.repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	// Let the snapshot fall outside the grace period.
	snapshot.UpdatedAt = snapshot.UpdatedAt.Add(-time.Hour)

	_, err = e.engine.Validate(ctx, tr.ID, "checker", "")
	require.NoError(t, err)

	lister := &staleLister{MemoryTransferRepository: e.repo, page: []*model.TransferRequest{snapshot}}
	r := reconcile.New(lister, e.store, e.recorder, reconcile.Config{GracePeriod: time.Minute}, zap.NewNop())
	report, err := r.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Empty(t, report.Findings)
}
