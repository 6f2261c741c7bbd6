// Package reconcile periodically cross-checks transfer requests against the
// ledger journal and the audit trail. It reports inconsistencies and never
// repairs them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// Finding kinds.
const (
	KindMissingJournal   = "missing_journal"
	KindAuditMismatch    = "audit_mismatch"
	KindAuditChainBroken = "audit_chain_broken"
)

// Kinds lists every finding kind.
var Kinds = []string{KindMissingJournal, KindAuditMismatch, KindAuditChainBroken}

// Config holds reconciliation configuration.
type Config struct {
	Interval time.Duration
	// GracePeriod skips requests changed more recently than this, so an
	// in-flight credit or audit append is not reported.
	GracePeriod time.Duration
	// BatchLimit is the page size; a scan pages until every request is seen.
	BatchLimit int
}

// TransferLister pages through transfer requests and re-reads single rows.
// *repository.TransferRepository satisfies this interface.
type TransferLister interface {
	ListPage(ctx context.Context, statuses []model.PostingStatus, after *model.PageCursor, limit int) ([]*model.TransferRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error)
}

// minScanTimeout bounds a periodic scan when the interval is very short.
const minScanTimeout = 30 * time.Second

// scanStatuses are the posting statuses every scan walks.
var scanStatuses = []model.PostingStatus{
	model.PostingQueued, model.PostingValidated, model.PostingPosted, model.PostingFailed,
}

// JournalLookup finds the journal entry of a transfer. ledger.Store satisfies
// this interface.
type JournalLookup interface {
	TransactionByTransfer(ctx context.Context, transferID uuid.UUID) (*ledger.Transaction, error)
}

// Finding is a single reconciliation problem.
type Finding struct {
	TransferID    uuid.UUID              `json:"transfer_id"`
	Kind          string                 `json:"kind"`
	Detail        string                 `json:"detail"`
	PostingStatus model.PostingStatus    `json:"posting_status"`
	Transfer      *model.TransferRequest `json:"-"`
}

// Report is the outcome of one scan.
type Report struct {
	CheckedAt time.Time `json:"checked_at"`
	Scanned   int       `json:"scanned"`
	Findings  []Finding `json:"findings"`
}

// FindingFunc is an optional callback invoked once per finding.
type FindingFunc func(f Finding)

// MetricsRecordFunc is an optional callback receiving the finding count per kind
// after every scan.
type MetricsRecordFunc func(counts map[string]int)

// Reconciler runs periodic consistency scans.
type Reconciler struct {
	transfers TransferLister
	journal   JournalLookup
	audit     audit.Recorder
	cfg       Config
	now       func() time.Time
	onFinding FindingFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Reconciler.
func New(transfers TransferLister, journal JournalLookup, recorder audit.Recorder, cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Minute
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 1000
	}
	return &Reconciler{
		transfers: transfers,
		journal:   journal,
		audit:     recorder,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// SetFindingCallback configures the per-finding callback.
func (r *Reconciler) SetFindingCallback(fn FindingFunc) {
	r.onFinding = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (r *Reconciler) SetMetricsRecord(fn MetricsRecordFunc) {
	r.onMetrics = fn
}

// Start runs the reconciliation loop until quit is signalled.
func (r *Reconciler) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.scanTimeout())
			if _, err := r.CheckAll(ctx); err != nil {
				r.logger.Error("reconcile: scan failed", zap.Error(err))
			}
			cancel()
		case <-quit:
			return
		}
	}
}

// scanTimeout leaves a second of slack before the next tick, but never less
// than minScanTimeout.
func (r *Reconciler) scanTimeout() time.Duration {
	if d := r.cfg.Interval - time.Second; d > minScanTimeout {
		return d
	}
	return minScanTimeout
}

// CheckAll scans every transfer request, one BatchLimit page at a time, with
// bounded concurrency inside each page.
func (r *Reconciler) CheckAll(ctx context.Context) (*Report, error) {
	report := &Report{CheckedAt: r.now(), Findings: []Finding{}}
	var mu sync.Mutex
	sem := make(chan struct{}, 10)

	var cursor *model.PageCursor
	for {
		page, err := r.transfers.ListPage(ctx, scanStatuses, cursor, r.cfg.BatchLimit)
		if err != nil {
			return nil, fmt.Errorf("list transfers: %w", err)
		}
		report.Scanned += len(page)

		var wg sync.WaitGroup
		for _, t := range page {
			wg.Add(1)
			go func(t *model.TransferRequest) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				found := r.check(ctx, t)
				if len(found) == 0 {
					return
				}
				mu.Lock()
				report.Findings = append(report.Findings, found...)
				mu.Unlock()
			}(t)
		}
		wg.Wait()

		if len(page) < r.cfg.BatchLimit {
			break
		}
		cursor = model.CursorAfter(page[len(page)-1])
	}

	counts := make(map[string]int, len(Kinds))
	for _, k := range Kinds {
		counts[k] = 0
	}
	for _, f := range report.Findings {
		counts[f.Kind]++
		r.logger.Error("RECONCILIATION REQUIRED",
			zap.String("transfer_id", f.TransferID.String()),
			zap.String("kind", f.Kind),
			zap.String("detail", f.Detail),
		)
		if r.onFinding != nil {
			r.onFinding(f)
		}
	}
	if r.onMetrics != nil {
		r.onMetrics(counts)
	}

	r.logger.Info("reconcile: scan complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("findings", len(report.Findings)),
	)
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, t *model.TransferRequest) []Finding {
	var out []Finding
	add := func(kind, detail string) {
		out = append(out, Finding{
			TransferID:    t.ID,
			Kind:          kind,
			Detail:        detail,
			PostingStatus: t.PostingStatus,
			Transfer:      t,
		})
	}

	if t.PostingStatus == model.PostingPosted && t.DestinationType.IsLedger() && r.settled(t) {
		_, err := r.journal.TransactionByTransfer(ctx, t.ID)
		switch {
		case errors.Is(err, ledger.ErrTransactionNotFound):
			add(KindMissingJournal, "posted without a ledger transaction")
		case err != nil:
			r.logger.Warn("reconcile: journal lookup", zap.String("transfer_id", t.ID.String()), zap.Error(err))
		}
	}

	if r.audit == nil {
		return out
	}
	if err := r.audit.Verify(ctx, t.ID); err != nil {
		add(KindAuditChainBroken, err.Error())
		return out
	}
	if r.recent(t.UpdatedAt) {
		return out
	}
	recs, err := r.audit.List(ctx, t.ID)
	if err != nil {
		r.logger.Warn("reconcile: list audit", zap.String("transfer_id", t.ID.String()), zap.Error(err))
		return out
	}
	replayed, err := audit.Replay(recs)
	if err == nil && replayed == t.PostingStatus {
		return out
	}
	if r.movedSince(ctx, t) {
		return out
	}
	if err != nil {
		add(KindAuditMismatch, err.Error())
	} else {
		add(KindAuditMismatch, fmt.Sprintf("audit replays to %s, stored %s", replayed, t.PostingStatus))
	}
	return out
}

// movedSince re-reads t and reports whether it changed after the page was
// read. A transition committing between the page read and the audit read
// would otherwise look like a mismatch.
func (r *Reconciler) movedSince(ctx context.Context, t *model.TransferRequest) bool {
	cur, err := r.transfers.GetByID(ctx, t.ID)
	if err != nil {
		r.logger.Warn("reconcile: re-read transfer", zap.String("transfer_id", t.ID.String()), zap.Error(err))
		return true
	}
	return cur.PostingStatus != t.PostingStatus || !cur.UpdatedAt.Equal(t.UpdatedAt)
}

// recent reports whether at lies inside the grace period.
func (r *Reconciler) recent(at time.Time) bool {
	return r.now().Sub(at) < r.cfg.GracePeriod
}

// settled reports whether t was posted longer ago than the grace period.
func (r *Reconciler) settled(t *model.TransferRequest) bool {
	if t.PostedAt == nil {
		return true
	}
	return !r.recent(*t.PostedAt)
}
