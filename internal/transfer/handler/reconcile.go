package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/reconcile"
	"go.uber.org/zap"
)

// reconcileRunner is satisfied by *reconcile.Reconciler.
type reconcileRunner interface {
	CheckAll(ctx context.Context) (*reconcile.Report, error)
}

// ReconcileHandler exposes an on-demand reconciliation scan.
type ReconcileHandler struct {
	runner reconcileRunner
	logger *zap.Logger
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(runner reconcileRunner, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{runner: runner, logger: logger}
}

// Register mounts the reconciliation route on the given router group.
func (h *ReconcileHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/reconciliation", h.Run)
}

// Run handles GET /reconciliation.
func (h *ReconcileHandler) Run(c *gin.Context) {
	report, err := h.runner.CheckAll(c.Request.Context())
	if err != nil {
		h.logger.Error("reconciliation scan", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation scan failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checked_at": report.CheckedAt,
		"scanned":    report.Scanned,
		"findings":   report.Findings,
		"consistent": len(report.Findings) == 0,
	})
}
