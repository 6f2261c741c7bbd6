package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/identity"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
	"go.uber.org/zap"
)

// transferEngine is the service surface used by TransferHandler.
// *service.Engine satisfies this interface.
type transferEngine interface {
	Submit(ctx context.Context, req *model.SubmitRequest) (*model.TransferRequest, error)
	Validate(ctx context.Context, id uuid.UUID, actor, notes string) (*model.TransferRequest, error)
	Post(ctx context.Context, id uuid.UUID, actor string) (*service.PostingResult, error)
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*model.TransferRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error)
	ListPending(ctx context.Context, limit int) ([]*model.TransferRequest, error)
	History(ctx context.Context, id uuid.UUID) (*service.AuditHistory, error)
}

// systemActor is recorded when a post request names no actor.
const systemActor = "system"

// TransferHandler exposes the transfer lifecycle over HTTP.
type TransferHandler struct {
	engine transferEngine
	logger *zap.Logger
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(engine transferEngine, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{engine: engine, logger: logger}
}

// Register mounts the transfer routes on the given router group.
func (h *TransferHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/transfers")
	{
		t.POST("", h.Submit)
		t.GET("/pending", h.ListPending)
		t.GET("/:id", h.Get)
		t.GET("/:id/audit", h.Audit)
		t.POST("/:id/validate", h.Validate)
		t.POST("/:id/post", h.Post)
		t.POST("/:id/reject", h.Reject)
	}
}

type validateBody struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

type postBody struct {
	Actor string `json:"actor"`
}

type rejectBody struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason" binding:"required"`
}

// Submit handles POST /transfers.
func (h *TransferHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.engine.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Location", "/api/v1/transfers/"+t.ID.String())
	c.JSON(http.StatusCreated, t)
}

// ListPending handles GET /transfers/pending.
func (h *TransferHandler) ListPending(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	transfers, err := h.engine.ListPending(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if transfers == nil {
		transfers = []*model.TransferRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers, "count": len(transfers)})
}

// Get handles GET /transfers/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Audit handles GET /transfers/:id/audit.
func (h *TransferHandler) Audit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	hist, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !hist.ChainIntact {
		h.logger.Warn("audit chain integrity check failed",
			zap.String("transfer_id", id.String()),
			zap.String("error", hist.ChainError),
		)
	}
	c.JSON(http.StatusOK, hist)
}

// Validate handles POST /transfers/:id/validate.
func (h *TransferHandler) Validate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body validateBody
	if !bindOptional(c, &body) {
		return
	}
	actor, ok := resolveActor(c, body.Actor, "")
	if !ok {
		return
	}

	t, err := h.engine.Validate(c.Request.Context(), id, actor, body.Notes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Post handles POST /transfers/:id/post.
func (h *TransferHandler) Post(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body postBody
	if !bindOptional(c, &body) {
		return
	}
	actor, _ := resolveActor(c, body.Actor, systemActor)

	res, err := h.engine.Post(c.Request.Context(), id, actor)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reject handles POST /transfers/:id/reject.
func (h *TransferHandler) Reject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body rejectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, ok := resolveActor(c, body.Actor, "")
	if !ok {
		return
	}

	t, err := h.engine.Reject(c.Request.Context(), id, actor, body.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer id"})
		return uuid.Nil, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// resolveActor picks performed_by: the operator token subject when present,
// else the body's actor, else fallback. An empty result is a 400.
func resolveActor(c *gin.Context, bodyActor, fallback string) (string, bool) {
	if claims := identity.OperatorFromCtx(c); claims != nil {
		return claims.Subject, true
	}
	if a := strings.TrimSpace(bodyActor); a != "" {
		return a, true
	}
	if fallback != "" {
		return fallback, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
	return "", false
}
