package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"go.uber.org/zap"
)

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		partial  *model.PartialPostingError
		posted   *model.AlreadyPostedError
		conflict *model.ConflictError
		invalid  *model.InvalidStateError
		notFound *model.NotFoundError
		rate     *model.MissingExchangeRateError
		valErr   *model.ErrValidation
	)

	switch {
	case errors.As(err, &partial):
		logger.Error("partial posting", zap.String("transfer_id", partial.TransferID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":                   err.Error(),
			"transfer_id":             partial.TransferID,
			"reconciliation_required": true,
		})
	case errors.As(err, &posted):
		c.JSON(http.StatusConflict, gin.H{
			"error":          err.Error(),
			"current_status": model.PostingPosted,
			"acted_by":       posted.ActedBy,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":          err.Error(),
			"current_status": conflict.Actual,
			"acted_by":       conflict.ActedBy,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error":          err.Error(),
			"current_status": invalid.Current,
		})
	case errors.As(err, &notFound):
		status := http.StatusNotFound
		if notFound.Kind == "account" {
			// The transfer exists; its destination does not.
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
	case errors.As(err, &rate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("transfer request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
