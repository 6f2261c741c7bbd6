package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"go.uber.org/zap"
)

// subscriber is satisfied by *feed.Broker.
type subscriber interface {
	Subscribe(ctx context.Context) *feed.Subscription
}

// StreamHandler serves the change feed as Server-Sent Events.
type StreamHandler struct {
	broker    subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler creates a StreamHandler. heartbeat <= 0 uses 15s.
func NewStreamHandler(broker subscriber, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{broker: broker, heartbeat: heartbeat, logger: logger}
}

// Register mounts the stream route on the given router group.
func (h *StreamHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/transfers/stream", h.Stream)
}

// Stream handles GET /transfers/stream. The optional transfer_id query
// parameter restricts the stream to one request.
func (h *StreamHandler) Stream(c *gin.Context) {
	var only uuid.UUID
	if v := c.Query("transfer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer_id"})
			return
		}
		only = id
	}

	ctx := c.Request.Context()
	sub := h.broker.Subscribe(ctx)
	defer sub.Close()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Render(-1, sse.Event{Event: "ready", Data: gin.H{"filter": only}})
	c.Writer.Flush()

	h.logger.Debug("feed: stream opened", zap.String("client", c.ClientIP()))
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			if only != uuid.Nil && ev.TransferID != only {
				return true
			}
			c.Render(-1, sse.Event{Id: ev.ID.String(), Event: ev.Type, Data: ev})
			return true
		case t := <-ticker.C:
			c.Render(-1, sse.Event{Event: "heartbeat", Data: gin.H{"time": t.UTC()}})
			return true
		case <-ctx.Done():
			return false
		}
	})
	h.logger.Debug("feed: stream closed", zap.String("client", c.ClientIP()))
}
