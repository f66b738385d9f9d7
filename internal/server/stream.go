package server

import (
	"io"
	"net/http"
	"time"

	"github.com/dividis/backend/internal/declarations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type realtimePayload struct {
	Kind        declarations.ChangeKind  `json:"kind"`
	ActorID     string                   `json:"actorId"`
	Declaration declarations.Declaration `json:"declaration"`
	Source      string                   `json:"source"`
	Timestamp   string                   `json:"timestamp"`
	Subscribers int                      `json:"subscribers"`
}

type heartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// handleDeclarationStream serves committed feed changes as server-sent events
// until the client disconnects.
func (h *httpHandler) handleDeclarationStream(c *gin.Context) {
	userID := currentUserID(c)
	ctx := c.Request.Context()
	messages, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
		Source:    realtimeSourceBackend,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	c.Writer.Flush()
	h.logger.Debug("feed stream opened", zap.String("user_id", userID))

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-messages:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Kind:        message.Change.Kind,
				ActorID:     message.Change.ActorID,
				Declaration: message.Change.Declaration,
				Source:      realtimeSourceBackend,
				Timestamp:   message.Timestamp.Format(time.RFC3339Nano),
				Subscribers: message.Subscribers,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
			})
			return true
		}
	})
	h.logger.Debug("feed stream closed", zap.String("user_id", userID))
}
