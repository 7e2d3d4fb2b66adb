package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bidhall/notify"
)

var keepaliveInterval = 30 * time.Second

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// serveEvents 訂閱頻道並持續將事件寫給客戶端，直到連線中斷或管理器關閉
func (impl *ServerImpl) serveEvents(c *gin.Context, channel string) {
	events, err := impl.sseManager.Subscribe(channel)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Realtime updates are unavailable"})
		return
	}
	defer impl.sseManager.Unsubscribe(channel, events)

	sseHeaders(c)
	c.Status(http.StatusOK)
	if _, err := c.Writer.WriteString(": connected\n\n"); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				impl.logger.Debug("Event channel closed", slog.String("channel", channel))
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// GetAuctionEvents 拍賣頻道：bidUpdated、auctionEnded
func (impl *ServerImpl) GetAuctionEvents(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	if _, err := impl.store.GetAuction(c.Request.Context(), auctionID); err != nil {
		impl.respondError(c, err)
		return
	}
	impl.serveEvents(c, notify.AuctionChannel(auctionID))
}

// GetNotificationEvents 使用者個人頻道：newNotification
func (impl *ServerImpl) GetNotificationEvents(c *gin.Context) {
	impl.serveEvents(c, notify.UserChannel(currentUserID(c)))
}
