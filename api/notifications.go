package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

func (impl *ServerImpl) GetNotifications(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "Invalid limit")
			return
		}
		limit = min(n, maxNotificationLimit)
	}
	unreadOnly := c.Query("unread") == "true"

	notifications, err := impl.inbox.List(c.Request.Context(), currentUserID(c), limit, unreadOnly)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (impl *ServerImpl) GetUnreadCount(c *gin.Context) {
	count, err := impl.inbox.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (impl *ServerImpl) PostRead(c *gin.Context) {
	notificationID, ok := uuidParam(c, "notificationID", "notification")
	if !ok {
		return
	}
	if err := impl.inbox.MarkRead(c.Request.Context(), currentUserID(c), notificationID); err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (impl *ServerImpl) PostReadAll(c *gin.Context) {
	updated, err := impl.inbox.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": updated})
}
