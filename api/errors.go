package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bidhall/apperr"
)

// respondError 將業務錯誤轉為對應的狀態碼，其餘錯誤一律回應 500 並記錄
func (impl *ServerImpl) respondError(c *gin.Context, err error) {
	reason := apperr.ReasonOf(err)
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		c.JSON(http.StatusBadRequest, gin.H{"message": reason})
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"message": reason})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"message": reason})
	case apperr.KindTimeout:
		impl.logger.Warn("Request timed out",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Request timed out, please retry"})
	default:
		impl.logger.Error("Unexpected error",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

// uuidParam 解析路徑參數，格式錯誤時直接回應 400
func uuidParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+label+" id")
		return uuid.Nil, false
	}
	return id, true
}
