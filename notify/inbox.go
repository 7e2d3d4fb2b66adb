package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bidhall/apperr"
	"bidhall/models"
)

// Inbox 使用者的通知列表操作
type Inbox struct {
	db *gorm.DB
}

func NewInbox(db *gorm.DB) *Inbox {
	return &Inbox{db: db}
}

// List 依時間由新到舊列出通知
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, limit int, unreadOnly bool) ([]models.Notification, error) {
	const op = "Inbox.List"
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := i.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list notifications, err=%w", op, err)
	}
	return notifications, nil
}

func (i *Inbox) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "Inbox.UnreadCount"
	var count int64
	err := i.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to count notifications, err=%w", op, err)
	}
	return count, nil
}

// MarkRead 只能標記自己的通知
func (i *Inbox) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	const op = "Inbox.MarkRead"
	var n models.Notification
	if err := i.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Notification not found")
		}
		return fmt.Errorf("[%s] Fail to find notification, err=%w", op, err)
	}
	if err := i.db.WithContext(ctx).Model(&n).Update("is_read", true).Error; err != nil {
		return fmt.Errorf("[%s] Fail to mark notification read, err=%w", op, err)
	}
	return nil
}

func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "Inbox.MarkAllRead"
	result := i.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to mark notifications read, err=%w", op, result.Error)
	}
	return result.RowsAffected, nil
}
