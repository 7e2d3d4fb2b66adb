//go:generate mockgen -package=payment -destination=mock.go -source=interfaces.go

package payment

import (
	"context"

	"bidhall/models"
)

// Notifier 交易提交後寄送通知
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}
