package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"bidhall/models"
)

// Migrate 以 gorm AutoMigrate 建立或更新資料表
// 正式環境建議用 tools/atlas-loader 產生版本化的遷移檔
func Migrate(ctx context.Context, db *gorm.DB) error {
	const op = "Migrate"
	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}
	return nil
}
