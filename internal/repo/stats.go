package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// CoinsStats returns the number of tracked coins and the latest price write
// among them, for conditional responses. maxUpdatedAt is nil when there are
// no coins.
func CoinsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Coin{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY + LIMIT instead of MAX(): SQLite returns MAX() of a datetime as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Coin{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
