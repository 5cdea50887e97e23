// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UserCoin
// relation (a user's subscription to a coin).
//
// The (user_id, coin_id) primary key guarantees at most one relation per
// pair; UpsertUserCoin relies on it to overwrite the alert price in place.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// UpsertUserCoin creates the (user, coin) relation or, when it already
// exists, overwrites its alert price.
func UpsertUserCoin(ctx context.Context, db *gorm.DB, userID, coinID uint, alertPrice float64) error {
	uc := &domain.UserCoin{UserID: userID, CoinID: coinID, AlertPrice: &alertPrice}
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "coin_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"alert_price"}),
		}).
		Create(uc).Error
}

// GetUserCoin fetches a single relation, or ErrNotFound.
func GetUserCoin(ctx context.Context, db *gorm.DB, userID, coinID uint) (*domain.UserCoin, error) {
	var uc domain.UserCoin
	err := db.WithContext(ctx).
		Where("user_id = ? AND coin_id = ?", userID, coinID).
		First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// DeleteUserCoin removes the (user, coin) relation. It returns ErrNotFound
// when the relation does not exist.
func DeleteUserCoin(ctx context.Context, db *gorm.DB, userID, coinID uint) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND coin_id = ?", userID, coinID).
		Delete(&domain.UserCoin{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUserCoins returns how many relations exist for (userID, coinID).
// Used to assert the single-relation invariant.
func CountUserCoins(ctx context.Context, db *gorm.DB, userID, coinID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UserCoin{}).
		Where("user_id = ? AND coin_id = ?", userID, coinID).
		Count(&n).Error
	return n, err
}

// ListUserCoins returns a user's relations with their coin preloaded,
// ordered by coin id.
func ListUserCoins(ctx context.Context, db *gorm.DB, userID uint) ([]domain.UserCoin, error) {
	var out []domain.UserCoin
	err := db.WithContext(ctx).
		Preload("Coin").
		Where("user_id = ?", userID).
		Order("coin_id asc").
		Find(&out).Error
	return out, err
}
