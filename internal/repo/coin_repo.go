// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Coin model.
//
// Functions:
//
//   - CreateCoin(ctx, db, chainID, address, name, price) -> *domain.Coin, error
//   - GetCoinByAddress(ctx, db, address) -> *domain.Coin, error (ErrNotFound)
//   - ListCoins(ctx, db) -> []domain.Coin, error
//   - ListCoinsPage(ctx, db, offset, limit) -> []domain.Coin, error
//   - CountCoins(ctx, db) -> int64, error
//   - UpdateCoinPrice(ctx, db, address, price, at) -> error (ErrNotFound)
//   - ListCoinSubscribers(ctx, db, coinID) -> []domain.Subscriber, error
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// CreateCoin inserts a newly tracked coin. The token address must be unique;
// a duplicate surfaces as the raw unique-constraint error.
func CreateCoin(ctx context.Context, db *gorm.DB, chainID, address, name string, price float64) (*domain.Coin, error) {
	now := time.Now().UTC()
	c := &domain.Coin{
		ChainID:      chainID,
		TokenAddress: address,
		TokenName:    name,
		Price:        price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCoinByAddress fetches a coin by token address, or ErrNotFound.
func GetCoinByAddress(ctx context.Context, db *gorm.DB, address string) (*domain.Coin, error) {
	var c domain.Coin
	if err := db.WithContext(ctx).Where("token_address = ?", address).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCoins returns every tracked coin ordered by id (insertion order).
func ListCoins(ctx context.Context, db *gorm.DB) ([]domain.Coin, error) {
	var out []domain.Coin
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

// ListCoinsPage returns one page of coins in ListCoins order.
func ListCoinsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Coin, error) {
	var out []domain.Coin
	err := db.WithContext(ctx).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountCoins returns the number of tracked coins.
func CountCoins(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Coin{}).Count(&n).Error
	return n, err
}

// UpdateCoinPrice sets price and updated_at for the coin with the given
// address. It returns ErrNotFound when no row matches.
func UpdateCoinPrice(ctx context.Context, db *gorm.DB, address string, price float64, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Coin{}).
		Where("token_address = ?", address).
		Updates(map[string]any{"price": price, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListCoinSubscribers returns the users subscribed to coinID together with
// their alert price, ordered by user id so repeated cycles see a stable order.
func ListCoinSubscribers(ctx context.Context, db *gorm.DB, coinID uint) ([]domain.Subscriber, error) {
	var rows []domain.UserCoin
	err := db.WithContext(ctx).
		Preload("User").
		Where("coin_id = ?", coinID).
		Order("user_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Subscriber, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Subscriber{UserID: r.UserID, TgID: r.User.TgID, AlertPrice: r.AlertPrice})
	}
	return out, nil
}
