// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - A duplicate tg_id surfaces as the raw unique-constraint error; the
//     service layer translates it.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new User for the given Telegram id.
func CreateUser(ctx context.Context, db *gorm.DB, tgID int64) (*domain.User, error) {
	u := &domain.User{TgID: tgID, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByTgID fetches a user by Telegram id, or ErrNotFound.
func GetUserByTgID(ctx context.Context, db *gorm.DB, tgID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("tg_id = ?", tgID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
