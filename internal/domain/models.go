// Package domain defines the persistence models for users, tracked coins and
// the subscriptions that link them. These types are mapped with GORM and form
// the core data layer of the price-alert bot.
package domain

import (
	"time"
)

// User represents a Telegram chat participant. A user row is created on the
// first interaction with the bot and is never mutated afterwards.
//
// Fields:
//   - ID: internal auto-increment primary key.
//   - TgID: Telegram user id; unique across the store.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	TgID      int64     `json:"tg_id"      gorm:"not null;uniqueIndex:ux_users_tg_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Coin is a tracked (chain, token address) pair together with its last known
// USD price. Coins are created lazily on first subscription and only the
// price refresh mutates them.
//
// Fields:
//   - ID: internal auto-increment primary key.
//   - ChainID: blockchain identifier (e.g. "ton").
//   - TokenAddress: on-chain address; unique across the store.
//   - TokenName: display symbol reported by the quote source.
//   - Price: last observed USD price.
//   - UpdatedAt: time of the last price write.
type Coin struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	ChainID      string    `json:"chain_id"      gorm:"type:varchar(32);not null"`
	TokenAddress string    `json:"token_address" gorm:"type:varchar(128);not null;uniqueIndex:ux_coins_token_address"`
	TokenName    string    `json:"token_name"    gorm:"type:varchar(64);not null"`
	Price        float64   `json:"price"         gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Coin.
func (Coin) TableName() string { return "coins" }

// UserCoin is the many-to-many relation between users and coins. The
// composite primary key guarantees at most one relation per (user, coin).
//
// AlertPrice is nullable at the schema level; the subscribe flow always
// writes it together with the relation.
type UserCoin struct {
	UserID     uint     `gorm:"primaryKey"`
	CoinID     uint     `gorm:"primaryKey;index"`
	AlertPrice *float64 `gorm:"column:alert_price"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Coin Coin `gorm:"foreignKey:CoinID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserCoin.
func (UserCoin) TableName() string { return "user_coins" }

// Subscriber is one user watching a coin, as seen by the refresh cycle.
type Subscriber struct {
	UserID     uint
	TgID       int64
	AlertPrice *float64
}
