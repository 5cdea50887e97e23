// Package services holds the alert bot's business logic: subscription
// lifecycle operations and the refresh-and-notify cycle. This file
// centralizes the service-level error values so callers can match them with
// errors.Is and translate them into bot replies or HTTP statuses.
package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/repo"
)

var (
	// ErrDuplicateUser is returned by CreateUser when the Telegram id is
	// already registered.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrUserNotFound indicates no user is registered for the Telegram id.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenNotFound is returned when a price update targets an address
	// that is not tracked. Inside a refresh cycle this is an invariant
	// violation and aborts the cycle.
	ErrTokenNotFound = errors.New("token not found")

	// ErrNotSubscribed is returned by Unsubscribe when the user has no
	// relation with the token.
	ErrNotSubscribed = errors.New("user is not subscribed to this token")

	// ErrInvalidThreshold rejects alert prices that are not finite and
	// strictly positive.
	ErrInvalidThreshold = domain.ErrInvalidThreshold
)

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"
	// Postgres: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
