package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrThresholdUnset is returned when a subscription is rendered before its
// alert price has been written.
var ErrThresholdUnset = errors.New("alert price is not set")

// Subscription is a read model combining a coin's current state with the
// alert price a user attached to it. It is derived on demand and never
// persisted.
type Subscription struct {
	ChainID      string    `json:"chain_id"`
	TokenName    string    `json:"token_name"`
	TokenAddress string    `json:"token_address"`
	Price        float64   `json:"price"`
	AlertPrice   *float64  `json:"alert_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSubscription projects a relation row with its preloaded coin.
func NewSubscription(uc UserCoin) Subscription {
	return Subscription{
		ChainID:      uc.Coin.ChainID,
		TokenName:    uc.Coin.TokenName,
		TokenAddress: uc.Coin.TokenAddress,
		Price:        uc.Coin.Price,
		AlertPrice:   uc.AlertPrice,
		UpdatedAt:    uc.Coin.UpdatedAt,
	}
}

// Describe renders the multi-line details card shown to the user.
func (s Subscription) Describe() (string, error) {
	if s.AlertPrice == nil {
		return "", ErrThresholdUnset
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s):\n", s.TokenName, strings.ToUpper(s.ChainID))
	fmt.Fprintf(&b, "Address: %s\n", s.TokenAddress)
	fmt.Fprintf(&b, "Price: %s USD\n", FormatPrice(s.Price))
	fmt.Fprintf(&b, "Alert Price: %s USD\n", FormatPrice(*s.AlertPrice))
	fmt.Fprintf(&b, "Last Updated: %s UTC", s.UpdatedAt.UTC().Format("02-01-2006 15:04:05"))
	return b.String(), nil
}

// FormatPrice prints a float the way a float literal reads: shortest exact
// representation, always with a fractional part ("100.0", "9.99", "1e-07").
func FormatPrice(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// AlertText is the fixed notification template sent when a coin's price
// drops below a subscriber's threshold.
func AlertText(tokenName string, threshold float64) string {
	return fmt.Sprintf("%s now lower than %s!", tokenName, FormatPrice(threshold))
}
