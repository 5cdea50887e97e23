package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidThreshold is returned for alert prices that are not a positive,
// dot-separated decimal number.
var ErrInvalidThreshold = errors.New("alert price must be dot separated number greater than 0")

// thresholdRE accepts plain decimals such as "10", "0.5", ".25", "3.".
var thresholdRE = regexp.MustCompile(`^[+]?(\d+\.?\d*|\.\d+)$`)

// ParseThreshold validates user input for an alert price and returns it as a
// float64. Commas, exponents and non-positive values are rejected.
func ParseThreshold(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if !thresholdRE.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, text)
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, text)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, text)
	}
	f, _ := d.Float64()
	return f, nil
}
