package quote

import "errors"

var (
	// ErrQuoteUnavailable is returned when the quote API keeps failing
	// (transport error or non-200 status) after every attempt is used.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrQuoteParse is returned when a 200 response does not carry at least
	// one pair with a USD price and a base token symbol.
	ErrQuoteParse = errors.New("quote response malformed")
)
