package quote

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote is the current USD price and symbol of one token.
type Quote struct {
	PriceUSD decimal.Decimal
	Symbol   string
}

// Price returns the quote as float64 for storage and comparisons.
func (q Quote) Price() float64 {
	return q.PriceUSD.InexactFloat64()
}

type statusResponse struct {
	Pairs []pairResponse `json:"pairs"`
}

type pairResponse struct {
	// priceUsd arrives as a JSON string; decimal accepts strings and numbers.
	PriceUSD  *decimal.Decimal   `json:"priceUsd"`
	BaseToken *baseTokenResponse `json:"baseToken"`
}

type baseTokenResponse struct {
	Symbol string `json:"symbol"`
}

// parseQuote decodes a pairs payload and returns the first pair's quote.
func parseQuote(body []byte) (Quote, error) {
	var r statusResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteParse, err)
	}
	if len(r.Pairs) == 0 {
		return Quote{}, fmt.Errorf("%w: no pairs", ErrQuoteParse)
	}
	p := r.Pairs[0]
	if p.PriceUSD == nil {
		return Quote{}, fmt.Errorf("%w: missing priceUsd", ErrQuoteParse)
	}
	if p.BaseToken == nil || p.BaseToken.Symbol == "" {
		return Quote{}, fmt.Errorf("%w: missing baseToken.symbol", ErrQuoteParse)
	}
	return Quote{PriceUSD: *p.PriceUSD, Symbol: p.BaseToken.Symbol}, nil
}
