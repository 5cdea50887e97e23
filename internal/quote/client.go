// Package quote fetches token prices from the DexScreener pairs API.
//
// Each FetchQuote call issues up to Attempts GET requests against
// {base}/latest/dex/pairs/{chain}/{address}. Transport errors and any
// non-200 status count as failed attempts and are retried with exponential
// backoff (jittered, between RetryWait and RetryMaxWait). Every attempt is
// logged with the same request id so multi-attempt traces can be correlated.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-token-alert-bot/internal/config"
	"github.com/tbourn/go-token-alert-bot/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// Client is a retrying quote API client. It is safe for concurrent use.
type Client struct {
	rc      *resty.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient builds a Client from cfg. Attempts below 1 are treated as 1.
func NewClient(cfg config.QuoteConfig, logger zerolog.Logger) *Client {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger = logger.With().Str("component", "quote").Logger()

	c := &Client{
		baseURL: cfg.BaseURL,
		log:     logger,
	}

	rc := resty.New().
		SetLogger(restyLogger{l: logger}).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(shouldRetry).
		AddRetryHook(c.onRetry).
		OnBeforeRequest(c.beforeRequest).
		OnAfterResponse(c.afterResponse)

	c.rc = rc
	return c
}

// FetchQuote returns the current price and symbol for (chain, address).
//
// Errors:
//   - ErrQuoteUnavailable when every attempt failed. If ctx ended, the
//     returned error also matches ctx.Err().
//   - ErrQuoteParse when a 200 body lacks a usable pair. Parse failures are
//     not retried.
func (c *Client) FetchQuote(ctx context.Context, chain, address string) (Quote, error) {
	target := c.pairURL(chain, address)
	reqID := uuid.NewString()
	start := time.Now()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, reqID).
		Get(target)

	l := c.log.With().Str("request_id", reqID).Str("url", target).Logger()

	if err != nil {
		l.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("quote request failed")
		return Quote{}, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		l.Error().
			Int("status", resp.StatusCode()).
			Int("attempts", resp.Request.Attempt).
			Dur("elapsed", time.Since(start)).
			Msg("quote request exhausted retries")
		return Quote{}, fmt.Errorf("%w: status %d after %d attempts", ErrQuoteUnavailable, resp.StatusCode(), resp.Request.Attempt)
	}

	q, err := parseQuote(resp.Body())
	if err != nil {
		l.Error().Err(err).Msg("quote response rejected")
		return Quote{}, err
	}
	return q, nil
}

func (c *Client) pairURL(chain, address string) string {
	return c.baseURL + "/latest/dex/pairs/" + url.PathEscape(chain) + "/" + url.PathEscape(address)
}

// shouldRetry retries transport errors and non-200 responses, but never a
// request whose context has ended.
func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp == nil || resp.StatusCode() != http.StatusOK
}

func (c *Client) beforeRequest(_ *resty.Client, r *resty.Request) error {
	c.log.Info().
		Str("request_id", r.Header.Get(requestIDHeader)).
		Int("attempt", r.Attempt).
		Str("method", r.Method).
		Str("url", r.URL).
		Msg("quote request")
	return nil
}

func (c *Client) afterResponse(_ *resty.Client, resp *resty.Response) error {
	observability.QuoteRequests.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()
	c.log.Info().
		Str("request_id", resp.Request.Header.Get(requestIDHeader)).
		Int("attempt", resp.Request.Attempt).
		Int("status", resp.StatusCode()).
		Dur("latency", resp.Time()).
		Msg("quote response")
	return nil
}

func (c *Client) onRetry(resp *resty.Response, err error) {
	ev := c.log.Warn()
	if resp != nil && resp.Request != nil {
		ev = ev.Str("request_id", resp.Request.Header.Get(requestIDHeader)).
			Int("attempt", resp.Request.Attempt)
	}
	if err != nil {
		observability.QuoteRequests.WithLabelValues("error").Inc()
		ev = ev.Err(err)
	} else if resp != nil {
		ev = ev.Int("status", resp.StatusCode())
	}
	ev.Msg("quote attempt failed")
}
