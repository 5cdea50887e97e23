// Package services – RefreshService
//
// This file implements the refresh-and-notify cycle. One Run lists every
// tracked coin and, strictly in listing order, fetches a fresh quote, stores
// the new price and alerts each subscriber whose alert price is above it.
// Coins and subscribers are processed one at a time; alert pacing lives in
// the notifier.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/observability"
)

// Alerter delivers one price alert. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, tgID int64, tokenName string, threshold float64) error
}

// CoinStore is the persistence surface the cycle needs.
// *SubscriptionService satisfies it.
type CoinStore interface {
	ListCoins(ctx context.Context) ([]domain.Coin, error)
	UpdateCoinPrice(ctx context.Context, address string, price float64) error
	Subscribers(ctx context.Context, coinID uint) ([]domain.Subscriber, error)
}

// CycleReport summarizes one Run.
type CycleReport struct {
	Tokens       int           `json:"tokens"`
	Refreshed    int           `json:"refreshed"`
	Failed       int           `json:"failed"`
	Notified     int           `json:"notified"`
	NotifyFailed int           `json:"notify_failed"`
	Duration     time.Duration `json:"duration"`
}

// RefreshService runs refresh-and-notify cycles.
type RefreshService struct {
	Store    CoinStore
	Quotes   QuoteFetcher
	Notifier Alerter

	// FailFast aborts the cycle at the first coin whose quote cannot be
	// fetched. When false the cycle continues and Run returns every
	// per-coin failure joined.
	FailFast bool

	Log zerolog.Logger
}

// Run executes one cycle. A missing coin on price update (ErrTokenNotFound)
// and context cancellation always abort. Alert send failures are logged and
// counted but never abort.
func (s *RefreshService) Run(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "refresh.cycle")
	defer span.End()

	rep, err := s.run(ctx)
	rep.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("alertbot.tokens", rep.Tokens),
		attribute.Int("alertbot.notified", rep.Notified),
		attribute.Int("alertbot.failed", rep.Failed),
	)
	observability.RefreshCycleDuration.Observe(rep.Duration.Seconds())

	ev := s.Log.Info()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RefreshCycles.WithLabelValues("failed").Inc()
		ev = s.Log.Error().Err(err)
	} else {
		observability.RefreshCycles.WithLabelValues("ok").Inc()
	}
	ev.Int("tokens", rep.Tokens).
		Int("refreshed", rep.Refreshed).
		Int("notified", rep.Notified).
		Int("notify_failed", rep.NotifyFailed).
		Int("failed", rep.Failed).
		Dur("duration", rep.Duration).
		Msg("refresh cycle finished")
	return rep, err
}

func (s *RefreshService) run(ctx context.Context) (CycleReport, error) {
	var rep CycleReport

	coins, err := s.Store.ListCoins(ctx)
	if err != nil {
		return rep, fmt.Errorf("list coins: %w", err)
	}
	rep.Tokens = len(coins)
	observability.TrackedTokens.Set(float64(len(coins)))

	var errs []error
	for _, c := range coins {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		err := s.refreshCoin(ctx, c, &rep)
		if err == nil {
			rep.Refreshed++
			continue
		}
		rep.Failed++
		if s.FailFast || errors.Is(err, ErrTokenNotFound) || ctx.Err() != nil {
			return rep, err
		}
		s.Log.Warn().Err(err).Str("token", c.TokenName).Str("address", c.TokenAddress).Msg("coin refresh failed, continuing")
		errs = append(errs, err)
	}
	return rep, errors.Join(errs...)
}

func (s *RefreshService) refreshCoin(ctx context.Context, c domain.Coin, rep *CycleReport) error {
	ctx, span := observability.Tracer().Start(ctx, "refresh.coin", trace.WithAttributes(
		attribute.String("alertbot.chain", c.ChainID),
		attribute.String("alertbot.address", c.TokenAddress),
	))
	defer span.End()

	q, err := s.Quotes.FetchQuote(ctx, c.ChainID, c.TokenAddress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote")
		return fmt.Errorf("refresh %s (%s): %w", c.TokenName, c.TokenAddress, err)
	}
	price := q.Price()

	if err := s.Store.UpdateCoinPrice(ctx, c.TokenAddress, price); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update price")
		return fmt.Errorf("store price for %s: %w", c.TokenAddress, err)
	}

	subs, err := s.Store.Subscribers(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list subscribers of %s: %w", c.TokenAddress, err)
	}
	for _, sub := range subs {
		if sub.AlertPrice == nil || !(price < *sub.AlertPrice) {
			continue
		}
		if err := s.Notifier.Notify(ctx, sub.TgID, c.TokenName, *sub.AlertPrice); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rep.NotifyFailed++
			s.Log.Warn().Err(err).Int64("tg_id", sub.TgID).Str("token", c.TokenName).Msg("alert not delivered")
			continue
		}
		rep.Notified++
	}
	span.SetAttributes(attribute.Float64("alertbot.price", price), attribute.Int("alertbot.subscribers", len(subs)))
	return nil
}
