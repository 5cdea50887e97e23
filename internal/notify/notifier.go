// Package notify delivers price alerts to Telegram users.
//
// Sends are paced by a token-bucket limiter with burst 1: the first alert goes
// out immediately and every following one waits at least MinInterval after
// the previous send. With the default 50ms that caps steady throughput at 20
// messages per second, below Telegram's 30/s bot limit.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/observability"
)

// Sender is the slice of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier formats and sends alert messages. Safe for concurrent use; the
// limiter serializes pacing across callers.
type Notifier struct {
	sender  Sender
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New returns a Notifier that waits minInterval between consecutive sends.
// A non-positive minInterval disables pacing.
func New(sender Sender, minInterval time.Duration, logger zerolog.Logger) *Notifier {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Notifier{
		sender:  sender,
		limiter: lim,
		log:     logger.With().Str("component", "notify").Logger(),
	}
}

// Notify sends "<tokenName> now lower than <threshold>!" to tgID with link
// previews disabled. It blocks until the pacing interval allows the send or
// ctx ends.
func (n *Notifier) Notify(ctx context.Context, tgID int64, tokenName string, threshold float64) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(tgID, domain.AlertText(tokenName, threshold))
	msg.DisableWebPagePreview = true

	if _, err := n.sender.Send(msg); err != nil {
		observability.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("send alert to %d: %w", tgID, err)
	}
	observability.Notifications.WithLabelValues("sent").Inc()
	n.log.Debug().Int64("tg_id", tgID).Str("token", tokenName).Float64("threshold", threshold).Msg("alert sent")
	return nil
}
