// Package bot is the Telegram presentation layer: a small inline-keyboard
// menu that lets users list, inspect, create and remove price alerts.
//
// Each user walks a fixed set of screens (see Step). Button presses arrive as
// callback queries whose payload decodes to a typed action; the action is
// accepted only on the step that renders it, so presses on stale keyboards
// are ignored. The alert price is the only free-text input.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/quote"
	"github.com/tbourn/go-token-alert-bot/internal/services"
	"github.com/tbourn/go-token-alert-bot/internal/sysutil"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the subscription surface the menus drive.
// *services.SubscriptionService satisfies it.
type Service interface {
	EnsureUser(ctx context.Context, tgID int64) (*domain.User, bool, error)
	ListSubscriptions(ctx context.Context, tgID int64) ([]domain.Subscription, error)
	Subscribe(ctx context.Context, tgID int64, chain, address string, threshold float64) (domain.Subscription, error)
	Unsubscribe(ctx context.Context, tgID int64, chain, address string) error
}

// Bot routes Telegram updates to menu handlers.
type Bot struct {
	api      API
	svc      Service
	catalog  domain.Catalog
	sessions *Sessions
	log      zerolog.Logger

	wg sync.WaitGroup
}

// New builds a Bot offering the chains and tokens in catalog.
func New(api API, svc Service, catalog domain.Catalog, logger zerolog.Logger) *Bot {
	return &Bot{
		api:      api,
		svc:      svc,
		catalog:  catalog,
		sessions: NewSessions(),
		log:      logger.With().Str("component", "bot").Logger(),
	}
}

// Run drops updates queued while the bot was offline, then long-polls until
// ctx ends. Updates are handled concurrently; one user's updates are
// serialized by their session.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Msg("polling for updates")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, upd)
			}()
		}
	}
}

// HandleUpdate processes a single update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		if u.Message.IsCommand() {
			b.handleCommand(ctx, u.Message)
			return
		}
		b.handleText(ctx, u.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	if m.Command() != "start" {
		b.sendText(m.Chat.ID, textUseStart)
		return
	}
	tgID := m.From.ID
	if _, created, err := b.svc.EnsureUser(ctx, tgID); err != nil {
		b.log.Error().Err(err).Int64("tg_id", tgID).Msg("ensure user")
		b.sendText(m.Chat.ID, userMessage(err))
		return
	} else if created {
		b.log.Info().Int64("tg_id", tgID).Msg("user registered")
	}

	b.sessions.With(tgID, func(f *Flow) {
		*f = Flow{Step: StepHome, Name: fullName(m.From)}
		b.sendScreen(m.Chat.ID, f)
	})
}

func (b *Bot) handleText(ctx context.Context, m *tgbotapi.Message) {
	tgID := m.From.ID
	b.sessions.With(tgID, func(f *Flow) {
		if f.Step != StepSetAlertPrice || f.Token == nil {
			b.sendText(m.Chat.ID, textUseStart)
			return
		}
		threshold, err := domain.ParseThreshold(m.Text)
		if err != nil {
			b.sendText(m.Chat.ID, textInvalidPrice)
			return
		}
		if _, err := b.svc.Subscribe(ctx, tgID, f.Chain, f.Token.Address, threshold); err != nil {
			b.log.Error().Err(err).Int64("tg_id", tgID).Str("token", f.Token.Address).Msg("subscribe")
			b.sendText(m.Chat.ID, userMessage(err))
			return
		}
		b.log.Info().Int64("tg_id", tgID).Str("token", f.Token.Name).Float64("alert_price", threshold).Msg("subscribed")
		f.Step = StepAlertPriceSet
		b.sendScreen(m.Chat.ID, f)
	})
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		b.answer(q.ID, "")
		return
	}
	tgID := q.From.ID
	chatID, msgID := q.Message.Chat.ID, q.Message.MessageID

	a, ok := parseAction(q.Data)
	if !ok {
		b.answer(q.ID, textMenuExpired)
		return
	}

	b.sessions.With(tgID, func(f *Flow) {
		if !a.validIn(f.Step) {
			b.answer(q.ID, textMenuExpired)
			return
		}
		if err := b.apply(ctx, tgID, f, a); err != nil {
			if errors.Is(err, errStale) {
				b.answer(q.ID, textMenuExpired)
				return
			}
			b.log.Error().Err(err).Int64("tg_id", tgID).Str("step", f.Step.String()).Str("action", a.data()).Msg("menu action")
			b.answer(q.ID, "")
			b.sendText(chatID, userMessage(err))
			return
		}
		b.answer(q.ID, "")
		b.editScreen(chatID, msgID, f)
	})
}

var errStale = errors.New("stale menu")

// apply performs a's transition on f. f is left unchanged on error.
func (b *Bot) apply(ctx context.Context, tgID int64, f *Flow, a action) error {
	switch a.kind {
	case actOpenSubscriptions, actBackToSubscriptions:
		return b.enterSubscriptions(ctx, tgID, f)

	case actOpenSubscription:
		i, ok := a.index()
		if !ok || i >= len(f.Subscriptions) {
			return errStale
		}
		sel := f.Subscriptions[i]
		f.Selected = &sel
		f.Step = StepSubscription

	case actStartSubscribe:
		f.Chain, f.Token = "", nil
		f.Step = StepBlockchains

	case actPickChain:
		if _, ok := b.catalog.Chain(a.arg); !ok {
			return errStale
		}
		f.Chain = a.arg
		f.Step = StepTokens

	case actPickToken:
		ch, _ := b.catalog.Chain(f.Chain)
		i, ok := a.index()
		if !ok || i >= len(ch.Tokens) {
			return errStale
		}
		tok := ch.Tokens[i]
		f.Token = &tok
		f.Step = StepSetAlertPrice

	case actUnsubscribe:
		if f.Selected == nil {
			return errStale
		}
		if err := b.svc.Unsubscribe(ctx, tgID, f.Selected.ChainID, f.Selected.TokenAddress); err != nil {
			return err
		}
		b.log.Info().Int64("tg_id", tgID).Str("token", f.Selected.TokenName).Msg("unsubscribed")
		f.Step = StepUnsubscribed

	case actBack:
		prev := backOf[f.Step]
		if prev == StepSubscriptions {
			return b.enterSubscriptions(ctx, tgID, f)
		}
		f.Step = prev
	}
	return nil
}

// enterSubscriptions reloads the user's list and moves to its screen.
func (b *Bot) enterSubscriptions(ctx context.Context, tgID int64, f *Flow) error {
	subs, err := b.svc.ListSubscriptions(ctx, tgID)
	if err != nil {
		return err
	}
	f.Subscriptions = subs
	f.Selected = nil
	f.Step = StepSubscriptions
	return nil
}

func (b *Bot) sendScreen(chatID int64, f *Flow) {
	text, kb := render(f, b.catalog)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send screen")
	}
}

func (b *Bot) editScreen(chatID int64, msgID int, f *Flow) {
	text, kb := render(f, b.catalog)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, kb)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("edit screen")
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send text")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug().Err(err).Msg("answer callback")
	}
}

func fullName(u *tgbotapi.User) string {
	return sysutil.FirstNonEmpty(strings.TrimSpace(u.FirstName+" "+u.LastName), u.UserName)
}

// userMessage turns a service error into a reply.
func userMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return "Please send /start first."
	case errors.Is(err, services.ErrNotSubscribed):
		return "You are not subscribed to this token."
	case errors.Is(err, services.ErrInvalidThreshold):
		return textInvalidPrice
	case errors.Is(err, quote.ErrQuoteUnavailable):
		return "The price source is unavailable right now, please try again later."
	case errors.Is(err, quote.ErrQuoteParse):
		return "The price source returned no price for this token."
	default:
		return "Something went wrong, please try again later."
	}
}
