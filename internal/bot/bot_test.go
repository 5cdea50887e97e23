package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/quote"
	"github.com/tbourn/go-token-alert-bot/internal/services"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI { return &fakeAPI{updates: make(chan tgbotapi.Update, 8)} }

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// last returns the text and keyboard of the most recent send or edit.
func (f *fakeAPI) last(t *testing.T) (string, *tgbotapi.InlineKeyboardMarkup) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	switch m := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		kb, _ := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		return m.Text, &kb
	case tgbotapi.EditMessageTextConfig:
		return m.Text, m.ReplyMarkup
	default:
		t.Fatalf("unexpected chattable %T", m)
		return "", nil
	}
}

// fakeService keeps subscriptions in memory.
type fakeService struct {
	mu      sync.Mutex
	users   map[int64]bool
	subs    map[int64][]domain.Subscription
	subErr  error
	unsubs  int
	lastSub struct {
		chain, address string
		threshold      float64
	}
}

func newFakeService() *fakeService {
	return &fakeService{users: map[int64]bool{}, subs: map[int64][]domain.Subscription{}}
}

func (s *fakeService) EnsureUser(_ context.Context, tgID int64) (*domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := !s.users[tgID]
	s.users[tgID] = true
	return &domain.User{TgID: tgID}, created, nil
}

func (s *fakeService) ListSubscriptions(_ context.Context, tgID int64) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.users[tgID] {
		return nil, services.ErrUserNotFound
	}
	return append([]domain.Subscription(nil), s.subs[tgID]...), nil
}

func (s *fakeService) Subscribe(_ context.Context, tgID int64, chain, address string, threshold float64) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return domain.Subscription{}, s.subErr
	}
	s.lastSub.chain, s.lastSub.address, s.lastSub.threshold = chain, address, threshold
	th := threshold
	sub := domain.Subscription{ChainID: chain, TokenName: "FPIBANK", TokenAddress: address, Price: 1, AlertPrice: &th, UpdatedAt: time.Now()}
	s.subs[tgID] = append(s.subs[tgID], sub)
	return sub, nil
}

func (s *fakeService) Unsubscribe(_ context.Context, tgID int64, _ string, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[tgID]
	for i, sub := range list {
		if sub.TokenAddress == address {
			s.subs[tgID] = append(list[:i], list[i+1:]...)
			s.unsubs++
			return nil
		}
	}
	return services.ErrNotSubscribed
}

const uid = int64(777)

func startUpdate() tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		Chat:     &tgbotapi.Chat{ID: uid},
		From:     &tgbotapi.User{ID: uid, FirstName: "Ada", LastName: "Lovelace"},
	}}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: uid},
		From: &tgbotapi.User{ID: uid},
	}}
}

func press(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: uid},
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: uid}},
		Data:    data,
	}}
}

func labels(kb *tgbotapi.InlineKeyboardMarkup) []string {
	var out []string
	for _, r := range kb.InlineKeyboard {
		for _, b := range r {
			out = append(out, b.Text)
		}
	}
	return out
}

func newTestBot() (*Bot, *fakeAPI, *fakeService) {
	api := newFakeAPI()
	svc := newFakeService()
	return New(api, svc, domain.DefaultCatalog(), zerolog.Nop()), api, svc
}

func TestStart_RegistersAndShowsHome(t *testing.T) {
	b, api, svc := newTestBot()
	b.HandleUpdate(context.Background(), startUpdate())

	if !svc.users[uid] {
		t.Fatalf("user not registered")
	}
	text, kb := api.last(t)
	if text != "Hello, Ada Lovelace" {
		t.Fatalf("greeting = %q", text)
	}
	if got := strings.Join(labels(kb), ","); got != "My Subscriptions" {
		t.Fatalf("home buttons = %s", got)
	}
}

func TestSubscribeFlow(t *testing.T) {
	b, api, svc := newTestBot()
	ctx := context.Background()

	b.HandleUpdate(ctx, startUpdate())
	b.HandleUpdate(ctx, press("subs"))
	text, kb := api.last(t)
	if text != "Your Subscriptions:" || strings.Join(labels(kb), ",") != "Subscribe,Back" {
		t.Fatalf("subscriptions screen: %q %v", text, labels(kb))
	}

	b.HandleUpdate(ctx, press("new"))
	text, kb = api.last(t)
	if text != "Available Blockchains:" || strings.Join(labels(kb), ",") != "TON,Back" {
		t.Fatalf("blockchains screen: %q %v", text, labels(kb))
	}

	b.HandleUpdate(ctx, press("chain:ton"))
	text, kb = api.last(t)
	if text != "Available Tokens:" || strings.Join(labels(kb), ",") != "FPIBANK,Back" {
		t.Fatalf("tokens screen: %q %v", text, labels(kb))
	}

	b.HandleUpdate(ctx, press("tok:0"))
	if text, _ = api.last(t); text != "Enter the USD alert price:" {
		t.Fatalf("price prompt = %q", text)
	}

	b.HandleUpdate(ctx, textUpdate("abc"))
	if text, _ = api.last(t); text != "Alert price must be dot separated number greater than 0." {
		t.Fatalf("invalid price reply = %q", text)
	}
	b.HandleUpdate(ctx, textUpdate("0"))
	if text, _ = api.last(t); text != "Alert price must be dot separated number greater than 0." {
		t.Fatalf("zero price reply = %q", text)
	}

	b.HandleUpdate(ctx, textUpdate("0.25"))
	text, kb = api.last(t)
	if text != "You successfully subscribed to FPIBANK." || strings.Join(labels(kb), ",") != "Back to subscriptions" {
		t.Fatalf("subscribed screen: %q %v", text, labels(kb))
	}
	if svc.lastSub.chain != "ton" || svc.lastSub.address != "EQAyrrAjgSuyHrgGO1HimNbGV9tVLndZ3uocLaOyTw_FgegD" || svc.lastSub.threshold != 0.25 {
		t.Fatalf("unexpected subscribe call: %+v", svc.lastSub)
	}

	b.HandleUpdate(ctx, press("tosubs"))
	_, kb = api.last(t)
	if strings.Join(labels(kb), ",") != "FPIBANK,Subscribe,Back" {
		t.Fatalf("subscription list not refreshed: %v", labels(kb))
	}
}

func TestSubscriptionDetailsAndUnsubscribe(t *testing.T) {
	b, api, svc := newTestBot()
	ctx := context.Background()
	b.HandleUpdate(ctx, startUpdate())
	_, _ = svc.Subscribe(ctx, uid, "ton", "addr-x", 100)

	b.HandleUpdate(ctx, press("subs"))
	b.HandleUpdate(ctx, press("sub:0"))
	text, kb := api.last(t)
	if !strings.HasPrefix(text, "FPIBANK (TON):\nAddress: addr-x\nPrice: 1.0 USD\nAlert Price: 100.0 USD\nLast Updated: ") {
		t.Fatalf("details = %q", text)
	}
	if strings.Join(labels(kb), ",") != "Unsubscribe,Back" {
		t.Fatalf("details buttons = %v", labels(kb))
	}

	b.HandleUpdate(ctx, press("unsub"))
	text, _ = api.last(t)
	if text != "You sucessfully unsubscribed from FPIBANK." {
		t.Fatalf("unsubscribed text = %q", text)
	}
	if svc.unsubs != 1 {
		t.Fatalf("unsubscribe not called")
	}
}

func TestBackNavigation(t *testing.T) {
	b, api, _ := newTestBot()
	ctx := context.Background()
	b.HandleUpdate(ctx, startUpdate())
	b.HandleUpdate(ctx, press("subs"))
	b.HandleUpdate(ctx, press("new"))
	b.HandleUpdate(ctx, press("chain:ton"))

	steps := []string{"Available Blockchains:", "Your Subscriptions:", "Hello, Ada Lovelace"}
	for _, want := range steps {
		b.HandleUpdate(ctx, press("back"))
		if got, _ := api.last(t); got != want {
			t.Fatalf("after back: %q, want %q", got, want)
		}
	}
}

func TestStaleCallbacksIgnored(t *testing.T) {
	b, api, _ := newTestBot()
	ctx := context.Background()
	b.HandleUpdate(ctx, startUpdate())
	sentBefore := len(api.sent)

	for _, data := range []string{"unsub", "tok:0", "chain:eth", "bogus", "sub:5"} {
		b.HandleUpdate(ctx, press(data))
	}
	if len(api.sent) != sentBefore {
		t.Fatalf("stale callbacks must not change the screen; sent %d new", len(api.sent)-sentBefore)
	}
	last := api.requests[len(api.requests)-1].(tgbotapi.CallbackConfig)
	if last.Text != "This menu is outdated, send /start." {
		t.Fatalf("stale answer = %q", last.Text)
	}
}

func TestServiceErrorShownAsText(t *testing.T) {
	b, api, svc := newTestBot()
	ctx := context.Background()
	svc.subErr = quote.ErrQuoteUnavailable

	b.HandleUpdate(ctx, startUpdate())
	b.HandleUpdate(ctx, press("subs"))
	b.HandleUpdate(ctx, press("new"))
	b.HandleUpdate(ctx, press("chain:ton"))
	b.HandleUpdate(ctx, press("tok:0"))
	b.HandleUpdate(ctx, textUpdate("5"))

	text, _ := api.last(t)
	if text != "The price source is unavailable right now, please try again later." {
		t.Fatalf("error reply = %q", text)
	}
	// still waiting for a price
	svc.subErr = nil
	b.HandleUpdate(ctx, textUpdate("5"))
	if text, _ = api.last(t); text != "You successfully subscribed to FPIBANK." {
		t.Fatalf("retry after error = %q", text)
	}
}

func TestTextOutsidePricePrompt(t *testing.T) {
	b, api, _ := newTestBot()
	b.HandleUpdate(context.Background(), textUpdate("hello"))
	if text, _ := api.last(t); text != "Send /start to open the menu." {
		t.Fatalf("reply = %q", text)
	}
}

func TestUserMessage(t *testing.T) {
	cases := map[error]string{
		services.ErrUserNotFound:  "Please send /start first.",
		services.ErrNotSubscribed: "You are not subscribed to this token.",
		quote.ErrQuoteParse:       "The price source returned no price for this token.",
		errors.New("disk full"):   "Something went wrong, please try again later.",
	}
	for err, want := range cases {
		if got := userMessage(err); got != want {
			t.Fatalf("userMessage(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestRun_DropsPendingAndStopsOnCancel(t *testing.T) {
	b, api, svc := newTestBot()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()

	api.updates <- startUpdate()
	deadline := time.After(time.Second)
	for {
		svc.mu.Lock()
		ok := svc.users[uid]
		svc.mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("update was not handled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if !api.stopped {
		t.Fatalf("StopReceivingUpdates not called")
	}
	dw, ok := api.requests[0].(tgbotapi.DeleteWebhookConfig)
	if !ok || !dw.DropPendingUpdates {
		t.Fatalf("first request should drop pending updates, got %#v", api.requests[0])
	}
}

func TestFullName_FallsBackToUserName(t *testing.T) {
	if got := fullName(&tgbotapi.User{FirstName: "Ada", LastName: "Lovelace"}); got != "Ada Lovelace" {
		t.Fatalf("fullName = %q", got)
	}
	if got := fullName(&tgbotapi.User{UserName: "ada"}); got != "ada" {
		t.Fatalf("fullName fallback = %q", got)
	}
}
