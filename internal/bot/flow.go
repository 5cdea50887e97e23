package bot

import (
	"sync"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// Step is the screen a user is currently looking at.
type Step int

const (
	StepHome Step = iota
	StepSubscriptions
	StepSubscription
	StepUnsubscribed
	StepBlockchains
	StepTokens
	StepSetAlertPrice
	StepAlertPriceSet
)

var stepNames = [...]string{
	StepHome:          "home",
	StepSubscriptions: "subscriptions",
	StepSubscription:  "subscription",
	StepUnsubscribed:  "unsubscribed",
	StepBlockchains:   "blockchains",
	StepTokens:        "tokens",
	StepSetAlertPrice: "set_alert_price",
	StepAlertPriceSet: "alert_price_set",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// backOf is where the Back button leads from each step.
var backOf = map[Step]Step{
	StepSubscriptions: StepHome,
	StepSubscription:  StepSubscriptions,
	StepUnsubscribed:  StepSubscriptions,
	StepBlockchains:   StepSubscriptions,
	StepTokens:        StepBlockchains,
	StepSetAlertPrice: StepTokens,
	StepAlertPriceSet: StepSubscriptions,
}

// Flow is the per-user state of one menu session. Fields are filled as the
// user walks the screens and read by later steps.
type Flow struct {
	Step Step
	// Name greets the user on the home screen.
	Name string

	// Subscriptions is the list shown on the subscriptions screen; callback
	// indices refer into it.
	Subscriptions []domain.Subscription
	// Selected is the subscription opened from the list.
	Selected *domain.Subscription

	// Chain and Token are picked on the subscribe path.
	Chain string
	Token *domain.CatalogToken
}

type session struct {
	mu   sync.Mutex
	flow Flow
}

// Sessions holds one Flow per Telegram user. Access to a single user's flow
// is serialized; different users proceed independently.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

// NewSessions returns an empty store.
func NewSessions() *Sessions {
	return &Sessions{m: map[int64]*session{}}
}

// With runs fn with exclusive access to tgID's flow, creating it at
// StepHome on first use.
func (s *Sessions) With(tgID int64, fn func(f *Flow)) {
	s.mu.Lock()
	sess, ok := s.m[tgID]
	if !ok {
		sess = &session{}
		s.m[tgID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	fn(&sess.flow)
}

// Len returns how many users have a session.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
