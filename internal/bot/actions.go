package bot

import (
	"strconv"
	"strings"
)

// actionKind enumerates every button the menus can produce.
type actionKind int

const (
	actOpenSubscriptions actionKind = iota + 1
	actOpenSubscription
	actStartSubscribe
	actPickChain
	actPickToken
	actUnsubscribe
	actBack
	actBackToSubscriptions
)

var actionPrefixes = map[actionKind]string{
	actOpenSubscriptions:   "subs",
	actOpenSubscription:    "sub",
	actStartSubscribe:      "new",
	actPickChain:           "chain",
	actPickToken:           "tok",
	actUnsubscribe:         "unsub",
	actBack:                "back",
	actBackToSubscriptions: "tosubs",
}

var prefixKinds = func() map[string]actionKind {
	m := make(map[string]actionKind, len(actionPrefixes))
	for k, p := range actionPrefixes {
		m[p] = k
	}
	return m
}()

// allowedIn lists the steps on which each action's button is rendered.
// Callbacks from stale keyboards fail this check.
var allowedIn = map[actionKind][]Step{
	actOpenSubscriptions:   {StepHome},
	actOpenSubscription:    {StepSubscriptions},
	actStartSubscribe:      {StepSubscriptions},
	actPickChain:           {StepBlockchains},
	actPickToken:           {StepTokens},
	actUnsubscribe:         {StepSubscription},
	actBack:                {StepSubscriptions, StepSubscription, StepBlockchains, StepTokens, StepSetAlertPrice},
	actBackToSubscriptions: {StepUnsubscribed, StepAlertPriceSet},
}

// action is a decoded callback payload: "kind" or "kind:arg".
type action struct {
	kind actionKind
	arg  string
}

func (a action) data() string {
	p := actionPrefixes[a.kind]
	if a.arg == "" {
		return p
	}
	return p + ":" + a.arg
}

func (a action) index() (int, bool) {
	i, err := strconv.Atoi(a.arg)
	return i, err == nil && i >= 0
}

func (a action) validIn(s Step) bool {
	for _, st := range allowedIn[a.kind] {
		if st == s {
			return true
		}
	}
	return false
}

func parseAction(data string) (action, bool) {
	prefix, arg, _ := strings.Cut(data, ":")
	k, ok := prefixKinds[prefix]
	if !ok {
		return action{}, false
	}
	return action{kind: k, arg: arg}, true
}
