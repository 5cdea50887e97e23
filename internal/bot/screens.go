package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
)

// Texts shown to users.
const (
	textSubscriptions   = "Your Subscriptions:"
	textBlockchains     = "Available Blockchains:"
	textTokens          = "Available Tokens:"
	textEnterPrice      = "Enter the USD alert price:"
	textInvalidPrice    = "Alert price must be dot separated number greater than 0."
	textUseStart        = "Send /start to open the menu."
	textMenuExpired     = "This menu is outdated, send /start."
	textBtnMySubs       = "My Subscriptions"
	textBtnSubscribe    = "Subscribe"
	textBtnUnsubscribe  = "Unsubscribe"
	textBtnBack         = "Back"
	textBtnBackToSubs   = "Back to subscriptions"
	textGreetingFmt     = "Hello, %s"
	textUnsubscribedFmt = "You sucessfully unsubscribed from %s."
	textSubscribedFmt   = "You successfully subscribed to %s."
)

var upper = cases.Upper(language.Und)

func button(label string, a action) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, a.data())
}

func row(label string, a action) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(button(label, a))
}

var (
	backRow       = row(textBtnBack, action{kind: actBack})
	backToSubsRow = row(textBtnBackToSubs, action{kind: actBackToSubscriptions})
)

// render produces the text and keyboard for f's current step.
func render(f *Flow, catalog domain.Catalog) (string, tgbotapi.InlineKeyboardMarkup) {
	switch f.Step {
	case StepSubscriptions:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(f.Subscriptions)+2)
		for i, s := range f.Subscriptions {
			rows = append(rows, row(s.TokenName, action{kind: actOpenSubscription, arg: strconv.Itoa(i)}))
		}
		rows = append(rows, row(textBtnSubscribe, action{kind: actStartSubscribe}), backRow)
		return textSubscriptions, tgbotapi.NewInlineKeyboardMarkup(rows...)

	case StepSubscription:
		text, err := f.Selected.Describe()
		if err != nil {
			text = f.Selected.TokenName + ": " + err.Error()
		}
		return text, tgbotapi.NewInlineKeyboardMarkup(
			row(textBtnUnsubscribe, action{kind: actUnsubscribe}),
			backRow,
		)

	case StepUnsubscribed:
		return fmt.Sprintf(textUnsubscribedFmt, f.Selected.TokenName), tgbotapi.NewInlineKeyboardMarkup(backToSubsRow)

	case StepBlockchains:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(catalog.Chains)+1)
		for _, ch := range catalog.Chains {
			rows = append(rows, row(upper.String(ch.ID), action{kind: actPickChain, arg: ch.ID}))
		}
		rows = append(rows, backRow)
		return textBlockchains, tgbotapi.NewInlineKeyboardMarkup(rows...)

	case StepTokens:
		ch, _ := catalog.Chain(f.Chain)
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(ch.Tokens)+1)
		for i, t := range ch.Tokens {
			rows = append(rows, row(t.Name, action{kind: actPickToken, arg: strconv.Itoa(i)}))
		}
		rows = append(rows, backRow)
		return textTokens, tgbotapi.NewInlineKeyboardMarkup(rows...)

	case StepSetAlertPrice:
		return textEnterPrice, tgbotapi.NewInlineKeyboardMarkup(backRow)

	case StepAlertPriceSet:
		return fmt.Sprintf(textSubscribedFmt, f.Token.Name), tgbotapi.NewInlineKeyboardMarkup(backToSubsRow)

	default:
		return fmt.Sprintf(textGreetingFmt, f.Name), tgbotapi.NewInlineKeyboardMarkup(
			row(textBtnMySubs, action{kind: actOpenSubscriptions}),
		)
	}
}
