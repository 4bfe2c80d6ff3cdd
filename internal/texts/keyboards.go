package texts

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
)

// Callback uniques shared between keyboard builders and the update router.
const (
	CbLang      = "lang"
	CbAgeYes    = "age_yes"
	CbRules     = "rules"
	CbBack      = "nav_back"
	CbNickEnter = "nick_enter"
	CbNickGen   = "nick_gen"
	CbSupport   = "support"
)

// languageOptions lists the codes and labels offered on the language
// keyboard. Codes without translations resolve to English after selection.
var languageOptions = []struct {
	code  string
	label string
}{
	{"en", "English 🇺🇸"},
	{"ru", "Русский 🇷🇺"},
	{"de", "Deutsch 🇩🇪"},
	{"fr", "Français 🇫🇷"},
	{"es", "Español 🇪🇸"},
	{"it", "Italiano 🇮🇹"},
}

// LanguageKeyboard builds the language picker, two options per row.
func LanguageKeyboard() *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(languageOptions))
	for _, opt := range languageOptions {
		buttons = append(buttons, keyboard.InlineBtn{Text: opt.label, Unique: CbLang, Data: opt.code})
	}
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

// AgeKeyboard builds the 18+ confirmation keyboard.
func AgeKeyboard(lang string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnYes18), Unique: CbAgeYes},
		{Text: get(lang, keyBtnRules), Unique: CbRules},
	})
}

// MainMenuKeyboard builds the persistent reply keyboard shown after the
// age gate.
func MainMenuKeyboard(lang string) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{get(lang, keyBtnClaim), get(lang, keyBtnHow)},
		[]string{get(lang, keyBtnBonus), get(lang, keyBtnDeposit)},
		[]string{get(lang, keyBtnPayouts), get(lang, keyBtnHelp)},
	)
}

// NicknameKeyboard offers manual entry or generation of a casino nickname.
func NicknameKeyboard(lang string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnEnterNick), Unique: CbNickEnter},
		{Text: get(lang, keyBtnGenNick), Unique: CbNickGen},
		{Text: get(lang, keyBtnBack), Unique: CbBack},
	})
}

// RegisterKeyboard carries the personalized registration link.
func RegisterKeyboard(lang, url string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnRegister), URL: url},
	})
}

// DepositKeyboard carries the personalized deposit link.
func DepositKeyboard(lang, url string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnGoDeposit), URL: url},
	})
}

// BackKeyboard is a single button back to the main menu.
func BackKeyboard(lang string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnBack), Unique: CbBack},
	})
}

// HelpKeyboard offers the support contact button.
func HelpKeyboard(lang string) *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: get(lang, keyBtnSupport), Unique: CbSupport},
	})
}
