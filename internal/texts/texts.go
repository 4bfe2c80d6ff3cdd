// Package texts holds the localized bot copy and the keyboards built from
// it. English and Russian are fully translated; the language keyboard also
// offers Tier-1 languages that resolve to English until translations land.
package texts

import "fmt"

// Language codes the funnel stores on user records.
const (
	LangEN = "en"
	LangRU = "ru"
)

// Fallback is the language used when a user never picks one or picks an
// unsupported code.
const Fallback = LangEN

// Supported reports whether the dictionary has translations for code.
func Supported(code string) bool {
	_, ok := dict[code]
	return ok
}

// Resolve maps an arbitrary language code to a supported one.
func Resolve(code string) string {
	if Supported(code) {
		return code
	}
	return Fallback
}

const (
	keyAgeTitle      = "age_title"
	keyAgeText       = "age_text"
	keyBtnYes18      = "btn_yes18"
	keyBtnRules      = "btn_rules"
	keyBtnClaim      = "btn_claim"
	keyBtnHow        = "btn_how"
	keyBtnHelp       = "btn_help"
	keyBtnDeposit    = "btn_deposit"
	keyBtnBonus      = "btn_bonus"
	keyBtnPayouts    = "btn_payouts"
	keyBtnBack       = "btn_back"
	keyBtnEnterNick  = "btn_enter_nick"
	keyBtnGenNick    = "btn_gen_nick"
	keyBtnRegister   = "btn_register"
	keyBtnGoDeposit  = "btn_go_deposit"
	keyBtnSupport    = "btn_support"
	keyHow           = "how_text"
	keyRules         = "rules_text"
	keyAskNick       = "ask_nick"
	keyRegLink       = "reg_link_text"
	keyReminderShort = "followup_30m"
	keyReminderLong  = "followup_24h"
	keyDeposited     = "deposited_ok"
	keyReactivation  = "reactivation"
	keyHelp          = "help_text"
	keyPayouts       = "payouts_text"
	keySupportAck    = "support_ack"
)

var dict = map[string]map[string]string{
	LangEN: {
		keyAgeTitle:      "Adults only",
		keyAgeText:       "This channel is for persons 18+ only. By continuing you confirm you are 18+ and accept the Terms.",
		keyBtnYes18:      "I am 18+ ✅",
		keyBtnRules:      "Rules & 18+",
		keyBtnClaim:      "Claim bonus 🎁",
		keyBtnHow:        "How it works ❓",
		keyBtnHelp:       "Help 🆘",
		keyBtnDeposit:    "Deposit 💳",
		keyBtnBonus:      "My bonus 🎁",
		keyBtnPayouts:    "Payouts 🏆",
		keyBtnBack:       "Back",
		keyBtnEnterNick:  "Enter nickname ✍️",
		keyBtnGenNick:    "Generate nickname 🎲",
		keyBtnRegister:   "Register now 🚀",
		keyBtnGoDeposit:  "Deposit now 💳",
		keyBtnSupport:    "Contact support 👤",
		keyHow:           "3 steps:\n1) Register via our partner link\n2) Make your first deposit\n3) Bonus will be added automatically.",
		keyRules:         "18+ only. Gambling involves risk. No guaranteed winnings. Follow your local laws. T&C apply.",
		keyAskNick:       "Great — send your casino nickname, or let me generate one.",
		keyRegLink:       "Perfect! Your private link is ready. Tap to register and unlock your bonus:",
		keyReminderShort: "Still there? 👀 Your bonus waits for you — valid for 60 minutes. Tap to claim +100%.",
		keyReminderLong:  "Last chance: +100% on first deposit expires soon. Want me to keep it for you?",
		keyDeposited:     "🎉 Congrats — your bonus is active! +100% up to $50 and 20 FS are in your account.",
		keyReactivation:  "We’ve added +10% to your next deposit for 48h. Want to activate?",
		keyHelp:          "FAQ: KYC, payments, withdrawals. Need a human? Tap below.",
		keyPayouts:       "Top payouts are updated daily. (Stub — integrate your feed here).",
		keySupportAck:    "Support will contact you soon. (Stub: route to live agent).",
	},
	LangRU: {
		keyAgeTitle:      "Только 18+",
		keyAgeText:       "Канал доступен только совершеннолетним (18+). Продолжая, вы подтверждаете возраст 18+ и согласие с правилами.",
		keyBtnYes18:      "Мне 18+ ✅",
		keyBtnRules:      "Правила & 18+",
		keyBtnClaim:      "Забрать бонус 🎁",
		keyBtnHow:        "Как это работает ❓",
		keyBtnHelp:       "Помощь 🆘",
		keyBtnDeposit:    "Пополнить 💳",
		keyBtnBonus:      "Мой бонус 🎁",
		keyBtnPayouts:    "Выплаты 🏆",
		keyBtnBack:       "Назад",
		keyBtnEnterNick:  "Ввести ник ✍️",
		keyBtnGenNick:    "Сгенерировать ник 🎲",
		keyBtnRegister:   "Зарегистрироваться 🚀",
		keyBtnGoDeposit:  "Пополнить сейчас 💳",
		keyBtnSupport:    "Связаться с поддержкой 👤",
		keyHow:           "3 шага:\n1) Зарегистрируйся по нашей ссылке\n2) Сделай первый депозит\n3) Бонус начислится автоматически.",
		keyRules:         "Только 18+. Азартные игры — это риск. Нет гарантированных выигрышей. Соблюдай законы своей страны. Правила действуют.",
		keyAskNick:       "Отлично — пришли свой ник в казино, либо сгенерировать?",
		keyRegLink:       "Готово! Твоя приватная ссылка на регистрацию ниже — переходи и активируй бонус:",
		keyReminderShort: "Ты ещё тут? 👀 Бонус ждёт — действует 60 минут. Жми, пока доступно +100%.",
		keyReminderLong:  "Последний шанс: +100% на первый депозит скоро истекает. Сохранить бонус?",
		keyDeposited:     "🎉 Поздравляем — бонус активирован! +100% до $50 и 20 фриспинов уже в аккаунте.",
		keyReactivation:  "Добавили +10% к следующему депозиту на 48 часов. Активировать?",
		keyHelp:          "FAQ: верификация, платежи, выводы. Нужен менеджер? Нажми ниже.",
		keyPayouts:       "Top payouts are updated daily. (Stub — integrate your feed here).",
		keySupportAck:    "Support will contact you soon. (Stub: route to live agent).",
	},
}

func get(lang, key string) string {
	if m, ok := dict[lang]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return dict[Fallback][key]
}

// LanguagePrompt is shown before a language is known, so it mixes all
// offered languages in one line.
func LanguagePrompt() string {
	return "Choose your language / Wähle deine Sprache / Choisis ta langue / Elige tu idioma / Scegli la tua lingua"
}

// AgeGate combines the age-restriction title and body.
func AgeGate(lang string) string {
	return get(lang, keyAgeTitle) + "\n\n" + get(lang, keyAgeText)
}

// Greeting welcomes the user by first name after the age gate.
func Greeting(lang, name string) string {
	if lang == LangRU {
		if name == "" {
			name = "друг"
		}
		return fmt.Sprintf("Привет, %s! 🎉 Ты попал(а) в закрытый хаб бонусов.\nЗа первый депозит — **+100%% до $50** и 20 фриспинов. Забираем?", name)
	}
	if name == "" {
		name = "friend"
	}
	return fmt.Sprintf("Hi, %s! 🎉 You’ve entered a private bonus hub.\nFirst deposit bonus: **+100%% up to $50** + 20 FS. Want to claim it?", name)
}

// NicknameSaved confirms the stored casino nickname.
func NicknameSaved(lang, nick string) string {
	if lang == LangRU {
		return fmt.Sprintf("Супер, сохранил твой ник: %s", nick)
	}
	return fmt.Sprintf("Nice, I’ve saved your nickname: %s", nick)
}

// RegistrationConfirmed congratulates on a confirmed registration and
// nudges towards the first deposit.
func RegistrationConfirmed(lang, nick string) string {
	if lang == LangRU {
		if nick == "" {
			nick = "игрок"
		}
		return fmt.Sprintf("✅ Регистрация подтверждена, %s! Пополняй счёт — бонус придёт автоматически.", nick)
	}
	if nick == "" {
		nick = "player"
	}
	return fmt.Sprintf("✅ Registration confirmed, %s! Make your first deposit — the bonus will be auto-applied.", nick)
}

func HowItWorks(lang string) string    { return get(lang, keyHow) }
func Rules(lang string) string         { return get(lang, keyRules) }
func AskNickname(lang string) string   { return get(lang, keyAskNick) }
func RegisterIntro(lang string) string { return get(lang, keyRegLink) }
func ReminderShort(lang string) string { return get(lang, keyReminderShort) }
func ReminderLong(lang string) string  { return get(lang, keyReminderLong) }
func DepositDone(lang string) string   { return get(lang, keyDeposited) }
func Reactivation(lang string) string  { return get(lang, keyReactivation) }
func Help(lang string) string          { return get(lang, keyHelp) }
func Payouts(lang string) string       { return get(lang, keyPayouts) }
func SupportAck(lang string) string    { return get(lang, keySupportAck) }

// MenuAction identifies which main-menu entry a free-text message matched.
type MenuAction int

const (
	MenuHow MenuAction = iota + 1
	MenuClaim
	MenuDeposit
	MenuPayouts
	MenuHelp
)

// MatchMenu matches text against the main-menu button labels of lang.
// The claim and "my bonus" buttons lead to the same flow.
func MatchMenu(lang, text string) (MenuAction, bool) {
	switch text {
	case get(lang, keyBtnHow):
		return MenuHow, true
	case get(lang, keyBtnClaim), get(lang, keyBtnBonus):
		return MenuClaim, true
	case get(lang, keyBtnDeposit):
		return MenuDeposit, true
	case get(lang, keyBtnPayouts):
		return MenuPayouts, true
	case get(lang, keyBtnHelp):
		return MenuHelp, true
	}
	return 0, false
}
