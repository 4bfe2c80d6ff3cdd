package texts

import (
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	cases := map[string]string{
		"en": "en",
		"ru": "ru",
		"de": "en",
		"fr": "en",
		"":   "en",
		"xx": "en",
	}
	for in, want := range cases {
		if got := Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRussianFallsBackToEnglishForMissingKeys(t *testing.T) {
	// Stub texts stay untranslated; lookups must never return empty.
	if Payouts(LangRU) == "" || SupportAck(LangRU) == "" {
		t.Fatal("empty text for ru stub keys")
	}
	if Rules("xx") != Rules(LangEN) {
		t.Fatal("unknown language did not fall back to English")
	}
}

func TestGreetingUsesNameWithFallback(t *testing.T) {
	if got := Greeting(LangEN, "Ann"); !strings.Contains(got, "Ann") {
		t.Fatalf("greeting missing name: %q", got)
	}
	if got := Greeting(LangEN, ""); !strings.Contains(got, "friend") {
		t.Fatalf("greeting missing fallback: %q", got)
	}
	if got := Greeting(LangRU, ""); !strings.Contains(got, "друг") {
		t.Fatalf("ru greeting missing fallback: %q", got)
	}
}

func TestRegistrationConfirmedNickFallback(t *testing.T) {
	if got := RegistrationConfirmed(LangEN, ""); !strings.Contains(got, "player") {
		t.Fatalf("missing nick fallback: %q", got)
	}
	if got := RegistrationConfirmed(LangRU, "Иван"); !strings.Contains(got, "Иван") {
		t.Fatalf("nick dropped: %q", got)
	}
}

func TestMatchMenu(t *testing.T) {
	cases := []struct {
		lang string
		text string
		want MenuAction
	}{
		{LangEN, "How it works ❓", MenuHow},
		{LangEN, "Claim bonus 🎁", MenuClaim},
		{LangEN, "My bonus 🎁", MenuClaim},
		{LangEN, "Deposit 💳", MenuDeposit},
		{LangEN, "Payouts 🏆", MenuPayouts},
		{LangEN, "Help 🆘", MenuHelp},
		{LangRU, "Как это работает ❓", MenuHow},
		{LangRU, "Забрать бонус 🎁", MenuClaim},
		{LangRU, "Помощь 🆘", MenuHelp},
	}
	for _, tc := range cases {
		got, ok := MatchMenu(tc.lang, tc.text)
		if !ok || got != tc.want {
			t.Fatalf("MatchMenu(%s, %q) = %v/%v, want %v", tc.lang, tc.text, got, ok, tc.want)
		}
	}

	if _, ok := MatchMenu(LangEN, "random text"); ok {
		t.Fatal("random text matched a menu action")
	}
	// Labels from the other language do not match.
	if _, ok := MatchMenu(LangEN, "Помощь 🆘"); ok {
		t.Fatal("ru label matched under en")
	}
}

func TestLanguageKeyboardOffersSixOptions(t *testing.T) {
	kb := LanguageKeyboard()
	total := 0
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			total++
			if btn.Unique != CbLang {
				t.Fatalf("unexpected unique %q", btn.Unique)
			}
		}
	}
	if total != 6 {
		t.Fatalf("language keyboard has %d buttons, want 6", total)
	}
}

func TestRegisterKeyboardIsURLButton(t *testing.T) {
	kb := RegisterKeyboard(LangEN, "https://partner.example.com/r?uid=1")
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 1 {
		t.Fatalf("unexpected layout: %v", kb.InlineKeyboard)
	}
	btn := kb.InlineKeyboard[0][0]
	if btn.URL == "" || btn.Unique != "" {
		t.Fatalf("expected url button, got %+v", btn)
	}
}

func TestMainMenuKeyboardLayout(t *testing.T) {
	kb := MainMenuKeyboard(LangEN)
	if len(kb.ReplyKeyboard) != 3 {
		t.Fatalf("menu rows = %d, want 3", len(kb.ReplyKeyboard))
	}
	for i, row := range kb.ReplyKeyboard {
		if len(row) != 2 {
			t.Fatalf("row %d has %d buttons, want 2", i, len(row))
		}
	}
	if !kb.ResizeKeyboard {
		t.Fatal("menu keyboard not resized")
	}
}
